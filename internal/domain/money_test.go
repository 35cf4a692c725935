package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "whole amount", input: "150", want: "150.00"},
		{name: "two decimals", input: "150.75", want: "150.75"},
		{name: "one decimal", input: "0.5", want: "0.50"},
		{name: "smallest unit", input: "0.01", want: "0.01"},
		{name: "zero rejected", input: "0", wantErr: true},
		{name: "negative rejected", input: "-5.00", wantErr: true},
		{name: "three decimals rejected", input: "1.234", wantErr: true},
		{name: "not a number", input: "abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) succeeded, wanted error", tc.input)
				}
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("ParseAmount(%q) error = %v, wanted ErrInvalidAmount", tc.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) failed: %v", tc.input, err)
			}
			if FormatAmount(got) != tc.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tc.input, FormatAmount(got), tc.want)
			}
		})
	}
}

func TestValidateAmountRejectsSubCentPrecision(t *testing.T) {
	d := decimal.RequireFromString("10.005")
	if _, err := ValidateAmount(d); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("ValidateAmount(10.005) error = %v, wanted ErrInvalidAmount", err)
	}
}

func TestFormatAmountFixedScale(t *testing.T) {
	d := decimal.RequireFromString("700")
	if got := FormatAmount(d); got != "700.00" {
		t.Errorf("FormatAmount(700) = %q, want %q", got, "700.00")
	}
}

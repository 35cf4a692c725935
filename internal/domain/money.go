/**
 * @description
 * Monetary amount helpers for the ledger. All balances, limits and transfer
 * amounts are exact decimals with at most two fractional digits; binary
 * floating point never touches money.
 *
 * @notes
 * - Amounts crossing the API boundary arrive as strings and are parsed here
 *   before any engine code sees them.
 * - Inputs with more than two fractional digits are rejected rather than
 *   silently rounded.
 */

package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountScale is the fixed number of fractional digits carried by every
// monetary value in the ledger.
const AmountScale = 2

// ErrInvalidAmount is returned for amounts that are malformed, non-positive,
// or carry more than AmountScale fractional digits.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a positive monetary amount from its string form.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}
	return ValidateAmount(d)
}

// ValidateAmount checks that an already-parsed decimal is a usable amount.
func ValidateAmount(d decimal.Decimal) (decimal.Decimal, error) {
	if d.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	if d.Exponent() < -AmountScale {
		return decimal.Zero, fmt.Errorf("%w: amount %s has more than %d fractional digits", ErrInvalidAmount, d.String(), AmountScale)
	}
	return d, nil
}

// FormatAmount renders an amount at the ledger's fixed scale, e.g. "700.00".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

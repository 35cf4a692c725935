/**
 * @description
 * The Account entity: a user's demand-deposit balance record. Accounts are
 * identified publicly by an immutable 16-digit number and hold an exact
 * decimal balance that is never allowed below zero.
 *
 * @notes
 * - Debit and Credit are the only balance mutations in the system; workflow
 *   code never writes the Balance field directly.
 * - Accounts are soft-deactivated via Active; they are never hard-deleted.
 */

package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountKind distinguishes savings from checking accounts.
type AccountKind string

const (
	AccountSavings  AccountKind = "SAVINGS"
	AccountChecking AccountKind = "CHECKING"
)

// Valid reports whether k is a known account kind.
func (k AccountKind) Valid() bool {
	switch k {
	case AccountSavings, AccountChecking:
		return true
	}
	return false
}

// ErrInsufficientFunds is returned when a debit exceeds the available balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Account maps to the `accounts` table.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	Number    string          `json:"number"`
	OwnerID   string          `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	Kind      AccountKind     `json:"kind"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// Debit reduces the balance by amount. The caller is responsible for pairing
// the debit with the counterparty credit inside one transaction boundary.
func (a *Account) Debit(amount decimal.Decimal) error {
	if amount.Cmp(decimal.Zero) <= 0 {
		return ErrInvalidAmount
	}
	if a.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Credit increases the balance by amount. There is no upper bound.
func (a *Account) Credit(amount decimal.Decimal) error {
	if amount.Cmp(decimal.Zero) <= 0 {
		return ErrInvalidAmount
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

/**
 * @description
 * CreditCard and CardTransaction entities. A card is a revolving credit line
 * (limit + available) with a Luhn-valid 16-digit number that is never exposed
 * in full; a card transaction is a charge against the card's available
 * credit, later optionally collected into a deposit account.
 *
 * @notes
 * - Available credit is bounded above by the limit; restores clamp rather
 *   than fail.
 * - Expiry is applied lazily: every read/use path calls RefreshExpiry before
 *   trusting State.
 */

package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CardBrand is a closed set of issuable card brands, each with its own
// IIN prefix pool.
type CardBrand string

const (
	BrandAmex      CardBrand = "AMERICAN_EXPRESS"
	BrandCabal     CardBrand = "CABAL"
	BrandCredicard CardBrand = "CREDICARD"
)

// Valid reports whether b is a known brand.
func (b CardBrand) Valid() bool {
	switch b {
	case BrandAmex, BrandCabal, BrandCredicard:
		return true
	}
	return false
}

// Prefixes returns the brand's issuer prefix pool. Card numbers for the
// brand always begin with one of these.
func (b CardBrand) Prefixes() []string {
	switch b {
	case BrandAmex:
		return []string{"34", "37"}
	case BrandCabal:
		return []string{"627170", "589657"}
	case BrandCredicard:
		return []string{"636368", "636297"}
	}
	return nil
}

// CVCLength returns the security-code length the brand specifies.
func (b CardBrand) CVCLength() int {
	if b == BrandAmex {
		return 4
	}
	return 3
}

// CardState is the card lifecycle state.
type CardState string

const (
	CardActive    CardState = "ACTIVE"
	CardBlocked   CardState = "BLOCKED"
	CardExpired   CardState = "EXPIRED"
	CardCancelled CardState = "CANCELLED"
)

// Terminal reports whether the state admits no further transitions.
func (s CardState) Terminal() bool {
	return s == CardExpired || s == CardCancelled
}

var (
	// ErrInsufficientCredit is returned when a charge exceeds available credit.
	ErrInsufficientCredit = errors.New("insufficient credit")
	// ErrCardNotActive is returned when an operation requires an ACTIVE card.
	ErrCardNotActive = errors.New("card is not active")
	// ErrCardNotBlocked is returned by Unblock on a card that is not BLOCKED.
	ErrCardNotBlocked = errors.New("card is not blocked")
	// ErrCardExpired is returned by Unblock when the card's expiry has passed.
	ErrCardExpired = errors.New("card is expired")
)

// CreditCard maps to the `credit_cards` table.
type CreditCard struct {
	ID         uuid.UUID       `json:"id"`
	OwnerID    string          `json:"owner_id"`
	FullNumber string          `json:"-"`
	Last4      string          `json:"last4"`
	Brand      CardBrand       `json:"brand"`
	CVC        string          `json:"-"`
	Expiry     time.Time       `json:"expiry"`
	Limit      decimal.Decimal `json:"limit"`
	Available  decimal.Decimal `json:"available"`
	State      CardState       `json:"state"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MaskedNumber is the only card-number form ever shown externally.
func (c *CreditCard) MaskedNumber() string {
	return fmt.Sprintf("**** **** **** %s", c.Last4)
}

// IsExpired reports whether the card's expiry date has passed at now.
func (c *CreditCard) IsExpired(now time.Time) bool {
	return c.Expiry.Before(now)
}

// RefreshExpiry lazily transitions an ACTIVE card past its expiry to
// EXPIRED. It reports whether a transition happened so the caller can
// persist it. Idempotent.
func (c *CreditCard) RefreshExpiry(now time.Time) bool {
	if c.State == CardActive && c.IsExpired(now) {
		c.State = CardExpired
		return true
	}
	return false
}

// Charge reduces available credit by amount.
func (c *CreditCard) Charge(amount decimal.Decimal) error {
	if amount.Cmp(decimal.Zero) <= 0 {
		return ErrInvalidAmount
	}
	if c.State != CardActive {
		return ErrCardNotActive
	}
	if c.Available.Cmp(amount) < 0 {
		return ErrInsufficientCredit
	}
	c.Available = c.Available.Sub(amount)
	return nil
}

// Restore returns amount to the available credit, clamped so available
// never exceeds the limit.
func (c *CreditCard) Restore(amount decimal.Decimal) error {
	if amount.Cmp(decimal.Zero) <= 0 {
		return ErrInvalidAmount
	}
	c.Available = c.Available.Add(amount)
	if c.Available.Cmp(c.Limit) > 0 {
		c.Available = c.Limit
	}
	return nil
}

// Block transitions ACTIVE -> BLOCKED.
func (c *CreditCard) Block() error {
	if c.State != CardActive {
		return ErrCardNotActive
	}
	c.State = CardBlocked
	return nil
}

// Unblock transitions BLOCKED -> ACTIVE, unless the card has expired in the
// meantime.
func (c *CreditCard) Unblock(now time.Time) error {
	if c.State != CardBlocked {
		return ErrCardNotBlocked
	}
	if c.IsExpired(now) {
		return ErrCardExpired
	}
	c.State = CardActive
	return nil
}

// TransactionState is the card-transaction lifecycle state.
type TransactionState string

const (
	TransactionPending   TransactionState = "PENDING"
	TransactionCollected TransactionState = "COLLECTED"
	TransactionCancelled TransactionState = "CANCELLED"
)

// CardTransaction maps to the `card_transactions` table. The charge already
// reduced the card's available credit; collection only credits the
// destination account.
type CardTransaction struct {
	ID                uuid.UUID        `json:"id"`
	CardID            uuid.UUID        `json:"card_id"`
	Amount            decimal.Decimal  `json:"amount"`
	State             TransactionState `json:"state"`
	ChargedAt         time.Time        `json:"charged_at"`
	CollectedAt       *time.Time       `json:"collected_at,omitempty"`
	DestAccountNumber *string          `json:"dest_account_number,omitempty"`
	Description       string           `json:"description"`
}

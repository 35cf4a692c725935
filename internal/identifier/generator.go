/**
 * @description
 * Generation of the ledger's public identifiers: 16-digit account numbers,
 * Luhn-valid brand-prefixed card numbers, CVCs, human-readable transfer
 * references and card-transaction UUIDs.
 *
 * @notes
 * - Randomly generated identifiers are collision-checked against the store
 *   and regenerated on collision, with a hard retry cap so a saturated
 *   identifier space surfaces ErrGenerationExhausted instead of spinning.
 * - Transaction ids are plain UUIDs; their collision probability is treated
 *   as negligible and not re-checked.
 */

package identifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/homebanking/ledger-service/internal/domain"
)

const (
	accountNumberLength = 16
	cardNumberLength    = 16
	referenceCodeLength = 8
	referencePrefix     = "TRF"

	// maxAttempts bounds every collision-retry loop. The default identifier
	// spaces make exhaustion practically unreachable.
	maxAttempts = 100
)

const (
	digits       = "0123456789"
	upperAlnum   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referenceDay = "20060102"
)

// ErrGenerationExhausted is returned when the retry cap is hit without
// producing an unused identifier.
var ErrGenerationExhausted = errors.New("identifier generation exhausted")

// UniquenessStore is the narrow store surface the generator needs to probe
// for collisions.
type UniquenessStore interface {
	AccountNumberExists(ctx context.Context, number string) (bool, error)
	CardNumberExists(ctx context.Context, number string) (bool, error)
	TransferReferenceExists(ctx context.Context, reference string) (bool, error)
}

// Generator produces collision-free public identifiers.
type Generator struct {
	store UniquenessStore
	now   func() time.Time
}

// NewGenerator creates a Generator backed by the given store.
func NewGenerator(store UniquenessStore) *Generator {
	return &Generator{store: store, now: time.Now}
}

// AccountNumber returns an unused 16-digit account number.
func (g *Generator) AccountNumber(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		number := randomString(digits, accountNumberLength)
		exists, err := g.store.AccountNumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("account number uniqueness check failed: %w", err)
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("%w: account numbers", ErrGenerationExhausted)
}

// CardNumber returns an unused, Luhn-valid card number for the brand,
// beginning with one of the brand's issuer prefixes.
func (g *Generator) CardNumber(ctx context.Context, brand domain.CardBrand) (string, error) {
	prefixes := brand.Prefixes()
	if len(prefixes) == 0 {
		return "", fmt.Errorf("brand %q has no prefix pool", brand)
	}
	prefix := prefixes[rand.IntN(len(prefixes))]
	fillerLen := cardNumberLength - len(prefix) - 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		base := prefix + randomString(digits, fillerLen)
		number := base + string(rune('0'+LuhnCheckDigit(base)))
		exists, err := g.store.CardNumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("card number uniqueness check failed: %w", err)
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("%w: card numbers for brand %s", ErrGenerationExhausted, brand)
}

// CVC returns a random security code of the brand's specified length.
func (g *Generator) CVC(brand domain.CardBrand) string {
	return randomString(digits, brand.CVCLength())
}

// TransferReference returns an unused reference of the form
// TRF<YYYYMMDD><8 uppercase alphanumerics>.
func (g *Generator) TransferReference(ctx context.Context) (string, error) {
	day := g.now().Format(referenceDay)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		reference := referencePrefix + day + randomString(upperAlnum, referenceCodeLength)
		exists, err := g.store.TransferReferenceExists(ctx, reference)
		if err != nil {
			return "", fmt.Errorf("transfer reference uniqueness check failed: %w", err)
		}
		if !exists {
			return reference, nil
		}
	}
	return "", fmt.Errorf("%w: transfer references", ErrGenerationExhausted)
}

// TransactionID returns a random 128-bit card-transaction identifier.
func (g *Generator) TransactionID() uuid.UUID {
	return uuid.New()
}

// LuhnCheckDigit computes the mod-10 check digit for a numeric base string:
// scanning right to left, every digit at an even zero-based position is
// doubled (summing the two digits of a double above 9) before summing.
func LuhnCheckDigit(base string) int {
	sum := 0
	double := true
	for i := len(base) - 1; i >= 0; i-- {
		d := int(base[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// LuhnValid reports whether a full number (base + check digit) passes the
// standard mod-10 validation.
func LuhnValid(number string) bool {
	if len(number) < 2 {
		return false
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	base, check := number[:len(number)-1], int(number[len(number)-1]-'0')
	return LuhnCheckDigit(base) == check
}

func randomString(alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

/**
 * @description
 * Error classification for the ledger service. Domain and store packages expose
 * sentinel errors; this file maps them onto a small set of kinds so the API
 * layer can pick an HTTP status without knowing every sentinel.
 */

package app

import (
	"errors"

	"github.com/homebanking/ledger-service/internal/domain"
	"github.com/homebanking/ledger-service/internal/identifier"
	"github.com/homebanking/ledger-service/internal/store"
)

// Service-level sentinel errors for request validation.
var (
	ErrSameAccount         = errors.New("source and destination accounts must differ")
	ErrInvalidAccountKind  = errors.New("unsupported account kind")
	ErrCardPolicyViolation = errors.New("owner already has an open card")
	ErrInvalidBrand        = errors.New("unsupported card brand")
	ErrLimitOutOfRange     = errors.New("card limit out of allowed range")
	ErrRateLimited         = errors.New("rate limit exceeded")
)

// ErrorKind is a coarse classification used by the HTTP layer.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindState
	KindRateLimited
)

// Kind classifies an error returned by the service into an ErrorKind.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, ErrSameAccount),
		errors.Is(err, ErrInvalidAccountKind),
		errors.Is(err, ErrInvalidBrand),
		errors.Is(err, ErrLimitOutOfRange):
		return KindValidation
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrCardNotFound),
		errors.Is(err, store.ErrTransferNotFound),
		errors.Is(err, store.ErrTransactionNotFound):
		return KindNotFound
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientCredit),
		errors.Is(err, domain.ErrCardNotActive),
		errors.Is(err, ErrCardPolicyViolation),
		errors.Is(err, store.ErrAlreadyProcessed):
		return KindConflict
	case errors.Is(err, domain.ErrCardNotBlocked),
		errors.Is(err, domain.ErrCardExpired),
		errors.Is(err, store.ErrAccountInactive),
		errors.Is(err, store.ErrTransactionNotPending),
		errors.Is(err, store.ErrCardStateConflict):
		return KindState
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, identifier.ErrGenerationExhausted):
		return KindInternal
	default:
		return KindInternal
	}
}

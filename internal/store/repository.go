/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the ledger engine needs. The interface decouples the engine from the
 * concrete database, so the same workflows run against PostgreSQL in
 * production and against the in-memory store in tests.
 *
 * @notes
 * - The multi-row workflow operations (ProcessTransfer, ChargeCard,
 *   CollectTransaction) own their transaction boundary: each one commits as a
 *   single indivisible unit or not at all.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/homebanking/ledger-service/internal/domain"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountInactive       = errors.New("account is inactive")
	ErrCardNotFound          = errors.New("card not found")
	ErrTransferNotFound      = errors.New("transfer not found")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrAlreadyProcessed      = errors.New("transfer already processed")
	ErrTransactionNotPending = errors.New("transaction is not pending")
	ErrCardStateConflict     = errors.New("card is no longer in the expected state")
	ErrDuplicateIdentifier   = errors.New("identifier already in use")
)

// Repository defines the set of methods for interacting with ledger storage.
type Repository interface {
	// Account methods
	CreateAccount(ctx context.Context, account *domain.Account) error
	FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error)
	SetAccountActive(ctx context.Context, number string, active bool) error

	// Transfer methods. ProcessTransfer runs the full processing algorithm in
	// one transaction: on insufficient funds the FAILED outcome is committed
	// and the updated transfer is returned alongside domain.ErrInsufficientFunds.
	CreateTransfer(ctx context.Context, transfer *domain.Transfer) error
	FindTransferByReference(ctx context.Context, reference string) (*domain.Transfer, error)
	ListTransfersByAccount(ctx context.Context, number string) ([]domain.Transfer, error)
	ProcessTransfer(ctx context.Context, reference string, now time.Time) (*domain.Transfer, error)

	// Card methods. UpdateCardState is a compare-and-set: it fails with
	// ErrCardStateConflict when the card is no longer in `from`.
	CreateCard(ctx context.Context, card *domain.CreditCard) error
	FindCardByID(ctx context.Context, id uuid.UUID) (*domain.CreditCard, error)
	FindCardByNumber(ctx context.Context, fullNumber string) (*domain.CreditCard, error)
	ListCardsByOwner(ctx context.Context, ownerID string) ([]domain.CreditCard, error)
	OwnerHasOpenCard(ctx context.Context, ownerID string) (bool, error)
	UpdateCardState(ctx context.Context, id uuid.UUID, from, to domain.CardState) error
	SweepExpiredCards(ctx context.Context, now time.Time) (int64, error)

	// Card transaction methods. ChargeCard atomically re-checks the card under
	// lock, reduces its available credit and inserts the PENDING transaction.
	// CollectTransaction atomically flips PENDING -> COLLECTED and credits the
	// destination account.
	ChargeCard(ctx context.Context, tx *domain.CardTransaction, now time.Time) error
	CollectTransaction(ctx context.Context, transactionID uuid.UUID, destNumber string, now time.Time) (*domain.CardTransaction, error)
	FindCardTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.CardTransaction, error)

	// Identifier uniqueness probes
	AccountNumberExists(ctx context.Context, number string) (bool, error)
	CardNumberExists(ctx context.Context, number string) (bool, error)
	TransferReferenceExists(ctx context.Context, reference string) (bool, error)
}

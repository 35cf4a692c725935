/**
 * @description
 * An in-memory implementation of the Repository interface. It backs the
 * service-level tests and keeps the same semantics as the PostgreSQL
 * implementation: workflow operations mutate under one lock so either every
 * side of a paired mutation is visible or none is.
 *
 * @notes
 * - A single RWMutex guards all maps. That is a coarser grain than the
 *   per-row locks the SQL store takes, but it gives the same linearization
 *   guarantees for operations touching the same account.
 */

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/homebanking/ledger-service/internal/domain"
)

// MemoryRepository stores all ledger state in process memory.
type MemoryRepository struct {
	mu           sync.RWMutex
	accounts     map[string]*domain.Account         // keyed by account number
	transfers    map[string]*domain.Transfer        // keyed by reference
	cards        map[uuid.UUID]*domain.CreditCard   // keyed by card id
	cardsByNum   map[string]uuid.UUID               // full number -> card id
	transactions map[uuid.UUID]*domain.CardTransaction
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:     make(map[string]*domain.Account),
		transfers:    make(map[string]*domain.Transfer),
		cards:        make(map[uuid.UUID]*domain.CreditCard),
		cardsByNum:   make(map[string]uuid.UUID),
		transactions: make(map[uuid.UUID]*domain.CardTransaction),
	}
}

func (m *MemoryRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.Number]; exists {
		return ErrDuplicateIdentifier
	}
	copied := *account
	m.accounts[account.Number] = &copied
	return nil
}

func (m *MemoryRepository) FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[number]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *MemoryRepository) SetAccountActive(ctx context.Context, number string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[number]
	if !ok {
		return ErrAccountNotFound
	}
	account.Active = active
	return nil
}

func (m *MemoryRepository) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.transfers[transfer.Reference]; exists {
		return ErrDuplicateIdentifier
	}
	copied := *transfer
	m.transfers[transfer.Reference] = &copied
	return nil
}

func (m *MemoryRepository) FindTransferByReference(ctx context.Context, reference string) (*domain.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transfer, ok := m.transfers[reference]
	if !ok {
		return nil, ErrTransferNotFound
	}
	copied := *transfer
	return &copied, nil
}

func (m *MemoryRepository) ListTransfersByAccount(ctx context.Context, number string) ([]domain.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var transfers []domain.Transfer
	for _, t := range m.transfers {
		if t.SourceNumber == number || t.DestNumber == number {
			transfers = append(transfers, *t)
		}
	}
	sort.Slice(transfers, func(i, j int) bool {
		return transfers[i].CreatedAt.After(transfers[j].CreatedAt)
	})
	return transfers, nil
}

func (m *MemoryRepository) ProcessTransfer(ctx context.Context, reference string, now time.Time) (*domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transfer, ok := m.transfers[reference]
	if !ok {
		return nil, ErrTransferNotFound
	}
	if transfer.State != domain.TransferPending {
		copied := *transfer
		return &copied, ErrAlreadyProcessed
	}

	source, ok := m.accounts[transfer.SourceNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	dest, ok := m.accounts[transfer.DestNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}

	if err := source.Debit(transfer.Amount); err != nil {
		transfer.State = domain.TransferFailed
		processedAt := now
		transfer.ProcessedAt = &processedAt
		copied := *transfer
		return &copied, err
	}
	if err := dest.Credit(transfer.Amount); err != nil {
		// Roll the debit back so the pair stays all-or-nothing, then record
		// the failed attempt.
		source.Balance = source.Balance.Add(transfer.Amount)
		transfer.State = domain.TransferFailed
		processedAt := now
		transfer.ProcessedAt = &processedAt
		copied := *transfer
		return &copied, err
	}

	transfer.State = domain.TransferCompleted
	processedAt := now
	transfer.ProcessedAt = &processedAt
	copied := *transfer
	return &copied, nil
}

func (m *MemoryRepository) CreateCard(ctx context.Context, card *domain.CreditCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cards[card.ID]; exists {
		return ErrDuplicateIdentifier
	}
	if _, exists := m.cardsByNum[card.FullNumber]; exists {
		return ErrDuplicateIdentifier
	}
	copied := *card
	m.cards[card.ID] = &copied
	m.cardsByNum[card.FullNumber] = card.ID
	return nil
}

func (m *MemoryRepository) FindCardByID(ctx context.Context, id uuid.UUID) (*domain.CreditCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	card, ok := m.cards[id]
	if !ok {
		return nil, ErrCardNotFound
	}
	copied := *card
	return &copied, nil
}

func (m *MemoryRepository) FindCardByNumber(ctx context.Context, fullNumber string) (*domain.CreditCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.cardsByNum[fullNumber]
	if !ok {
		return nil, ErrCardNotFound
	}
	copied := *m.cards[id]
	return &copied, nil
}

func (m *MemoryRepository) ListCardsByOwner(ctx context.Context, ownerID string) ([]domain.CreditCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cards []domain.CreditCard
	for _, card := range m.cards {
		if card.OwnerID == ownerID {
			cards = append(cards, *card)
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		return cards[i].CreatedAt.After(cards[j].CreatedAt)
	})
	return cards, nil
}

func (m *MemoryRepository) OwnerHasOpenCard(ctx context.Context, ownerID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, card := range m.cards {
		if card.OwnerID == ownerID && !card.State.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) UpdateCardState(ctx context.Context, id uuid.UUID, from, to domain.CardState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	card, ok := m.cards[id]
	if !ok {
		return ErrCardNotFound
	}
	if card.State != from {
		return ErrCardStateConflict
	}
	card.State = to
	return nil
}

func (m *MemoryRepository) SweepExpiredCards(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var swept int64
	for _, card := range m.cards {
		if card.RefreshExpiry(now) {
			swept++
		}
	}
	return swept, nil
}

func (m *MemoryRepository) ChargeCard(ctx context.Context, cardTx *domain.CardTransaction, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	card, ok := m.cards[cardTx.CardID]
	if !ok {
		return ErrCardNotFound
	}
	if card.RefreshExpiry(now) {
		return domain.ErrCardNotActive
	}
	if err := card.Charge(cardTx.Amount); err != nil {
		return err
	}

	cardTx.State = domain.TransactionPending
	cardTx.ChargedAt = now
	copied := *cardTx
	m.transactions[cardTx.ID] = &copied
	return nil
}

func (m *MemoryRepository) CollectTransaction(ctx context.Context, transactionID uuid.UUID, destNumber string, now time.Time) (*domain.CardTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transaction, ok := m.transactions[transactionID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if transaction.State != domain.TransactionPending {
		copied := *transaction
		return &copied, ErrTransactionNotPending
	}

	dest, ok := m.accounts[destNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if !dest.Active {
		return nil, ErrAccountInactive
	}

	if err := dest.Credit(transaction.Amount); err != nil {
		return nil, err
	}
	transaction.State = domain.TransactionCollected
	collectedAt := now
	transaction.CollectedAt = &collectedAt
	number := destNumber
	transaction.DestAccountNumber = &number

	copied := *transaction
	return &copied, nil
}

func (m *MemoryRepository) FindCardTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.CardTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transaction, ok := m.transactions[transactionID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	copied := *transaction
	return &copied, nil
}

func (m *MemoryRepository) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.accounts[number]
	return exists, nil
}

func (m *MemoryRepository) CardNumberExists(ctx context.Context, number string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.cardsByNum[number]
	return exists, nil
}

func (m *MemoryRepository) TransferReferenceExists(ctx context.Context, reference string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.transfers[reference]
	return exists, nil
}

// Compile-time check: ensure MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

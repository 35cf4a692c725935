/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all SQL for the accounts, transfers, credit_cards
 * and card_transactions tables, including the transactional workflow
 * operations that pair balance mutations with state transitions.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - Row locks (`SELECT ... FOR UPDATE`) serialize concurrent work on the same
 *   account or card. When a workflow touches two accounts their rows are
 *   locked in ascending account-number order to avoid deadlocks.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/homebanking/ledger-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// CreateAccount inserts a new account row.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, number, owner_id, balance, kind, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		account.ID, account.Number, account.OwnerID, account.Balance,
		account.Kind, account.Active, account.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateIdentifier
	}
	return err
}

// FindAccountByNumber retrieves an account by its public 16-digit number.
func (r *PostgresRepository) FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, number, owner_id, balance, kind, active, created_at FROM accounts WHERE number = $1`
	err := r.db.QueryRow(ctx, query, number).Scan(
		&account.ID, &account.Number, &account.OwnerID, &account.Balance,
		&account.Kind, &account.Active, &account.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// SetAccountActive flips an account's active flag.
func (r *PostgresRepository) SetAccountActive(ctx context.Context, number string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET active = $2 WHERE number = $1`, number, active)
	if err != nil {
		return fmt.Errorf("failed to update account active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreateTransfer inserts a new transfer in its initial state.
func (r *PostgresRepository) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	query := `
		INSERT INTO transfers (reference, source_number, dest_number, amount, memo, state, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		transfer.Reference, transfer.SourceNumber, transfer.DestNumber,
		transfer.Amount, transfer.Memo, transfer.State, transfer.CreatedAt, transfer.ProcessedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateIdentifier
	}
	return err
}

// FindTransferByReference retrieves a transfer by its public reference.
func (r *PostgresRepository) FindTransferByReference(ctx context.Context, reference string) (*domain.Transfer, error) {
	var t domain.Transfer
	query := `
		SELECT reference, source_number, dest_number, amount, COALESCE(memo, ''), state, created_at, processed_at
		FROM transfers WHERE reference = $1
	`
	err := r.db.QueryRow(ctx, query, reference).Scan(
		&t.Reference, &t.SourceNumber, &t.DestNumber, &t.Amount,
		&t.Memo, &t.State, &t.CreatedAt, &t.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListTransfersByAccount retrieves all transfers where the account is source
// or destination, newest first.
func (r *PostgresRepository) ListTransfersByAccount(ctx context.Context, number string) ([]domain.Transfer, error) {
	query := `
		SELECT reference, source_number, dest_number, amount, COALESCE(memo, ''), state, created_at, processed_at
		FROM transfers
		WHERE source_number = $1 OR dest_number = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		if err := rows.Scan(
			&t.Reference, &t.SourceNumber, &t.DestNumber, &t.Amount,
			&t.Memo, &t.State, &t.CreatedAt, &t.ProcessedAt,
		); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// ProcessTransfer runs the transfer processing algorithm in one database
// transaction. The debit, the credit, the state flip and the processed
// timestamp commit together or not at all. An insufficient balance is a
// recorded outcome: the FAILED state is committed before the conflict is
// returned.
func (r *PostgresRepository) ProcessTransfer(ctx context.Context, reference string, now time.Time) (*domain.Transfer, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var t domain.Transfer
	// Lock the transfer row first so concurrent process calls serialize.
	err = tx.QueryRow(ctx, `
		SELECT reference, source_number, dest_number, amount, COALESCE(memo, ''), state, created_at, processed_at
		FROM transfers WHERE reference = $1 FOR UPDATE
	`, reference).Scan(
		&t.Reference, &t.SourceNumber, &t.DestNumber, &t.Amount,
		&t.Memo, &t.State, &t.CreatedAt, &t.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}

	if t.State != domain.TransferPending {
		return &t, ErrAlreadyProcessed
	}

	// Lock both account rows in ascending number order to avoid deadlocks.
	first, second := t.SourceNumber, t.DestNumber
	if second < first {
		first, second = second, first
	}
	accounts := make(map[string]*domain.Account, 2)
	for _, number := range []string{first, second} {
		var a domain.Account
		err = tx.QueryRow(ctx, `
			SELECT id, number, owner_id, balance, kind, active, created_at
			FROM accounts WHERE number = $1 FOR UPDATE
		`, number).Scan(&a.ID, &a.Number, &a.OwnerID, &a.Balance, &a.Kind, &a.Active, &a.CreatedAt)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, number)
			}
			return nil, err
		}
		accounts[number] = &a
	}

	source := accounts[t.SourceNumber]
	if source.Balance.Cmp(t.Amount) < 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE transfers SET state = $1, processed_at = $2 WHERE reference = $3`,
			domain.TransferFailed, now, reference,
		); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		t.State = domain.TransferFailed
		t.ProcessedAt = &now
		return &t, domain.ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $1 WHERE number = $2`,
		t.Amount, t.SourceNumber,
	); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE number = $2`,
		t.Amount, t.DestNumber,
	); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE transfers SET state = $1, processed_at = $2 WHERE reference = $3`,
		domain.TransferCompleted, now, reference,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	t.State = domain.TransferCompleted
	t.ProcessedAt = &now
	return &t, nil
}

// CreateCard inserts a new credit card row.
func (r *PostgresRepository) CreateCard(ctx context.Context, card *domain.CreditCard) error {
	query := `
		INSERT INTO credit_cards (id, owner_id, full_number, last4, brand, cvc, expiry, credit_limit, available, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		card.ID, card.OwnerID, card.FullNumber, card.Last4, card.Brand,
		card.CVC, card.Expiry, card.Limit, card.Available, card.State, card.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateIdentifier
	}
	return err
}

const cardColumns = `id, owner_id, full_number, last4, brand, cvc, expiry, credit_limit, available, state, created_at`

func scanCard(row pgx.Row) (*domain.CreditCard, error) {
	var card domain.CreditCard
	err := row.Scan(
		&card.ID, &card.OwnerID, &card.FullNumber, &card.Last4, &card.Brand,
		&card.CVC, &card.Expiry, &card.Limit, &card.Available, &card.State, &card.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

// FindCardByID retrieves a card by its public unique id.
func (r *PostgresRepository) FindCardByID(ctx context.Context, id uuid.UUID) (*domain.CreditCard, error) {
	return scanCard(r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM credit_cards WHERE id = $1`, id))
}

// FindCardByNumber retrieves a card by its full 16-digit number.
func (r *PostgresRepository) FindCardByNumber(ctx context.Context, fullNumber string) (*domain.CreditCard, error) {
	return scanCard(r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM credit_cards WHERE full_number = $1`, fullNumber))
}

// ListCardsByOwner retrieves all cards belonging to an owner, newest first.
func (r *PostgresRepository) ListCardsByOwner(ctx context.Context, ownerID string) ([]domain.CreditCard, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+cardColumns+` FROM credit_cards WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []domain.CreditCard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}
	return cards, rows.Err()
}

// OwnerHasOpenCard reports whether the owner already holds a card in a
// non-terminal state (ACTIVE or BLOCKED).
func (r *PostgresRepository) OwnerHasOpenCard(ctx context.Context, ownerID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM credit_cards WHERE owner_id = $1 AND state IN ($2, $3)
		)
	`, ownerID, domain.CardActive, domain.CardBlocked).Scan(&exists)
	return exists, err
}

// UpdateCardState performs a compare-and-set state transition.
func (r *PostgresRepository) UpdateCardState(ctx context.Context, id uuid.UUID, from, to domain.CardState) error {
	result, err := r.db.Exec(ctx,
		`UPDATE credit_cards SET state = $1 WHERE id = $2 AND state = $3`, to, id, from)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM credit_cards WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrCardNotFound
		}
		return ErrCardStateConflict
	}
	return nil
}

// SweepExpiredCards transitions every ACTIVE card past its expiry to EXPIRED
// and returns how many rows moved.
func (r *PostgresRepository) SweepExpiredCards(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx,
		`UPDATE credit_cards SET state = $1 WHERE state = $2 AND expiry < $3`,
		domain.CardExpired, domain.CardActive, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ChargeCard atomically reduces the card's available credit and inserts the
// PENDING transaction. The card state and available credit are re-checked
// under the row lock so two concurrent charges cannot both spend the same
// credit.
func (r *PostgresRepository) ChargeCard(ctx context.Context, cardTx *domain.CardTransaction, now time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var state domain.CardState
	var available decimal.Decimal
	var expiry time.Time
	err = tx.QueryRow(ctx,
		`SELECT state, available, expiry FROM credit_cards WHERE id = $1 FOR UPDATE`,
		cardTx.CardID,
	).Scan(&state, &available, &expiry)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrCardNotFound
		}
		return err
	}

	if state == domain.CardActive && expiry.Before(now) {
		// Lazy expiry under the lock; commit the transition, reject the charge.
		if _, err := tx.Exec(ctx,
			`UPDATE credit_cards SET state = $1 WHERE id = $2`, domain.CardExpired, cardTx.CardID); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		return domain.ErrCardNotActive
	}
	if state != domain.CardActive {
		return domain.ErrCardNotActive
	}
	if available.Cmp(cardTx.Amount) < 0 {
		return domain.ErrInsufficientCredit
	}

	if _, err := tx.Exec(ctx,
		`UPDATE credit_cards SET available = available - $1 WHERE id = $2`,
		cardTx.Amount, cardTx.CardID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO card_transactions (id, card_id, amount, state, charged_at, collected_at, dest_account_number, description)
		VALUES ($1, $2, $3, $4, $5, NULL, NULL, $6)
	`, cardTx.ID, cardTx.CardID, cardTx.Amount, domain.TransactionPending, now, cardTx.Description); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	cardTx.State = domain.TransactionPending
	cardTx.ChargedAt = now
	return nil
}

// CollectTransaction atomically flips a PENDING transaction to COLLECTED and
// credits the destination account by the transaction amount. Collection
// never touches the card; the charge already reduced its available credit.
func (r *PostgresRepository) CollectTransaction(ctx context.Context, transactionID uuid.UUID, destNumber string, now time.Time) (*domain.CardTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var t domain.CardTransaction
	err = tx.QueryRow(ctx, `
		SELECT id, card_id, amount, state, charged_at, collected_at, dest_account_number, COALESCE(description, '')
		FROM card_transactions WHERE id = $1 FOR UPDATE
	`, transactionID).Scan(
		&t.ID, &t.CardID, &t.Amount, &t.State, &t.ChargedAt,
		&t.CollectedAt, &t.DestAccountNumber, &t.Description,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	if t.State != domain.TransactionPending {
		return &t, ErrTransactionNotPending
	}

	var active bool
	err = tx.QueryRow(ctx,
		`SELECT active FROM accounts WHERE number = $1 FOR UPDATE`, destNumber).Scan(&active)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if !active {
		return nil, ErrAccountInactive
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE number = $2`,
		t.Amount, destNumber,
	); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE card_transactions SET state = $1, collected_at = $2, dest_account_number = $3 WHERE id = $4
	`, domain.TransactionCollected, now, destNumber, transactionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	t.State = domain.TransactionCollected
	t.CollectedAt = &now
	t.DestAccountNumber = &destNumber
	return &t, nil
}

// FindCardTransactionByID retrieves a card transaction by id.
func (r *PostgresRepository) FindCardTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.CardTransaction, error) {
	var t domain.CardTransaction
	err := r.db.QueryRow(ctx, `
		SELECT id, card_id, amount, state, charged_at, collected_at, dest_account_number, COALESCE(description, '')
		FROM card_transactions WHERE id = $1
	`, transactionID).Scan(
		&t.ID, &t.CardID, &t.Amount, &t.State, &t.ChargedAt,
		&t.CollectedAt, &t.DestAccountNumber, &t.Description,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

// AccountNumberExists reports whether an account already holds the number.
func (r *PostgresRepository) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE number = $1)`, number).Scan(&exists)
	return exists, err
}

// CardNumberExists reports whether a card already holds the full number.
func (r *PostgresRepository) CardNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM credit_cards WHERE full_number = $1)`, number).Scan(&exists)
	return exists, err
}

// TransferReferenceExists reports whether a transfer already holds the reference.
func (r *PostgresRepository) TransferReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transfers WHERE reference = $1)`, reference).Scan(&exists)
	return exists, err
}

// Compile-time check: ensure PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)

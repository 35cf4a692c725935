/**
 * @description
 * This file contains the core business logic for the ledger service. The
 * `Service` struct orchestrates all account, transfer and card operations,
 * coordinating between the database repository, the identifier generator and
 * the message broker.
 *
 * Key features:
 * - Opens accounts with a seeded starting balance and a generated number.
 * - Creates and processes transfers atomically through the repository.
 * - Issues credit cards (one open card per owner) and runs the charge /
 *   collect workflow.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For transaction ids.
 * - github.com/shopspring/decimal: For exact money arithmetic.
 * - internal/domain, internal/store, internal/identifier: Domain models,
 *   data access and number generation.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/homebanking/ledger-service/internal/domain"
	"github.com/homebanking/ledger-service/internal/identifier"
	"github.com/homebanking/ledger-service/internal/store"
	"github.com/homebanking/ledger-service/pkg/rabbitmq"
)

// Config carries the business parameters the service operates under.
type Config struct {
	SeedBalance          decimal.Decimal
	DefaultCardLimit     decimal.Decimal
	MinCardLimit         decimal.Decimal
	MaxCardLimit         decimal.Decimal
	CardExpiryYears      int
	ChargeRatePerMinute  int
	CollectRatePerMinute int
}

// Service provides the core business logic for the ledger.
type Service struct {
	repo     store.Repository
	gen      *identifier.Generator
	producer rabbitmq.Publisher
	limiter  *RedisRateLimiter
	cfg      Config
	now      func() time.Time
}

// NewService creates a new ledger service instance. The limiter may be nil, in
// which case charge and collect are not rate limited.
func NewService(repo store.Repository, gen *identifier.Generator, producer rabbitmq.Publisher, limiter *RedisRateLimiter, cfg Config) *Service {
	return &Service{
		repo:     repo,
		gen:      gen,
		producer: producer,
		limiter:  limiter,
		cfg:      cfg,
		now:      time.Now,
	}
}

// OpenAccount creates a new account for ownerID with a freshly generated
// number and the configured seed balance.
func (s *Service) OpenAccount(ctx context.Context, ownerID string, kind domain.AccountKind) (*domain.Account, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAccountKind, kind)
	}

	number, err := s.gen.AccountNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account number: %w", err)
	}

	account := &domain.Account{
		ID:        uuid.New(),
		Number:    number,
		OwnerID:   ownerID,
		Balance:   s.cfg.SeedBalance,
		Kind:      kind,
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	log.Printf("level=info component=service msg=\"account opened\" number=%s owner=%s kind=%s", account.Number, ownerID, kind)
	return account, nil
}

// GetAccount returns the account with the given number.
func (s *Service) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	return s.repo.FindAccountByNumber(ctx, number)
}

// DeactivateAccount marks an account inactive. Inactive accounts can no
// longer send or receive money but their history remains readable.
func (s *Service) DeactivateAccount(ctx context.Context, number string) (*domain.Account, error) {
	if err := s.repo.SetAccountActive(ctx, number, false); err != nil {
		return nil, err
	}
	log.Printf("level=info component=service msg=\"account deactivated\" number=%s", number)
	return s.repo.FindAccountByNumber(ctx, number)
}

// ListTransfersForAccount returns every transfer where the account is either
// side, newest first.
func (s *Service) ListTransfersForAccount(ctx context.Context, number string) ([]domain.Transfer, error) {
	if _, err := s.repo.FindAccountByNumber(ctx, number); err != nil {
		return nil, err
	}
	return s.repo.ListTransfersByAccount(ctx, number)
}

// CreateTransfer validates, records and processes a transfer between two
// accounts. The returned transfer is in a terminal state: COMPLETED on
// success, FAILED when the source balance does not cover the amount (the
// failed attempt is recorded and the error returned).
func (s *Service) CreateTransfer(ctx context.Context, sourceNumber, destNumber string, amount decimal.Decimal, memo string) (*domain.Transfer, error) {
	if sourceNumber == destNumber {
		return nil, ErrSameAccount
	}
	if _, err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	source, err := s.repo.FindAccountByNumber(ctx, sourceNumber)
	if err != nil {
		return nil, fmt.Errorf("source account: %w", err)
	}
	if !source.Active {
		return nil, fmt.Errorf("source account: %w", store.ErrAccountInactive)
	}
	dest, err := s.repo.FindAccountByNumber(ctx, destNumber)
	if err != nil {
		return nil, fmt.Errorf("destination account: %w", err)
	}
	if !dest.Active {
		return nil, fmt.Errorf("destination account: %w", store.ErrAccountInactive)
	}

	reference, err := s.gen.TransferReference(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate transfer reference: %w", err)
	}

	transfer := &domain.Transfer{
		Reference:    reference,
		SourceNumber: sourceNumber,
		DestNumber:   destNumber,
		Amount:       amount,
		Memo:         memo,
		State:        domain.TransferPending,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("failed to create transfer record: %w", err)
	}

	return s.ProcessTransfer(ctx, reference)
}

// ProcessTransfer moves a PENDING transfer to a terminal state, debiting and
// crediting in a single repository transaction. It is safe to call at most
// once per transfer; a second call reports the already-processed conflict.
func (s *Service) ProcessTransfer(ctx context.Context, reference string) (*domain.Transfer, error) {
	processed, err := s.repo.ProcessTransfer(ctx, reference, s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) && processed != nil {
			log.Printf("level=warn component=service msg=\"transfer failed\" reference=%s reason=insufficient_funds", reference)
			s.publishTransferEvent(ctx, rabbitmq.RouteTransferFailed, processed)
			return processed, err
		}
		return processed, err
	}

	log.Printf("level=info component=service msg=\"transfer completed\" reference=%s amount=%s", reference, domain.FormatAmount(processed.Amount))
	s.publishTransferEvent(ctx, rabbitmq.RouteTransferCompleted, processed)
	return processed, nil
}

// GetTransfer returns the transfer with the given reference.
func (s *Service) GetTransfer(ctx context.Context, reference string) (*domain.Transfer, error) {
	return s.repo.FindTransferByReference(ctx, reference)
}

// IssueCard creates a credit card for ownerID. An owner may hold at most one
// card that is not in a terminal state. A zero limit selects the configured
// default.
func (s *Service) IssueCard(ctx context.Context, ownerID string, brand domain.CardBrand, limit decimal.Decimal) (*domain.CreditCard, error) {
	if !brand.Valid() {
		return nil, ErrInvalidBrand
	}
	if limit.IsZero() {
		limit = s.cfg.DefaultCardLimit
	}
	if limit.LessThan(s.cfg.MinCardLimit) || limit.GreaterThan(s.cfg.MaxCardLimit) {
		return nil, ErrLimitOutOfRange
	}

	open, err := s.repo.OwnerHasOpenCard(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing cards: %w", err)
	}
	if open {
		return nil, ErrCardPolicyViolation
	}

	fullNumber, err := s.gen.CardNumber(ctx, brand)
	if err != nil {
		return nil, fmt.Errorf("failed to generate card number: %w", err)
	}

	now := s.now().UTC()
	card := &domain.CreditCard{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		FullNumber: fullNumber,
		Last4:      fullNumber[len(fullNumber)-4:],
		Brand:      brand,
		CVC:        s.gen.CVC(brand),
		Expiry:     now.AddDate(s.cfg.CardExpiryYears, 0, 0),
		Limit:      limit,
		Available:  limit,
		State:      domain.CardActive,
		CreatedAt:  now,
	}
	if err := s.repo.CreateCard(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}

	log.Printf("level=info component=service msg=\"card issued\" card_id=%s owner=%s brand=%s last4=%s", card.ID, ownerID, brand, card.Last4)
	s.publishCardEvent(ctx, rabbitmq.RouteCardIssued, card, decimal.Decimal{}, nil)
	return card, nil
}

// GetCard returns the card with the given id, refreshing its expiry state on
// read so a past-expiry ACTIVE card is reported (and stored) as EXPIRED.
func (s *Service) GetCard(ctx context.Context, id uuid.UUID) (*domain.CreditCard, error) {
	card, err := s.repo.FindCardByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.refreshCardExpiry(ctx, card)
}

// FindCardByNumber returns the card with the given full number.
func (s *Service) FindCardByNumber(ctx context.Context, fullNumber string) (*domain.CreditCard, error) {
	card, err := s.repo.FindCardByNumber(ctx, fullNumber)
	if err != nil {
		return nil, err
	}
	return s.refreshCardExpiry(ctx, card)
}

// ListCards returns all cards held by ownerID, newest first.
func (s *Service) ListCards(ctx context.Context, ownerID string) ([]domain.CreditCard, error) {
	cards, err := s.repo.ListCardsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	for i := range cards {
		if cards[i].RefreshExpiry(now) {
			if err := s.repo.UpdateCardState(ctx, cards[i].ID, domain.CardActive, domain.CardExpired); err != nil && !errors.Is(err, store.ErrCardStateConflict) {
				log.Printf("level=warn component=service msg=\"failed to persist expiry\" card_id=%s err=%v", cards[i].ID, err)
			}
		}
	}
	return cards, nil
}

// BlockCard transitions an ACTIVE card to BLOCKED.
func (s *Service) BlockCard(ctx context.Context, id uuid.UUID) (*domain.CreditCard, error) {
	card, err := s.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := card.Block(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCardState(ctx, id, domain.CardActive, domain.CardBlocked); err != nil {
		return nil, err
	}
	log.Printf("level=info component=service msg=\"card blocked\" card_id=%s", id)
	return card, nil
}

// UnblockCard transitions a BLOCKED card back to ACTIVE, unless its expiry has
// passed while blocked, in which case it becomes EXPIRED.
func (s *Service) UnblockCard(ctx context.Context, id uuid.UUID) (*domain.CreditCard, error) {
	card, err := s.repo.FindCardByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if card.State == domain.CardBlocked && card.IsExpired(now) {
		if err := s.repo.UpdateCardState(ctx, id, domain.CardBlocked, domain.CardExpired); err != nil {
			return nil, err
		}
		card.State = domain.CardExpired
		return card, domain.ErrCardExpired
	}
	if err := card.Unblock(now); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCardState(ctx, id, domain.CardBlocked, domain.CardActive); err != nil {
		return nil, err
	}
	log.Printf("level=info component=service msg=\"card unblocked\" card_id=%s", id)
	return card, nil
}

// ChargeCard reserves amount against the card's available credit and records a
// PENDING card transaction. The reservation and the record are one repository
// transaction.
func (s *Service) ChargeCard(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal, description string) (*domain.CardTransaction, error) {
	if _, err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if err := s.consumeRateLimit(ctx, "charge", cardID.String(), s.cfg.ChargeRatePerMinute); err != nil {
		return nil, err
	}

	cardTx := &domain.CardTransaction{
		ID:          s.gen.TransactionID(),
		CardID:      cardID,
		Amount:      amount,
		State:       domain.TransactionPending,
		Description: description,
	}
	if err := s.repo.ChargeCard(ctx, cardTx, s.now().UTC()); err != nil {
		return nil, err
	}

	log.Printf("level=info component=service msg=\"card charged\" card_id=%s transaction_id=%s amount=%s", cardID, cardTx.ID, domain.FormatAmount(amount))
	if s.producer != nil {
		if card, cardErr := s.repo.FindCardByID(ctx, cardID); cardErr == nil {
			s.publishCardEvent(ctx, rabbitmq.RouteCardCharged, card, amount, &cardTx.ID)
		}
	}
	return cardTx, nil
}

// CollectTransaction credits a PENDING card transaction's amount to the
// destination account and marks it COLLECTED. Exactly-once: a second collect
// of the same transaction reports the not-pending conflict.
func (s *Service) CollectTransaction(ctx context.Context, transactionID uuid.UUID, destNumber string) (*domain.CardTransaction, error) {
	if err := s.consumeRateLimit(ctx, "collect", transactionID.String(), s.cfg.CollectRatePerMinute); err != nil {
		return nil, err
	}

	collected, err := s.repo.CollectTransaction(ctx, transactionID, destNumber, s.now().UTC())
	if err != nil {
		return collected, err
	}

	log.Printf("level=info component=service msg=\"transaction collected\" transaction_id=%s dest=%s amount=%s", transactionID, destNumber, domain.FormatAmount(collected.Amount))
	if s.producer != nil {
		s.producer.Publish(ctx, rabbitmq.LedgerExchange, rabbitmq.RouteTransactionCollected, rabbitmq.CollectEvent{
			TransactionID: collected.ID,
			CardID:        collected.CardID,
			DestNumber:    destNumber,
			Amount:        domain.FormatAmount(collected.Amount),
			Timestamp:     s.now().UTC(),
		})
	}
	return collected, nil
}

// GetTransaction returns the card transaction with the given id.
func (s *Service) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.CardTransaction, error) {
	return s.repo.FindCardTransactionByID(ctx, transactionID)
}

// SweepExpiredCards transitions every ACTIVE card past its expiry to EXPIRED
// and returns how many were swept. Called on a schedule.
func (s *Service) SweepExpiredCards(ctx context.Context) (int64, error) {
	swept, err := s.repo.SweepExpiredCards(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired cards: %w", err)
	}
	if swept > 0 {
		log.Printf("level=info component=service msg=\"expired cards swept\" count=%d", swept)
	}
	return swept, nil
}

// refreshCardExpiry lazily persists the ACTIVE→EXPIRED transition when a read
// observes a past-expiry card.
func (s *Service) refreshCardExpiry(ctx context.Context, card *domain.CreditCard) (*domain.CreditCard, error) {
	if card.RefreshExpiry(s.now().UTC()) {
		if err := s.repo.UpdateCardState(ctx, card.ID, domain.CardActive, domain.CardExpired); err != nil && !errors.Is(err, store.ErrCardStateConflict) {
			log.Printf("level=warn component=service msg=\"failed to persist expiry\" card_id=%s err=%v", card.ID, err)
		}
	}
	return card, nil
}

func (s *Service) consumeRateLimit(ctx context.Context, scope, subject string, limit int) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, scope, subject, limit, time.Minute)
	if err != nil {
		// Limiter outages must not take the payment path down.
		log.Printf("level=warn component=service msg=\"rate limiter unavailable\" scope=%s err=%v", scope, err)
		return nil
	}
	if count > limit {
		return fmt.Errorf("%w: retry in %ds", ErrRateLimited, retryAfter)
	}
	return nil
}

func (s *Service) publishTransferEvent(ctx context.Context, route string, transfer *domain.Transfer) {
	if s.producer == nil {
		return
	}
	s.producer.Publish(ctx, rabbitmq.LedgerExchange, route, rabbitmq.TransferEvent{
		Reference:    transfer.Reference,
		SourceNumber: transfer.SourceNumber,
		DestNumber:   transfer.DestNumber,
		Amount:       domain.FormatAmount(transfer.Amount),
		State:        string(transfer.State),
		Timestamp:    s.now().UTC(),
	})
}

func (s *Service) publishCardEvent(ctx context.Context, route string, card *domain.CreditCard, amount decimal.Decimal, transactionID *uuid.UUID) {
	if s.producer == nil {
		return
	}
	event := rabbitmq.CardEvent{
		CardID:        card.ID,
		OwnerID:       card.OwnerID,
		Brand:         string(card.Brand),
		Last4:         card.Last4,
		TransactionID: transactionID,
		Timestamp:     s.now().UTC(),
	}
	if !amount.IsZero() {
		event.Amount = domain.FormatAmount(amount)
	}
	s.producer.Publish(ctx, rabbitmq.LedgerExchange, route, event)
}

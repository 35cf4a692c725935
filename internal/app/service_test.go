package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/homebanking/ledger-service/internal/domain"
	"github.com/homebanking/ledger-service/internal/identifier"
	"github.com/homebanking/ledger-service/internal/store"
)

func newTestService() (*Service, *store.MemoryRepository) {
	repo := store.NewMemoryRepository()
	gen := identifier.NewGenerator(repo)
	svc := NewService(repo, gen, nil, nil, Config{
		SeedBalance:          decimal.RequireFromString("1000.00"),
		DefaultCardLimit:     decimal.RequireFromString("50000.00"),
		MinCardLimit:         decimal.RequireFromString("10000.00"),
		MaxCardLimit:         decimal.RequireFromString("500000.00"),
		CardExpiryYears:      3,
		ChargeRatePerMinute:  0,
		CollectRatePerMinute: 0,
	})
	return svc, repo
}

func mustOpenAccount(t *testing.T, svc *Service, ownerID string) *domain.Account {
	t.Helper()
	account, err := svc.OpenAccount(context.Background(), ownerID, domain.AccountSavings)
	if err != nil {
		t.Fatalf("OpenAccount failed: %v", err)
	}
	return account
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestOpenAccountSeedsBalance(t *testing.T) {
	svc, _ := newTestService()

	account := mustOpenAccount(t, svc, "alice")
	if got := domain.FormatAmount(account.Balance); got != "1000.00" {
		t.Errorf("seed balance = %s, want 1000.00", got)
	}
	if len(account.Number) != 16 {
		t.Errorf("account number length = %d, want 16", len(account.Number))
	}
	if !account.Active {
		t.Error("new account is not active")
	}
}

func TestOpenAccountRejectsUnknownKind(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.OpenAccount(context.Background(), "alice", domain.AccountKind("PREMIUM"))
	if !errors.Is(err, ErrInvalidAccountKind) {
		t.Fatalf("OpenAccount error = %v, wanted ErrInvalidAccountKind", err)
	}
	if Kind(err) != KindValidation {
		t.Errorf("Kind = %v, want KindValidation", Kind(err))
	}
}

func TestCreateTransferCompletes(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	source := mustOpenAccount(t, svc, "alice")
	dest := mustOpenAccount(t, svc, "bob")

	transfer, err := svc.CreateTransfer(ctx, source.Number, dest.Number, amount("300.00"), "rent")
	if err != nil {
		t.Fatalf("CreateTransfer failed: %v", err)
	}
	if transfer.State != domain.TransferCompleted {
		t.Fatalf("transfer state = %s, want COMPLETED", transfer.State)
	}
	if transfer.ProcessedAt == nil {
		t.Error("completed transfer has no processed timestamp")
	}

	gotSource, _ := svc.GetAccount(ctx, source.Number)
	gotDest, _ := svc.GetAccount(ctx, dest.Number)
	if got := domain.FormatAmount(gotSource.Balance); got != "700.00" {
		t.Errorf("source balance = %s, want 700.00", got)
	}
	if got := domain.FormatAmount(gotDest.Balance); got != "1300.00" {
		t.Errorf("dest balance = %s, want 1300.00", got)
	}
}

func TestCreateTransferInsufficientFundsRecordsFailure(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	source := mustOpenAccount(t, svc, "alice")
	dest := mustOpenAccount(t, svc, "bob")

	transfer, err := svc.CreateTransfer(ctx, source.Number, dest.Number, amount("1000.01"), "")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("CreateTransfer error = %v, wanted ErrInsufficientFunds", err)
	}
	if transfer == nil {
		t.Fatal("failed transfer was not returned")
	}
	if transfer.State != domain.TransferFailed {
		t.Fatalf("transfer state = %s, want FAILED", transfer.State)
	}

	// The failed attempt is a recorded outcome, fetchable afterwards.
	stored, err := svc.GetTransfer(ctx, transfer.Reference)
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}
	if stored.State != domain.TransferFailed {
		t.Errorf("stored state = %s, want FAILED", stored.State)
	}

	// No money moved.
	gotSource, _ := svc.GetAccount(ctx, source.Number)
	gotDest, _ := svc.GetAccount(ctx, dest.Number)
	if got := domain.FormatAmount(gotSource.Balance); got != "1000.00" {
		t.Errorf("source balance = %s, want 1000.00", got)
	}
	if got := domain.FormatAmount(gotDest.Balance); got != "1000.00" {
		t.Errorf("dest balance = %s, want 1000.00", got)
	}
}

func TestCreateTransferSameAccount(t *testing.T) {
	svc, _ := newTestService()
	source := mustOpenAccount(t, svc, "alice")

	_, err := svc.CreateTransfer(context.Background(), source.Number, source.Number, amount("10.00"), "")
	if !errors.Is(err, ErrSameAccount) {
		t.Fatalf("CreateTransfer error = %v, wanted ErrSameAccount", err)
	}
}

func TestCreateTransferUnknownDestination(t *testing.T) {
	svc, _ := newTestService()
	source := mustOpenAccount(t, svc, "alice")

	_, err := svc.CreateTransfer(context.Background(), source.Number, "0000000000000000", amount("10.00"), "")
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("CreateTransfer error = %v, wanted ErrAccountNotFound", err)
	}
	if Kind(err) != KindNotFound {
		t.Errorf("Kind = %v, want KindNotFound", Kind(err))
	}
}

func TestProcessTransferExactlyOnce(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	source := mustOpenAccount(t, svc, "alice")
	dest := mustOpenAccount(t, svc, "bob")

	pending := &domain.Transfer{
		Reference:    "TRF20260901ABCD1234",
		SourceNumber: source.Number,
		DestNumber:   dest.Number,
		Amount:       amount("100.00"),
		State:        domain.TransferPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateTransfer(ctx, pending); err != nil {
		t.Fatalf("CreateTransfer failed: %v", err)
	}

	if _, err := svc.ProcessTransfer(ctx, pending.Reference); err != nil {
		t.Fatalf("first ProcessTransfer failed: %v", err)
	}
	if _, err := svc.ProcessTransfer(ctx, pending.Reference); !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("second ProcessTransfer error = %v, wanted ErrAlreadyProcessed", err)
	}

	// Processed exactly once: the debit applied a single time.
	gotSource, _ := svc.GetAccount(ctx, source.Number)
	if got := domain.FormatAmount(gotSource.Balance); got != "900.00" {
		t.Errorf("source balance = %s, want 900.00", got)
	}
}

func TestListTransfersForAccount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	source := mustOpenAccount(t, svc, "alice")
	dest := mustOpenAccount(t, svc, "bob")
	other := mustOpenAccount(t, svc, "carol")

	if _, err := svc.CreateTransfer(ctx, source.Number, dest.Number, amount("10.00"), ""); err != nil {
		t.Fatalf("CreateTransfer failed: %v", err)
	}
	if _, err := svc.CreateTransfer(ctx, dest.Number, other.Number, amount("20.00"), ""); err != nil {
		t.Fatalf("CreateTransfer failed: %v", err)
	}

	transfers, err := svc.ListTransfersForAccount(ctx, dest.Number)
	if err != nil {
		t.Fatalf("ListTransfersForAccount failed: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("transfer count = %d, want 2", len(transfers))
	}

	transfers, err = svc.ListTransfersForAccount(ctx, other.Number)
	if err != nil {
		t.Fatalf("ListTransfersForAccount failed: %v", err)
	}
	if len(transfers) != 1 {
		t.Errorf("transfer count = %d, want 1", len(transfers))
	}
}

func TestIssueCardDefaults(t *testing.T) {
	svc, _ := newTestService()

	card, err := svc.IssueCard(context.Background(), "alice", domain.BrandCabal, decimal.Zero)
	if err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}
	if got := domain.FormatAmount(card.Limit); got != "50000.00" {
		t.Errorf("limit = %s, want default 50000.00", got)
	}
	if !card.Available.Equal(card.Limit) {
		t.Errorf("available = %s, want full limit", card.Available)
	}
	if card.State != domain.CardActive {
		t.Errorf("state = %s, want ACTIVE", card.State)
	}
	if len(card.FullNumber) != 16 {
		t.Errorf("card number length = %d, want 16", len(card.FullNumber))
	}
	if len(card.CVC) != 3 {
		t.Errorf("cvc length = %d, want 3", len(card.CVC))
	}
	wantExpiry := time.Now().AddDate(3, 0, 0)
	if card.Expiry.Before(wantExpiry.Add(-time.Hour)) || card.Expiry.After(wantExpiry.Add(time.Hour)) {
		t.Errorf("expiry = %v, want about %v", card.Expiry, wantExpiry)
	}
}

func TestIssueCardOnePerOwner(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.IssueCard(ctx, "alice", domain.BrandAmex, decimal.Zero)
	if err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}
	if _, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, decimal.Zero); !errors.Is(err, ErrCardPolicyViolation) {
		t.Fatalf("second IssueCard error = %v, wanted ErrCardPolicyViolation", err)
	}

	// A blocked card still counts as open.
	if _, err := svc.BlockCard(ctx, first.ID); err != nil {
		t.Fatalf("BlockCard failed: %v", err)
	}
	if _, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, decimal.Zero); !errors.Is(err, ErrCardPolicyViolation) {
		t.Fatalf("IssueCard with blocked card error = %v, wanted ErrCardPolicyViolation", err)
	}
}

func TestIssueCardAfterTerminalCard(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	first, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, decimal.Zero)
	if err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}
	if err := repo.UpdateCardState(ctx, first.ID, domain.CardActive, domain.CardCancelled); err != nil {
		t.Fatalf("UpdateCardState failed: %v", err)
	}

	if _, err := svc.IssueCard(ctx, "alice", domain.BrandAmex, decimal.Zero); err != nil {
		t.Fatalf("IssueCard after cancellation failed: %v", err)
	}
}

func TestIssueCardValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.IssueCard(ctx, "alice", domain.CardBrand("VISA"), decimal.Zero); !errors.Is(err, ErrInvalidBrand) {
		t.Errorf("unknown brand error = %v, wanted ErrInvalidBrand", err)
	}
	if _, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, amount("9999.99")); !errors.Is(err, ErrLimitOutOfRange) {
		t.Errorf("below-min limit error = %v, wanted ErrLimitOutOfRange", err)
	}
	if _, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, amount("500000.01")); !errors.Is(err, ErrLimitOutOfRange) {
		t.Errorf("above-max limit error = %v, wanted ErrLimitOutOfRange", err)
	}
}

func TestIssueCardAmexCVC(t *testing.T) {
	svc, _ := newTestService()

	card, err := svc.IssueCard(context.Background(), "alice", domain.BrandAmex, decimal.Zero)
	if err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}
	if len(card.CVC) != 4 {
		t.Errorf("AMEX cvc length = %d, want 4", len(card.CVC))
	}
}

func TestChargeAndCollectLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	dest := mustOpenAccount(t, svc, "merchant")

	card, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, decimal.Zero)
	if err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}

	transaction, err := svc.ChargeCard(ctx, card.ID, amount("1500.00"), "laptop")
	if err != nil {
		t.Fatalf("ChargeCard failed: %v", err)
	}
	if transaction.State != domain.TransactionPending {
		t.Fatalf("transaction state = %s, want PENDING", transaction.State)
	}

	// The charge reserves credit immediately.
	gotCard, _ := svc.GetCard(ctx, card.ID)
	if got := domain.FormatAmount(gotCard.Available); got != "48500.00" {
		t.Errorf("available after charge = %s, want 48500.00", got)
	}

	collected, err := svc.CollectTransaction(ctx, transaction.ID, dest.Number)
	if err != nil {
		t.Fatalf("CollectTransaction failed: %v", err)
	}
	if collected.State != domain.TransactionCollected {
		t.Fatalf("transaction state = %s, want COLLECTED", collected.State)
	}
	if collected.CollectedAt == nil {
		t.Error("collected transaction has no collect timestamp")
	}
	if collected.DestAccountNumber == nil || *collected.DestAccountNumber != dest.Number {
		t.Error("collected transaction does not record the destination account")
	}

	// Collect credits only the destination account.
	gotDest, _ := svc.GetAccount(ctx, dest.Number)
	if got := domain.FormatAmount(gotDest.Balance); got != "2500.00" {
		t.Errorf("dest balance after collect = %s, want 2500.00", got)
	}

	// Exactly once.
	if _, err := svc.CollectTransaction(ctx, transaction.ID, dest.Number); !errors.Is(err, store.ErrTransactionNotPending) {
		t.Fatalf("second collect error = %v, wanted ErrTransactionNotPending", err)
	}
	gotDest, _ = svc.GetAccount(ctx, dest.Number)
	if got := domain.FormatAmount(gotDest.Balance); got != "2500.00" {
		t.Errorf("dest balance after replay = %s, want 2500.00", got)
	}
}

func TestChargeCardInsufficientCredit(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	card, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, amount("10000.00"))
	if err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}
	if _, err := svc.ChargeCard(ctx, card.ID, amount("10000.01"), ""); !errors.Is(err, domain.ErrInsufficientCredit) {
		t.Fatalf("ChargeCard error = %v, wanted ErrInsufficientCredit", err)
	}

	gotCard, _ := svc.GetCard(ctx, card.ID)
	if got := domain.FormatAmount(gotCard.Available); got != "10000.00" {
		t.Errorf("available after failed charge = %s, want 10000.00", got)
	}
}

func TestChargeCardRequiresActive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	card, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, decimal.Zero)
	if err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}
	if _, err := svc.BlockCard(ctx, card.ID); err != nil {
		t.Fatalf("BlockCard failed: %v", err)
	}
	if _, err := svc.ChargeCard(ctx, card.ID, amount("10.00"), ""); !errors.Is(err, domain.ErrCardNotActive) {
		t.Fatalf("ChargeCard on blocked card error = %v, wanted ErrCardNotActive", err)
	}
}

func TestChargeCardLazyExpiry(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	card, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, decimal.Zero)
	if err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}

	// Move the service clock past the card's expiry.
	svc.now = func() time.Time { return time.Now().AddDate(4, 0, 0) }

	if _, err := svc.ChargeCard(ctx, card.ID, amount("10.00"), ""); !errors.Is(err, domain.ErrCardNotActive) {
		t.Fatalf("ChargeCard past expiry error = %v, wanted ErrCardNotActive", err)
	}

	// The expiry transition was persisted by the failed charge.
	gotCard, _ := svc.GetCard(ctx, card.ID)
	if gotCard.State != domain.CardExpired {
		t.Errorf("card state = %s, want EXPIRED", gotCard.State)
	}
}

func TestCollectToInactiveAccount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	dest := mustOpenAccount(t, svc, "merchant")

	card, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, decimal.Zero)
	if err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}
	transaction, err := svc.ChargeCard(ctx, card.ID, amount("100.00"), "")
	if err != nil {
		t.Fatalf("ChargeCard failed: %v", err)
	}

	if _, err := svc.DeactivateAccount(ctx, dest.Number); err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}
	if _, err := svc.CollectTransaction(ctx, transaction.ID, dest.Number); !errors.Is(err, store.ErrAccountInactive) {
		t.Fatalf("collect to inactive account error = %v, wanted ErrAccountInactive", err)
	}

	// The transaction stays PENDING and can still be collected elsewhere.
	stored, err := svc.GetTransaction(ctx, transaction.ID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if stored.State != domain.TransactionPending {
		t.Errorf("transaction state = %s, want PENDING", stored.State)
	}
}

func TestUnblockExpiredCard(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	card, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, decimal.Zero)
	if err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}
	if _, err := svc.BlockCard(ctx, card.ID); err != nil {
		t.Fatalf("BlockCard failed: %v", err)
	}

	svc.now = func() time.Time { return time.Now().AddDate(4, 0, 0) }

	got, err := svc.UnblockCard(ctx, card.ID)
	if !errors.Is(err, domain.ErrCardExpired) {
		t.Fatalf("UnblockCard past expiry error = %v, wanted ErrCardExpired", err)
	}
	if got.State != domain.CardExpired {
		t.Errorf("card state = %s, want EXPIRED", got.State)
	}
}

func TestSweepExpiredCards(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.IssueCard(ctx, "alice", domain.BrandCabal, decimal.Zero); err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}
	if _, err := svc.IssueCard(ctx, "bob", domain.BrandAmex, decimal.Zero); err != nil {
		t.Fatalf("IssueCard failed: %v", err)
	}

	// Nothing to sweep yet.
	swept, err := svc.SweepExpiredCards(ctx)
	if err != nil {
		t.Fatalf("SweepExpiredCards failed: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0", swept)
	}

	svc.now = func() time.Time { return time.Now().AddDate(4, 0, 0) }
	swept, err = svc.SweepExpiredCards(ctx)
	if err != nil {
		t.Fatalf("SweepExpiredCards failed: %v", err)
	}
	if swept != 2 {
		t.Fatalf("swept = %d, want 2", swept)
	}

	// Idempotent.
	swept, err = svc.SweepExpiredCards(ctx)
	if err != nil {
		t.Fatalf("SweepExpiredCards failed: %v", err)
	}
	if swept != 0 {
		t.Errorf("second sweep = %d, want 0", swept)
	}
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	a := mustOpenAccount(t, svc, "alice")
	b := mustOpenAccount(t, svc, "bob")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			svc.CreateTransfer(ctx, a.Number, b.Number, amount("10.00"), "")
		}()
		go func() {
			defer wg.Done()
			svc.CreateTransfer(ctx, b.Number, a.Number, amount("10.00"), "")
		}()
	}
	wg.Wait()

	gotA, _ := svc.GetAccount(ctx, a.Number)
	gotB, _ := svc.GetAccount(ctx, b.Number)
	total := gotA.Balance.Add(gotB.Balance)
	if got := domain.FormatAmount(total); got != "2000.00" {
		t.Errorf("total balance = %s, want 2000.00", got)
	}
}

func TestTransferToInactiveAccountRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	source := mustOpenAccount(t, svc, "alice")
	dest := mustOpenAccount(t, svc, "bob")

	if _, err := svc.DeactivateAccount(ctx, dest.Number); err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}
	if _, err := svc.CreateTransfer(ctx, source.Number, dest.Number, amount("10.00"), ""); !errors.Is(err, store.ErrAccountInactive) {
		t.Fatalf("CreateTransfer to inactive account error = %v, wanted ErrAccountInactive", err)
	}
}

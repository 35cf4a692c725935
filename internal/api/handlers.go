/**
 * @description
 * This file contains the HTTP handlers for the ledger service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * Amounts cross the HTTP boundary as decimal strings ("150.00") and are
 * validated before they reach the service.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/homebanking/ledger-service/internal/app"
	"github.com/homebanking/ledger-service/internal/domain"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

type openAccountRequest struct {
	OwnerID string `json:"owner_id"`
	Kind    string `json:"kind"`
}

type accountResponse struct {
	Number    string    `json:"number"`
	OwnerID   string    `json:"owner_id"`
	Balance   string    `json:"balance"`
	Kind      string    `json:"kind"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type createTransferRequest struct {
	SourceNumber string `json:"source_number"`
	DestNumber   string `json:"dest_number"`
	Amount       string `json:"amount"`
	Memo         string `json:"memo"`
}

type transferResponse struct {
	Reference    string     `json:"reference"`
	SourceNumber string     `json:"source_number"`
	DestNumber   string     `json:"dest_number"`
	Amount       string     `json:"amount"`
	Memo         string     `json:"memo,omitempty"`
	State        string     `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

type issueCardRequest struct {
	OwnerID string `json:"owner_id"`
	Brand   string `json:"brand"`
	Limit   string `json:"limit,omitempty"`
}

type cardResponse struct {
	ID           uuid.UUID `json:"id"`
	OwnerID      string    `json:"owner_id"`
	MaskedNumber string    `json:"masked_number"`
	Brand        string    `json:"brand"`
	Expiry       time.Time `json:"expiry"`
	Limit        string    `json:"limit"`
	Available    string    `json:"available"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
}

// issuedCardResponse is returned only from card issuance: the one time the
// full number and CVC are exposed to the caller.
type issuedCardResponse struct {
	cardResponse
	FullNumber string `json:"full_number"`
	CVC        string `json:"cvc"`
}

type chargeCardRequest struct {
	CardID      string `json:"card_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type collectRequest struct {
	TransactionID string `json:"transaction_id"`
	DestNumber    string `json:"dest_number"`
}

type transactionResponse struct {
	ID                uuid.UUID  `json:"id"`
	CardID            uuid.UUID  `json:"card_id"`
	Amount            string     `json:"amount"`
	State             string     `json:"state"`
	ChargedAt         time.Time  `json:"charged_at"`
	CollectedAt       *time.Time `json:"collected_at,omitempty"`
	DestAccountNumber *string    `json:"dest_account_number,omitempty"`
	Description       string     `json:"description,omitempty"`
}

func buildAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		Number:    a.Number,
		OwnerID:   a.OwnerID,
		Balance:   domain.FormatAmount(a.Balance),
		Kind:      string(a.Kind),
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
	}
}

func buildTransferResponse(t *domain.Transfer) transferResponse {
	return transferResponse{
		Reference:    t.Reference,
		SourceNumber: t.SourceNumber,
		DestNumber:   t.DestNumber,
		Amount:       domain.FormatAmount(t.Amount),
		Memo:         t.Memo,
		State:        string(t.State),
		CreatedAt:    t.CreatedAt,
		ProcessedAt:  t.ProcessedAt,
	}
}

func buildCardResponse(c *domain.CreditCard) cardResponse {
	return cardResponse{
		ID:           c.ID,
		OwnerID:      c.OwnerID,
		MaskedNumber: c.MaskedNumber(),
		Brand:        string(c.Brand),
		Expiry:       c.Expiry,
		Limit:        domain.FormatAmount(c.Limit),
		Available:    domain.FormatAmount(c.Available),
		State:        string(c.State),
		CreatedAt:    c.CreatedAt,
	}
}

func buildTransactionResponse(t *domain.CardTransaction) transactionResponse {
	return transactionResponse{
		ID:                t.ID,
		CardID:            t.CardID,
		Amount:            domain.FormatAmount(t.Amount),
		State:             string(t.State),
		ChargedAt:         t.ChargedAt,
		CollectedAt:       t.CollectedAt,
		DestAccountNumber: t.DestAccountNumber,
		Description:       t.Description,
	}
}

// OpenAccountHandler handles requests to open a new account.
func (h *LedgerHandlers) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		h.writeError(w, http.StatusBadRequest, "validation", "owner_id is required")
		return
	}

	account, err := h.service.OpenAccount(r.Context(), req.OwnerID, domain.AccountKind(req.Kind))
	if err != nil {
		h.handleServiceError(w, "open_account", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, buildAccountResponse(account))
}

// GetAccountHandler returns a single account by number.
func (h *LedgerHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	account, err := h.service.GetAccount(r.Context(), number)
	if err != nil {
		h.handleServiceError(w, "get_account", err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildAccountResponse(account))
}

// DeactivateAccountHandler marks an account inactive.
func (h *LedgerHandlers) DeactivateAccountHandler(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	account, err := h.service.DeactivateAccount(r.Context(), number)
	if err != nil {
		h.handleServiceError(w, "deactivate_account", err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildAccountResponse(account))
}

// ListAccountTransfersHandler returns all transfers touching an account.
func (h *LedgerHandlers) ListAccountTransfersHandler(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	transfers, err := h.service.ListTransfersForAccount(r.Context(), number)
	if err != nil {
		h.handleServiceError(w, "list_account_transfers", err)
		return
	}

	out := make([]transferResponse, 0, len(transfers))
	for i := range transfers {
		out = append(out, buildTransferResponse(&transfers[i]))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// CreateTransferHandler creates and processes a transfer between two accounts.
func (h *LedgerHandlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "Invalid request body")
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "amount must be a positive decimal with at most 2 fractional digits")
		return
	}

	transfer, err := h.service.CreateTransfer(r.Context(), req.SourceNumber, req.DestNumber, amount, req.Memo)
	if err != nil {
		// An insufficient-funds failure still records the transfer; include
		// the FAILED record so the caller can reference it.
		if errors.Is(err, domain.ErrInsufficientFunds) && transfer != nil {
			h.writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":    "conflict",
				"message":  err.Error(),
				"transfer": buildTransferResponse(transfer),
			})
			return
		}
		h.handleServiceError(w, "create_transfer", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, buildTransferResponse(transfer))
}

// GetTransferHandler returns a single transfer by reference.
func (h *LedgerHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	transfer, err := h.service.GetTransfer(r.Context(), reference)
	if err != nil {
		h.handleServiceError(w, "get_transfer", err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildTransferResponse(transfer))
}

// IssueCardHandler issues a new credit card for an owner.
func (h *LedgerHandlers) IssueCardHandler(w http.ResponseWriter, r *http.Request) {
	var req issueCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		h.writeError(w, http.StatusBadRequest, "validation", "owner_id is required")
		return
	}

	var limit decimal.Decimal
	if strings.TrimSpace(req.Limit) != "" {
		parsed, err := domain.ParseAmount(req.Limit)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "validation", "limit must be a positive decimal with at most 2 fractional digits")
			return
		}
		limit = parsed
	}

	card, err := h.service.IssueCard(r.Context(), req.OwnerID, domain.CardBrand(req.Brand), limit)
	if err != nil {
		h.handleServiceError(w, "issue_card", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, issuedCardResponse{
		cardResponse: buildCardResponse(card),
		FullNumber:   card.FullNumber,
		CVC:          card.CVC,
	})
}

// GetCardHandler returns a single card by its unique id.
func (h *LedgerHandlers) GetCardHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uniqueID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "Invalid card id")
		return
	}
	card, err := h.service.GetCard(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, "get_card", err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildCardResponse(card))
}

// FindCardByNumberHandler returns a card looked up by its full number.
func (h *LedgerHandlers) FindCardByNumberHandler(w http.ResponseWriter, r *http.Request) {
	fullNumber := chi.URLParam(r, "fullNumber")
	card, err := h.service.FindCardByNumber(r.Context(), fullNumber)
	if err != nil {
		h.handleServiceError(w, "find_card_by_number", err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildCardResponse(card))
}

// ListCardsHandler returns all cards for the owner given in the query string.
func (h *LedgerHandlers) ListCardsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if strings.TrimSpace(ownerID) == "" {
		h.writeError(w, http.StatusBadRequest, "validation", "owner query parameter is required")
		return
	}

	cards, err := h.service.ListCards(r.Context(), ownerID)
	if err != nil {
		h.handleServiceError(w, "list_cards", err)
		return
	}
	out := make([]cardResponse, 0, len(cards))
	for i := range cards {
		out = append(out, buildCardResponse(&cards[i]))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// BlockCardHandler blocks an active card.
func (h *LedgerHandlers) BlockCardHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uniqueID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "Invalid card id")
		return
	}
	card, err := h.service.BlockCard(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, "block_card", err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildCardResponse(card))
}

// UnblockCardHandler reactivates a blocked card.
func (h *LedgerHandlers) UnblockCardHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uniqueID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "Invalid card id")
		return
	}
	card, err := h.service.UnblockCard(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, "unblock_card", err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildCardResponse(card))
}

// ChargeCardHandler reserves an amount against a card and records a pending
// transaction.
func (h *LedgerHandlers) ChargeCardHandler(w http.ResponseWriter, r *http.Request) {
	var req chargeCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "Invalid request body")
		return
	}
	cardID, err := uuid.Parse(req.CardID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "Invalid card id")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "amount must be a positive decimal with at most 2 fractional digits")
		return
	}

	transaction, err := h.service.ChargeCard(r.Context(), cardID, amount, req.Description)
	if err != nil {
		h.handleServiceError(w, "charge_card", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, buildTransactionResponse(transaction))
}

// CollectTransactionHandler credits a pending card transaction into an
// account.
func (h *LedgerHandlers) CollectTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "Invalid request body")
		return
	}
	transactionID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "Invalid transaction id")
		return
	}

	transaction, err := h.service.CollectTransaction(r.Context(), transactionID, req.DestNumber)
	if err != nil {
		h.handleServiceError(w, "collect_transaction", err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildTransactionResponse(transaction))
}

// GetTransactionHandler returns a single card transaction by id.
func (h *LedgerHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "Invalid transaction id")
		return
	}
	transaction, err := h.service.GetTransaction(r.Context(), transactionID)
	if err != nil {
		h.handleServiceError(w, "get_transaction", err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildTransactionResponse(transaction))
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, kind, message string) {
	h.writeJSON(w, status, map[string]string{"error": kind, "message": message})
}

// handleServiceError classifies a service error and writes the matching
// HTTP status.
func (h *LedgerHandlers) handleServiceError(w http.ResponseWriter, endpoint string, err error) {
	kind := app.Kind(err)
	status, label := statusForKind(kind)
	if status == http.StatusInternalServerError {
		log.Printf("level=error component=api endpoint=%s msg=\"request failed\" err=%v", endpoint, err)
		h.writeError(w, status, label, "Internal server error")
		return
	}
	log.Printf("level=warn component=api endpoint=%s outcome=reject err=%v", endpoint, err)
	h.writeError(w, status, label, err.Error())
}

func statusForKind(kind app.ErrorKind) (int, string) {
	switch kind {
	case app.KindValidation:
		return http.StatusBadRequest, "validation"
	case app.KindNotFound:
		return http.StatusNotFound, "not_found"
	case app.KindConflict:
		return http.StatusConflict, "conflict"
	case app.KindState:
		return http.StatusUnprocessableEntity, "state"
	case app.KindRateLimited:
		return http.StatusTooManyRequests, "rate_limited"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

/**
 * @description
 * This file sets up the HTTP router for the ledger service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies standard middleware.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Post("/accounts", h.OpenAccountHandler)
	r.Get("/accounts/{number}", h.GetAccountHandler)
	r.Get("/accounts/{number}/transfers", h.ListAccountTransfersHandler)
	r.Post("/accounts/{number}/deactivate", h.DeactivateAccountHandler)

	r.Post("/transfers", h.CreateTransferHandler)
	r.Get("/transfers/{reference}", h.GetTransferHandler)

	r.Post("/cards", h.IssueCardHandler)
	r.Get("/cards", h.ListCardsHandler)
	r.Get("/cards/by-number/{fullNumber}", h.FindCardByNumberHandler)
	r.Get("/cards/{uniqueID}", h.GetCardHandler)
	r.Post("/cards/{uniqueID}/block", h.BlockCardHandler)
	r.Post("/cards/{uniqueID}/unblock", h.UnblockCardHandler)
	r.Post("/cards/charge", h.ChargeCardHandler)

	r.Post("/transactions/collect", h.CollectTransactionHandler)
	r.Get("/transactions/{id}", h.GetTransactionHandler)

	return r
}

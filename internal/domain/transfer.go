/**
 * @description
 * The Transfer entity: a unidirectional funds movement between two accounts,
 * identified publicly by a human-readable reference. A transfer is processed
 * exactly once; COMPLETED and FAILED are terminal, recorded outcomes.
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferState is the transfer lifecycle state.
type TransferState string

const (
	TransferPending   TransferState = "PENDING"
	TransferCompleted TransferState = "COMPLETED"
	TransferFailed    TransferState = "FAILED"
	TransferCancelled TransferState = "CANCELLED"
)

// Terminal reports whether the state admits no further processing.
func (s TransferState) Terminal() bool {
	return s != TransferPending
}

// Transfer maps to the `transfers` table. Source and destination are
// referenced by account number, never by embedded state.
type Transfer struct {
	Reference    string          `json:"reference"`
	SourceNumber string          `json:"source_account_number"`
	DestNumber   string          `json:"dest_account_number"`
	Amount       decimal.Decimal `json:"amount"`
	Memo         string          `json:"memo,omitempty"`
	State        TransferState   `json:"state"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
}

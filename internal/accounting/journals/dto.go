package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type lineRequest struct {
	AccountID   uuid.UUID       `json:"account_id"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type createRequest struct {
	Date        string        `json:"date"`
	Reference   string        `json:"reference"`
	Description string        `json:"description"`
	SourceID    string        `json:"source_id"`
	Lines       []lineRequest `json:"lines"`
}

type voidRequest struct {
	Reason string `json:"reason"`
}

type reverseRequest struct {
	Description string `json:"description"`
	Date        string `json:"date"`
}

// LineResponse is the wire form of a line item.
type LineResponse struct {
	AccountID   uuid.UUID `json:"account_id"`
	AccountCode string    `json:"account_code"`
	AccountName string    `json:"account_name"`
	Description string    `json:"description,omitempty"`
	Debit       string    `json:"debit"`
	Credit      string    `json:"credit"`
}

// EntryResponse is the wire form of a journal entry.
type EntryResponse struct {
	ID           uuid.UUID      `json:"id"`
	Number       string         `json:"number"`
	Date         string         `json:"date"`
	Reference    string         `json:"reference,omitempty"`
	SourceType   string         `json:"source_type"`
	SourceID     string         `json:"source_id"`
	Description  string         `json:"description,omitempty"`
	Status       string         `json:"status"`
	TotalDebits  string         `json:"total_debits"`
	TotalCredits string         `json:"total_credits"`
	PostedBy     string         `json:"posted_by,omitempty"`
	PostedAt     *time.Time     `json:"posted_at,omitempty"`
	VoidedAt     *time.Time     `json:"voided_at,omitempty"`
	VoidReason   string         `json:"void_reason,omitempty"`
	ReversalOf   *uuid.UUID     `json:"reversal_of,omitempty"`
	Lines        []LineResponse `json:"lines"`
}

// ToResponse converts an entry to its wire form.
func ToResponse(e JournalEntry) EntryResponse {
	out := EntryResponse{
		ID:           e.ID,
		Number:       e.Number,
		Date:         e.Date.Format(time.DateOnly),
		Reference:    e.Reference,
		SourceType:   string(e.SourceType),
		SourceID:     e.SourceID,
		Description:  e.Description,
		Status:       string(e.Status),
		TotalDebits:  e.TotalDebits.StringFixed(2),
		TotalCredits: e.TotalCredits.StringFixed(2),
		PostedBy:     e.PostedBy,
		PostedAt:     e.PostedAt,
		VoidedAt:     e.VoidedAt,
		VoidReason:   e.VoidReason,
		ReversalOf:   e.ReversalOf,
		Lines:        make([]LineResponse, 0, len(e.Lines)),
	}
	for _, l := range e.Lines {
		out.Lines = append(out.Lines, LineResponse{
			AccountID:   l.AccountID,
			AccountCode: l.AccountCode,
			AccountName: l.AccountName,
			Description: l.Description,
			Debit:       l.Debit.StringFixed(2),
			Credit:      l.Credit.StringFixed(2),
		})
	}
	return out
}

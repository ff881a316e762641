package domain

import (
	"fmt"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/pricing"
)

// QuoteStatus is the lifecycle state of a quote.
type QuoteStatus string

const (
	QuoteDraft     QuoteStatus = "draft"
	QuoteSent      QuoteStatus = "sent"
	QuoteAccepted  QuoteStatus = "accepted"
	QuoteRejected  QuoteStatus = "rejected"
	QuoteCancelled QuoteStatus = "cancelled"
)

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteDraft: {QuoteSent, QuoteCancelled},
	QuoteSent:  {QuoteAccepted, QuoteRejected, QuoteCancelled, QuoteDraft},
}

// Valid reports whether s is a known status.
func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteDraft, QuoteSent, QuoteAccepted, QuoteRejected, QuoteCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a quote in status s may move to next.
func (s QuoteStatus) CanTransition(next QuoteStatus) bool {
	for _, allowed := range quoteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Editable reports whether items and charges may still change.
func (s QuoteStatus) Editable() bool {
	return s == QuoteDraft
}

// QuoteNumber formats the display number of a quote id.
func QuoteNumber(id int64) string {
	return fmt.Sprintf("Q-%06d", id)
}

// Quote is a sellable-document draft with its items, charges and the totals
// snapshot taken when it was last written.
type Quote struct {
	ID             int64                      `json:"id"`
	OrganizationID int64                      `json:"organization_id"`
	Number         string                     `json:"number"`
	ClientID       *int64                     `json:"client_id"`
	ClientName     string                     `json:"client_name,omitempty"`
	Title          string                     `json:"title"`
	Notes          string                     `json:"notes"`
	Status         QuoteStatus                `json:"status"`
	ValidUntil     string                     `json:"valid_until"`
	Items          []pricing.QuoteItem        `json:"items"`
	Charges        []pricing.AdditionalCharge `json:"additionalCharges"`
	Totals         pricing.Totals             `json:"totals"`
	CreatedAt      string                     `json:"created_at"`
	UpdatedAt      string                     `json:"updated_at"`
}

// QuoteSummary is a quote row in list views.
type QuoteSummary struct {
	ID         int64       `json:"id"`
	Number     string      `json:"number"`
	ClientName string      `json:"client_name"`
	Title      string      `json:"title"`
	Status     QuoteStatus `json:"status"`
	Total      float64     `json:"total"`
	CreatedAt  string      `json:"created_at"`
}

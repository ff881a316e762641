package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/domain"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/permissions"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/pricing"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/quotepdf"
)

const validUntilLayout = "2006-01-02"

var errNonFiniteTotals = errors.New("quote totals must be finite numbers")

type quoteRow struct {
	ID             int64  `db:"id"`
	OrganizationID int64  `db:"organization_id"`
	ClientID       *int64 `db:"client_id"`
	ClientName     string `db:"client_name"`
	Title          string `db:"title"`
	Notes          string `db:"notes"`
	Status         string `db:"status"`
	ValidUntil     string `db:"valid_until"`
	TotalsJSON     string `db:"totals_json"`
	CreatedAt      string `db:"created_at"`
	UpdatedAt      string `db:"updated_at"`
}

type quoteItemRow struct {
	ProductID   *int64  `db:"product_id"`
	Description string  `db:"description"`
	Quantity    float64 `db:"quantity"`
	UnitPrice   float64 `db:"unit_price"`
	TaxRate     float64 `db:"tax_rate"`
	Discount    float64 `db:"discount"`
}

type quoteChargeRow struct {
	Type   string  `db:"type"`
	Amount float64 `db:"amount"`
}

type quoteFilter struct {
	Query  string
	Status domain.QuoteStatus
}

func (s *server) handleQuotesList(w http.ResponseWriter, r *http.Request) {
	filter := quoteFilter{
		Query:  strings.TrimSpace(r.URL.Query().Get("q")),
		Status: domain.QuoteStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondError(w, http.StatusBadRequest, "unknown status "+string(filter.Status))
		return
	}

	quotes, err := s.listQuotes(r.Context(), sessionFrom(r.Context()).OrgID, filter)
	if err != nil {
		respondInternal(w, r, "failed to load quotes", err)
		return
	}
	respondJSON(w, http.StatusOK, quotes)
}

// listQuotes returns the quotes of orgID newest first. The query matches
// title, notes or the quote number.
func (s *server) listQuotes(ctx context.Context, orgID int64, filter quoteFilter) ([]domain.QuoteSummary, error) {
	query := `
		SELECT
			q.id,
			COALESCE(c.name, '') AS client_name,
			q.title,
			q.status,
			q.totals_json,
			q.created_at
		FROM quotes q
		LEFT JOIN clients c ON c.id = q.client_id
		WHERE q.organization_id = ?`
	args := []any{orgID}

	if filter.Query != "" {
		search := likePattern(filter.Query)
		numberID, _ := parseQuoteNumber(filter.Query)
		query += ` AND (LOWER(q.title) LIKE ? ESCAPE '\' OR LOWER(q.notes) LIKE ? ESCAPE '\' OR q.id = ?)`
		args = append(args, search, search, numberID)
	}
	if filter.Status != "" {
		query += ` AND q.status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY q.created_at DESC, q.id DESC`

	var rows []quoteRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}

	quotes := make([]domain.QuoteSummary, 0, len(rows))
	for _, row := range rows {
		quotes = append(quotes, domain.QuoteSummary{
			ID:         row.ID,
			Number:     domain.QuoteNumber(row.ID),
			ClientName: row.ClientName,
			Title:      row.Title,
			Status:     domain.QuoteStatus(row.Status),
			Total:      extractTotalFromJSON(row.TotalsJSON),
			CreatedAt:  row.CreatedAt,
		})
	}
	return quotes, nil
}

// parseQuoteNumber reads "Q-000012", "q-12" or "12" as quote id 12.
func parseQuoteNumber(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 2 && strings.EqualFold(raw[:2], "q-") {
		raw = raw[2:]
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func extractTotalFromJSON(totalsJSON string) float64 {
	var totals pricing.Totals
	if err := json.Unmarshal([]byte(totalsJSON), &totals); err != nil {
		return 0
	}
	return totals.Total
}

// loadQuote reads a quote with its lines. It returns sql.ErrNoRows when the
// quote does not exist in orgID.
func (s *server) loadQuote(ctx context.Context, orgID, id int64) (domain.Quote, error) {
	var row quoteRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT
			q.id,
			q.organization_id,
			q.client_id,
			COALESCE(c.name, '') AS client_name,
			q.title,
			q.notes,
			q.status,
			q.valid_until,
			q.totals_json,
			q.created_at,
			q.updated_at
		FROM quotes q
		LEFT JOIN clients c ON c.id = q.client_id
		WHERE q.id = ? AND q.organization_id = ?
	`), id, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quote{}, err
	}
	if err != nil {
		return domain.Quote{}, fmt.Errorf("query quote %d: %w", id, err)
	}

	quote := domain.Quote{
		ID:             row.ID,
		OrganizationID: row.OrganizationID,
		Number:         domain.QuoteNumber(row.ID),
		ClientID:       row.ClientID,
		ClientName:     row.ClientName,
		Title:          row.Title,
		Notes:          row.Notes,
		Status:         domain.QuoteStatus(row.Status),
		ValidUntil:     row.ValidUntil,
		Items:          make([]pricing.QuoteItem, 0),
		Charges:        make([]pricing.AdditionalCharge, 0),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.TotalsJSON), &quote.Totals); err != nil {
		return domain.Quote{}, fmt.Errorf("decode totals of quote %d: %w", id, err)
	}

	var items []quoteItemRow
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(`
		SELECT product_id, description, quantity, unit_price, tax_rate, discount
		FROM quote_items
		WHERE quote_id = ?
		ORDER BY position
	`), id); err != nil {
		return domain.Quote{}, fmt.Errorf("query quote items: %w", err)
	}
	for _, it := range items {
		quote.Items = append(quote.Items, pricing.QuoteItem{
			ProductID:   it.ProductID,
			Description: it.Description,
			Quantity:    pricing.Amount(it.Quantity),
			UnitPrice:   pricing.Amount(it.UnitPrice),
			TaxRate:     pricing.Amount(it.TaxRate),
			Discount:    pricing.Amount(it.Discount),
		})
	}

	var charges []quoteChargeRow
	if err := s.db.SelectContext(ctx, &charges, s.db.Rebind(`
		SELECT type, amount FROM quote_charges WHERE quote_id = ? ORDER BY position
	`), id); err != nil {
		return domain.Quote{}, fmt.Errorf("query quote charges: %w", err)
	}
	for _, c := range charges {
		quote.Charges = append(quote.Charges, pricing.AdditionalCharge{
			Type:   pricing.ChargeType(c.Type),
			Amount: pricing.Amount(c.Amount),
		})
	}

	return quote, nil
}

func (s *server) handleQuotesGet(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid quote id")
		return
	}

	quote, err := s.loadQuote(r.Context(), sessionFrom(r.Context()).OrgID, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "quote not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to load quote", err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// quoteRequest is the body of quote create and update. Items and charges are
// decoded leniently; the rest of the envelope is strict.
type quoteRequest struct {
	ClientID   *int64          `json:"client_id"`
	Title      string          `json:"title"`
	Notes      string          `json:"notes"`
	ValidUntil string          `json:"valid_until"`
	Items      pricing.Items   `json:"items"`
	Charges    pricing.Charges `json:"additionalCharges"`
}

func (req *quoteRequest) normalize() error {
	req.Title = strings.TrimSpace(req.Title)
	req.Notes = strings.TrimSpace(req.Notes)
	req.ValidUntil = strings.TrimSpace(req.ValidUntil)

	if req.ClientID != nil && *req.ClientID <= 0 {
		return errors.New("client_id must be a positive id")
	}
	if req.ValidUntil != "" {
		if _, err := time.Parse(validUntilLayout, req.ValidUntil); err != nil {
			return errors.New("valid_until must be a YYYY-MM-DD date")
		}
	}
	return nil
}

// prepareQuote validates req against orgID and computes the totals snapshot.
// The returned string is a client-facing message when validation fails.
func (s *server) prepareQuote(ctx context.Context, orgID int64, req *quoteRequest) (pricing.Totals, string, error) {
	if err := req.normalize(); err != nil {
		return pricing.Totals{}, err.Error(), nil
	}

	if req.ClientID != nil {
		var exists bool
		if err := s.db.GetContext(ctx, &exists, s.db.Rebind(`
			SELECT EXISTS(SELECT 1 FROM clients WHERE id = ? AND organization_id = ?)
		`), *req.ClientID, orgID); err != nil {
			return pricing.Totals{}, "", fmt.Errorf("check quote client: %w", err)
		}
		if !exists {
			return pricing.Totals{}, "client not found", nil
		}
	}

	for _, it := range req.Items {
		if it.ProductID == nil {
			continue
		}
		var exists bool
		if err := s.db.GetContext(ctx, &exists, s.db.Rebind(`
			SELECT EXISTS(SELECT 1 FROM products WHERE id = ? AND organization_id = ?)
		`), *it.ProductID, orgID); err != nil {
			return pricing.Totals{}, "", fmt.Errorf("check quote product: %w", err)
		}
		if !exists {
			return pricing.Totals{}, fmt.Sprintf("product %d not found", *it.ProductID), nil
		}
	}

	totals := pricing.ComputeTotals(req.Items, req.Charges)
	if !totals.Finite() {
		return pricing.Totals{}, errNonFiniteTotals.Error(), nil
	}
	return totals, "", nil
}

func (s *server) handleQuotesCreate(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	sess := sessionFrom(ctx)

	totals, msg, err := s.prepareQuote(ctx, sess.OrgID, &req)
	if err != nil {
		respondInternal(w, r, "failed to create quote", err)
		return
	}
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	totalsJSON, err := json.Marshal(totals)
	if err != nil {
		respondInternal(w, r, "failed to create quote", err)
		return
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		respondInternal(w, r, "failed to create quote", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.GetContext(ctx, &id, tx.Rebind(`
		INSERT INTO quotes (organization_id, client_id, title, notes, status, valid_until, totals_json, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), sess.OrgID, req.ClientID, req.Title, req.Notes, string(domain.QuoteDraft), req.ValidUntil, string(totalsJSON), sess.UserID); err != nil {
		respondInternal(w, r, "failed to create quote", err)
		return
	}
	if err := writeQuoteLines(ctx, tx, id, req.Items, req.Charges); err != nil {
		respondInternal(w, r, "failed to create quote", err)
		return
	}
	if err := tx.Commit(); err != nil {
		respondInternal(w, r, "failed to create quote", err)
		return
	}

	quote, err := s.loadQuote(ctx, sess.OrgID, id)
	if err != nil {
		respondInternal(w, r, "failed to load quote", err)
		return
	}
	respondJSON(w, http.StatusCreated, quote)
}

// handleQuotesUpdate replaces a draft quote and recomputes its totals
// snapshot. Quotes past draft are read-only.
func (s *server) handleQuotesUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid quote id")
		return
	}

	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	orgID := sessionFrom(ctx).OrgID

	status, err := s.quoteStatus(ctx, orgID, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "quote not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to update quote", err)
		return
	}
	if !status.Editable() {
		respondError(w, http.StatusConflict, "only draft quotes can be edited")
		return
	}

	totals, msg, err := s.prepareQuote(ctx, orgID, &req)
	if err != nil {
		respondInternal(w, r, "failed to update quote", err)
		return
	}
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	totalsJSON, err := json.Marshal(totals)
	if err != nil {
		respondInternal(w, r, "failed to update quote", err)
		return
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		respondInternal(w, r, "failed to update quote", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	updated, err := updateDraftQuote(ctx, tx, orgID, id, &req, string(totalsJSON))
	if err != nil {
		respondInternal(w, r, "failed to update quote", err)
		return
	}
	if !updated {
		respondError(w, http.StatusConflict, "only draft quotes can be edited")
		return
	}
	for _, table := range []string{"quote_items", "quote_charges"} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM `+table+` WHERE quote_id = ?`), id); err != nil {
			respondInternal(w, r, "failed to update quote", err)
			return
		}
	}
	if err := writeQuoteLines(ctx, tx, id, req.Items, req.Charges); err != nil {
		respondInternal(w, r, "failed to update quote", err)
		return
	}
	if err := tx.Commit(); err != nil {
		respondInternal(w, r, "failed to update quote", err)
		return
	}

	quote, err := s.loadQuote(ctx, orgID, id)
	if err != nil {
		respondInternal(w, r, "failed to load quote", err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// updateDraftQuote rewrites the header of quote id while it is still a draft.
// It reports false when the quote left draft in the meantime.
func updateDraftQuote(ctx context.Context, tx *sqlx.Tx, orgID, id int64, req *quoteRequest, totalsJSON string) (bool, error) {
	result, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE quotes
		SET
			client_id = ?,
			title = ?,
			notes = ?,
			valid_until = ?,
			totals_json = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND organization_id = ? AND status = ?
	`), req.ClientID, req.Title, req.Notes, req.ValidUntil, totalsJSON, id, orgID, string(domain.QuoteDraft))
	if err != nil {
		return false, fmt.Errorf("update quote %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update quote %d: %w", id, err)
	}
	return affected == 1, nil
}

func writeQuoteLines(ctx context.Context, tx *sqlx.Tx, quoteID int64, items []pricing.QuoteItem, charges []pricing.AdditionalCharge) error {
	for i, it := range items {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO quote_items (quote_id, position, product_id, description, quantity, unit_price, tax_rate, discount)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`), quoteID, i, it.ProductID, it.Description,
			float64(it.Quantity), float64(it.UnitPrice), float64(it.TaxRate), float64(it.Discount)); err != nil {
			return fmt.Errorf("insert quote item %d: %w", i, err)
		}
	}
	for i, c := range charges {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO quote_charges (quote_id, position, type, amount) VALUES (?, ?, ?, ?)
		`), quoteID, i, string(c.Type), float64(c.Amount)); err != nil {
			return fmt.Errorf("insert quote charge %d: %w", i, err)
		}
	}
	return nil
}

func (s *server) quoteStatus(ctx context.Context, orgID, id int64) (domain.QuoteStatus, error) {
	var status string
	err := s.db.GetContext(ctx, &status, s.db.Rebind(`
		SELECT status FROM quotes WHERE id = ? AND organization_id = ?
	`), id, orgID)
	return domain.QuoteStatus(status), err
}

func (s *server) handleQuotesDelete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid quote id")
		return
	}

	result, err := s.db.ExecContext(r.Context(), s.db.Rebind(`
		DELETE FROM quotes WHERE id = ? AND organization_id = ?
	`), id, sessionFrom(r.Context()).OrgID)
	if err != nil {
		respondInternal(w, r, "failed to delete quote", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		respondInternal(w, r, "failed to delete quote", err)
		return
	}
	if affected == 0 {
		respondError(w, http.StatusNotFound, "quote not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type quoteStatusRequest struct {
	Status domain.QuoteStatus `json:"status"`
}

// statusPermission is the permission needed to move a quote into next.
func statusPermission(next domain.QuoteStatus) string {
	switch next {
	case domain.QuoteSent:
		return permissions.QuotesSend
	case domain.QuoteAccepted, domain.QuoteRejected:
		return permissions.QuotesApprove
	default:
		return permissions.QuotesUpdate
	}
}

func (s *server) handleQuoteStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid quote id")
		return
	}

	var req quoteStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		respondError(w, http.StatusBadRequest, "unknown status "+string(req.Status))
		return
	}

	ctx := r.Context()
	sess := sessionFrom(ctx)

	if p := statusPermission(req.Status); !sess.Resolver.HasPermission(p) {
		respondError(w, http.StatusForbidden, "missing permission "+p)
		return
	}

	current, err := s.quoteStatus(ctx, sess.OrgID, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "quote not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to update quote status", err)
		return
	}
	if !current.CanTransition(req.Status) {
		respondError(w, http.StatusConflict, fmt.Sprintf("cannot move quote from %s to %s", current, req.Status))
		return
	}

	moved, err := s.transitionQuote(ctx, sess.OrgID, id, current, req.Status)
	if err != nil {
		respondInternal(w, r, "failed to update quote status", err)
		return
	}
	if !moved {
		respondError(w, http.StatusConflict, "quote status changed concurrently")
		return
	}

	quote, err := s.loadQuote(ctx, sess.OrgID, id)
	if err != nil {
		respondInternal(w, r, "failed to load quote", err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// transitionQuote moves quote id from one status to another. It reports
// false when the quote is no longer in from.
func (s *server) transitionQuote(ctx context.Context, orgID, id int64, from, to domain.QuoteStatus) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE quotes SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND organization_id = ? AND status = ?
	`), string(to), id, orgID, string(from))
	if err != nil {
		return false, fmt.Errorf("update status of quote %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update status of quote %d: %w", id, err)
	}
	return affected == 1, nil
}

type totalsRequest struct {
	Items   pricing.Items   `json:"items"`
	Charges pricing.Charges `json:"additionalCharges"`
}

// handleQuoteTotals recalculates totals for an unsaved quote form. The body
// is read leniently: unknown fields are ignored and an empty body is an empty
// quote.
func (s *server) handleQuoteTotals(w http.ResponseWriter, r *http.Request) {
	var req totalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	totals := pricing.ComputeTotals(req.Items, req.Charges)
	if !totals.Finite() {
		respondError(w, http.StatusBadRequest, errNonFiniteTotals.Error())
		return
	}
	respondJSON(w, http.StatusOK, totals)
}

func (s *server) handleQuotePDF(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid quote id")
		return
	}

	ctx := r.Context()
	orgID := sessionFrom(ctx).OrgID

	quote, err := s.loadQuote(ctx, orgID, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "quote not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to load quote", err)
		return
	}

	var orgName string
	if err := s.db.GetContext(ctx, &orgName, s.db.Rebind(`SELECT name FROM organizations WHERE id = ?`), orgID); err != nil {
		respondInternal(w, r, "failed to load organization", err)
		return
	}

	body, err := s.pdf.Generate(quotepdf.Document{
		OrganizationName: orgName,
		Quote:            quote,
		Currency:         s.currency,
		GeneratedAt:      time.Now(),
	})
	if err != nil {
		respondInternal(w, r, "failed to render quote", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.pdf"`, quote.Number))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

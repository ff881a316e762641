package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/domain"
)

const productColumns = `id, organization_id, name, sku, unit_price, tax_rate, active, created_at, updated_at`

type productRequest struct {
	Name      string  `json:"name"`
	SKU       string  `json:"sku"`
	UnitPrice float64 `json:"unit_price"`
	TaxRate   float64 `json:"tax_rate"`
	Active    *bool   `json:"active"`
}

func (req *productRequest) normalize() error {
	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.TrimSpace(req.SKU)

	if req.Name == "" {
		return errors.New("name is required")
	}
	if req.UnitPrice < 0 || math.IsInf(req.UnitPrice, 0) {
		return errors.New("unit_price must be a non-negative number")
	}
	if req.TaxRate < 0 || req.TaxRate > 1 {
		return errors.New("tax_rate must be between 0 and 1")
	}
	if req.Active == nil {
		active := true
		req.Active = &active
	}
	return nil
}

type productFilter struct {
	Query      string
	ActiveOnly bool
}

func (s *server) handleProductsList(w http.ResponseWriter, r *http.Request) {
	filter := productFilter{
		Query:      strings.TrimSpace(r.URL.Query().Get("q")),
		ActiveOnly: r.URL.Query().Get("active") == "1",
	}
	products, err := s.listProducts(r.Context(), sessionFrom(r.Context()).OrgID, filter)
	if err != nil {
		respondInternal(w, r, "failed to load products", err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (s *server) listProducts(ctx context.Context, orgID int64, filter productFilter) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE organization_id = ?`
	args := []any{orgID}

	if filter.Query != "" {
		search := likePattern(filter.Query)
		query += ` AND (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(sku) LIKE ? ESCAPE '\')`
		args = append(args, search, search)
	}
	if filter.ActiveOnly {
		query += ` AND active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY name, id`

	products := make([]domain.Product, 0)
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return products, nil
}

func (s *server) handleProductsGet(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var product domain.Product
	err = s.db.GetContext(r.Context(), &product, s.db.Rebind(`
		SELECT `+productColumns+` FROM products WHERE id = ? AND organization_id = ?
	`), id, sessionFrom(r.Context()).OrgID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to load product", err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (s *server) handleProductsCreate(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.normalize(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var product domain.Product
	err := s.db.GetContext(r.Context(), &product, s.db.Rebind(`
		INSERT INTO products (organization_id, name, sku, unit_price, tax_rate, active)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+productColumns+`
	`), sessionFrom(r.Context()).OrgID, req.Name, req.SKU, req.UnitPrice, req.TaxRate, *req.Active)
	if err != nil {
		respondInternal(w, r, "failed to create product", err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (s *server) handleProductsUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.normalize(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var product domain.Product
	err = s.db.GetContext(r.Context(), &product, s.db.Rebind(`
		UPDATE products
		SET
			name = ?,
			sku = ?,
			unit_price = ?,
			tax_rate = ?,
			active = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND organization_id = ?
		RETURNING `+productColumns+`
	`), req.Name, req.SKU, req.UnitPrice, req.TaxRate, *req.Active, id, sessionFrom(r.Context()).OrgID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to update product", err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (s *server) handleProductsDelete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	result, err := s.db.ExecContext(r.Context(), s.db.Rebind(`
		DELETE FROM products WHERE id = ? AND organization_id = ?
	`), id, sessionFrom(r.Context()).OrgID)
	if err != nil {
		respondInternal(w, r, "failed to delete product", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		respondInternal(w, r, "failed to delete product", err)
		return
	}
	if affected == 0 {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

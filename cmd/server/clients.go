package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/domain"
)

const clientColumns = `id, organization_id, name, email, phone, tax_id, address, created_at, updated_at`

type clientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
}

func (req *clientRequest) normalize() error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.TaxID = strings.TrimSpace(req.TaxID)
	req.Address = strings.TrimSpace(req.Address)

	if req.Name == "" {
		return errors.New("name is required")
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return errors.New("email is invalid")
	}
	return nil
}

func (s *server) handleClientsList(w http.ResponseWriter, r *http.Request) {
	clients, err := s.listClients(r.Context(), sessionFrom(r.Context()).OrgID, strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		respondInternal(w, r, "failed to load clients", err)
		return
	}
	respondJSON(w, http.StatusOK, clients)
}

func (s *server) listClients(ctx context.Context, orgID int64, query string) ([]domain.Client, error) {
	search := likePattern(query)
	clients := make([]domain.Client, 0)
	err := s.db.SelectContext(ctx, &clients, s.db.Rebind(`
		SELECT `+clientColumns+`
		FROM clients
		WHERE organization_id = ?
			AND (? = '' OR LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')
		ORDER BY name, id
	`), orgID, query, search, search)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	return clients, nil
}

func (s *server) handleClientsGet(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid client id")
		return
	}

	var client domain.Client
	err = s.db.GetContext(r.Context(), &client, s.db.Rebind(`
		SELECT `+clientColumns+` FROM clients WHERE id = ? AND organization_id = ?
	`), id, sessionFrom(r.Context()).OrgID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "client not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to load client", err)
		return
	}
	respondJSON(w, http.StatusOK, client)
}

func (s *server) handleClientsCreate(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.normalize(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var client domain.Client
	err := s.db.GetContext(r.Context(), &client, s.db.Rebind(`
		INSERT INTO clients (organization_id, name, email, phone, tax_id, address)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+clientColumns+`
	`), sessionFrom(r.Context()).OrgID, req.Name, req.Email, req.Phone, req.TaxID, req.Address)
	if err != nil {
		respondInternal(w, r, "failed to create client", err)
		return
	}
	respondJSON(w, http.StatusCreated, client)
}

func (s *server) handleClientsUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid client id")
		return
	}

	var req clientRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.normalize(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var client domain.Client
	err = s.db.GetContext(r.Context(), &client, s.db.Rebind(`
		UPDATE clients
		SET
			name = ?,
			email = ?,
			phone = ?,
			tax_id = ?,
			address = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND organization_id = ?
		RETURNING `+clientColumns+`
	`), req.Name, req.Email, req.Phone, req.TaxID, req.Address, id, sessionFrom(r.Context()).OrgID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "client not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to update client", err)
		return
	}
	respondJSON(w, http.StatusOK, client)
}

func (s *server) handleClientsDelete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid client id")
		return
	}

	result, err := s.db.ExecContext(r.Context(), s.db.Rebind(`
		DELETE FROM clients WHERE id = ? AND organization_id = ?
	`), id, sessionFrom(r.Context()).OrgID)
	if err != nil {
		respondInternal(w, r, "failed to delete client", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		respondInternal(w, r, "failed to delete client", err)
		return
	}
	if affected == 0 {
		respondError(w, http.StatusNotFound, "client not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

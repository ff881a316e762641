package main

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/domain"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/permissions"
)

func (s *server) handleOrganizationsList(w http.ResponseWriter, r *http.Request) {
	memberships := make([]domain.Membership, 0)
	err := s.db.SelectContext(r.Context(), &memberships, s.db.Rebind(`
		SELECT m.organization_id, o.name AS organization_name, m.role
		FROM members m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = ?
		ORDER BY o.name, o.id
	`), sessionFrom(r.Context()).UserID)
	if err != nil {
		respondInternal(w, r, "failed to load organizations", err)
		return
	}
	respondJSON(w, http.StatusOK, memberships)
}

type organizationRequest struct {
	Name string `json:"name"`
}

// handleOrganizationsCreate creates a tenant owned by the caller. The current
// session keeps its organization; the caller switches explicitly.
func (s *server) handleOrganizationsCreate(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	tx, err := s.db.BeginTxx(r.Context(), nil)
	if err != nil {
		respondInternal(w, r, "failed to create organization", err)
		return
	}

	var org domain.Organization
	if err := tx.GetContext(r.Context(), &org, tx.Rebind(`
		INSERT INTO organizations (name) VALUES (?) RETURNING id, name, created_at
	`), name); err != nil {
		_ = tx.Rollback()
		respondInternal(w, r, "failed to create organization", err)
		return
	}

	if _, err := tx.ExecContext(r.Context(), tx.Rebind(`
		INSERT INTO members (organization_id, user_id, role) VALUES (?, ?, ?)
	`), org.ID, sessionFrom(r.Context()).UserID, permissions.RoleOwner); err != nil {
		_ = tx.Rollback()
		respondInternal(w, r, "failed to create organization", err)
		return
	}

	if err := tx.Commit(); err != nil {
		respondInternal(w, r, "failed to create organization", err)
		return
	}

	respondJSON(w, http.StatusCreated, org)
}

func (s *server) handleOrganizationsRename(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	var org domain.Organization
	err := s.db.GetContext(r.Context(), &org, s.db.Rebind(`
		UPDATE organizations SET name = ? WHERE id = ? RETURNING id, name, created_at
	`), name, sessionFrom(r.Context()).OrgID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "organization not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to rename organization", err)
		return
	}
	respondJSON(w, http.StatusOK, org)
}

func (s *server) handleMembersList(w http.ResponseWriter, r *http.Request) {
	orgID := sessionFrom(r.Context()).OrgID

	members := make([]domain.Member, 0)
	err := s.db.SelectContext(r.Context(), &members, s.db.Rebind(`
		SELECT m.user_id, u.email, u.name, m.role, m.created_at
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = ?
		ORDER BY u.email
	`), orgID)
	if err != nil {
		respondInternal(w, r, "failed to load members", err)
		return
	}

	for i := range members {
		extra, err := s.memberGrants(r.Context(), orgID, members[i].UserID)
		if err != nil {
			respondInternal(w, r, "failed to load members", err)
			return
		}
		members[i].Permissions = extra
	}

	respondJSON(w, http.StatusOK, members)
}

type memberCreateRequest struct {
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Password    string   `json:"password"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// handleMembersCreate adds a user to the current organization, creating the
// account first when the email is unknown and a password is given.
func (s *server) handleMembersCreate(w http.ResponseWriter, r *http.Request) {
	var req memberCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}
	if msg := validateMemberAccess(req.Role, req.Permissions); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	orgID := sessionFrom(ctx).OrgID

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		respondInternal(w, r, "failed to add member", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	var userID int64
	err = tx.GetContext(ctx, &userID, tx.Rebind(`SELECT id FROM users WHERE email = ?`), email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if req.Password == "" {
			respondError(w, http.StatusBadRequest, "password is required for new users")
			return
		}
		hash, err := hashPassword(req.Password)
		if err != nil {
			respondInternal(w, r, "failed to add member", err)
			return
		}
		if err := tx.GetContext(ctx, &userID, tx.Rebind(`
			INSERT INTO users (email, name, password_hash) VALUES (?, ?, ?) RETURNING id
		`), email, strings.TrimSpace(req.Name), hash); err != nil {
			respondInternal(w, r, "failed to add member", err)
			return
		}
	case err != nil:
		respondInternal(w, r, "failed to add member", err)
		return
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists, tx.Rebind(`
		SELECT EXISTS(SELECT 1 FROM members WHERE organization_id = ? AND user_id = ?)
	`), orgID, userID); err != nil {
		respondInternal(w, r, "failed to add member", err)
		return
	}
	if exists {
		respondError(w, http.StatusConflict, "user is already a member")
		return
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO members (organization_id, user_id, role) VALUES (?, ?, ?)
	`), orgID, userID, req.Role); err != nil {
		respondInternal(w, r, "failed to add member", err)
		return
	}
	if err := insertGrants(r, tx, orgID, userID, req.Permissions); err != nil {
		respondInternal(w, r, "failed to add member", err)
		return
	}

	if err := tx.Commit(); err != nil {
		respondInternal(w, r, "failed to add member", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"user_id": userID, "role": req.Role})
}

type memberUpdateRequest struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// handleMembersUpdate replaces a member's role and extra grants and applies
// them to the member's open sessions. Ownership cannot be granted or taken
// away here.
func (s *server) handleMembersUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := urlID(r, "userID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req memberUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateMemberAccess(req.Role, req.Permissions); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	orgID := sessionFrom(ctx).OrgID

	current, _, err := s.loadMembership(ctx, userID, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "member not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to update member", err)
		return
	}
	if current == permissions.RoleOwner {
		respondError(w, http.StatusConflict, "owner membership cannot be changed")
		return
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		respondInternal(w, r, "failed to update member", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE members SET role = ? WHERE organization_id = ? AND user_id = ?
	`), req.Role, orgID, userID); err != nil {
		respondInternal(w, r, "failed to update member", err)
		return
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		DELETE FROM member_permissions WHERE organization_id = ? AND user_id = ?
	`), orgID, userID); err != nil {
		respondInternal(w, r, "failed to update member", err)
		return
	}
	if err := insertGrants(r, tx, orgID, userID, req.Permissions); err != nil {
		respondInternal(w, r, "failed to update member", err)
		return
	}
	if err := tx.Commit(); err != nil {
		respondInternal(w, r, "failed to update member", err)
		return
	}

	member := permissions.Member{OrgID: orgID, UserID: userID}
	for _, resolver := range s.sessions.MemberResolvers(member) {
		if err := permissions.Apply(resolver, req.Role, req.Permissions); err != nil {
			s.sessions.CloseMember(member)
			respondInternal(w, r, "failed to refresh member sessions", err)
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{"user_id": userID, "role": req.Role})
}

// handleMembersDelete removes a member and closes its open sessions in the
// organization.
func (s *server) handleMembersDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := urlID(r, "userID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	ctx := r.Context()
	orgID := sessionFrom(ctx).OrgID

	role, _, err := s.loadMembership(ctx, userID, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "member not found")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to remove member", err)
		return
	}
	if role == permissions.RoleOwner {
		respondError(w, http.StatusConflict, "owners cannot be removed")
		return
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`
		DELETE FROM members WHERE organization_id = ? AND user_id = ?
	`), orgID, userID); err != nil {
		respondInternal(w, r, "failed to remove member", err)
		return
	}
	s.sessions.CloseMember(permissions.Member{OrgID: orgID, UserID: userID})

	w.WriteHeader(http.StatusNoContent)
}

// validateMemberAccess returns a client-facing message when role or grants
// cannot be assigned through the members API.
func validateMemberAccess(role string, grants []string) string {
	if !permissions.ValidRole(role) || role == permissions.RoleOwner {
		return "role must be one of admin, seller, viewer"
	}
	for _, p := range grants {
		if !permissions.Valid(p) {
			return "unknown permission " + p
		}
	}
	return ""
}

func insertGrants(r *http.Request, tx *sqlx.Tx, orgID, userID int64, grants []string) error {
	unique := slices.Clone(grants)
	slices.Sort(unique)
	for _, p := range slices.Compact(unique) {
		if _, err := tx.ExecContext(r.Context(), tx.Rebind(`
			INSERT INTO member_permissions (organization_id, user_id, permission) VALUES (?, ?, ?)
		`), orgID, userID, p); err != nil {
			return fmt.Errorf("insert member permission %s: %w", p, err)
		}
	}
	return nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/permissions"
)

// loadMembership returns the role and extra grants of userID in orgID, or
// sql.ErrNoRows when the user is not a member.
func (s *server) loadMembership(ctx context.Context, userID, orgID int64) (string, []string, error) {
	var role string
	err := s.db.GetContext(ctx, &role, s.db.Rebind(`
		SELECT role FROM members WHERE organization_id = ? AND user_id = ?
	`), orgID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, err
	}
	if err != nil {
		return "", nil, fmt.Errorf("query membership: %w", err)
	}

	extra, err := s.memberGrants(ctx, orgID, userID)
	if err != nil {
		return "", nil, err
	}
	return role, extra, nil
}

func (s *server) memberGrants(ctx context.Context, orgID, userID int64) ([]string, error) {
	extra := make([]string, 0)
	if err := s.db.SelectContext(ctx, &extra, s.db.Rebind(`
		SELECT permission FROM member_permissions
		WHERE organization_id = ? AND user_id = ?
		ORDER BY permission
	`), orgID, userID); err != nil {
		return nil, fmt.Errorf("query member permissions: %w", err)
	}
	return extra, nil
}

// firstOrganization picks the organization a login lands in when none was
// requested: the oldest membership.
func (s *server) firstOrganization(ctx context.Context, userID int64) (int64, error) {
	var orgID int64
	err := s.db.GetContext(ctx, &orgID, s.db.Rebind(`
		SELECT organization_id FROM members
		WHERE user_id = ?
		ORDER BY created_at, organization_id
		LIMIT 1
	`), userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("query first membership: %w", err)
	}
	return orgID, err
}

type permissionsResponse struct {
	OrganizationID int64    `json:"organization_id"`
	Role           string   `json:"role"`
	Permissions    []string `json:"permissions"`
}

// handleMyPermissions reloads the caller's membership, refreshes the session
// resolver with it and returns it.
func (s *server) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	role, extra, err := s.loadMembership(r.Context(), sess.UserID, sess.OrgID)
	if errors.Is(err, sql.ErrNoRows) {
		sess.Resolver.Reset()
		respondError(w, http.StatusForbidden, "membership revoked")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to load permissions", err)
		return
	}

	if err := permissions.Apply(sess.Resolver, role, extra); err != nil {
		respondInternal(w, r, "failed to apply permissions", err)
		return
	}

	respondJSON(w, http.StatusOK, permissionsResponse{
		OrganizationID: sess.OrgID,
		Role:           role,
		Permissions:    sess.Resolver.Permissions(),
	})
}

func (s *server) requirePermission(p string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessionFrom(r.Context()).Resolver.HasPermission(p) {
				respondError(w, http.StatusForbidden, "missing permission "+p)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

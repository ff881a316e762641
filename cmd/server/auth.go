package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/domain"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/permissions"
)

type authService struct {
	db     *sqlx.DB
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newAuthService(db *sqlx.DB, secret string, ttl time.Duration) *authService {
	return &authService{db: db, secret: []byte(secret), ttl: ttl, now: time.Now}
}

type sessionClaims struct {
	UserID int64 `json:"user_id"`
	OrgID  int64 `json:"org_id"`
	jwt.RegisteredClaims
}

func (a *authService) validateCredentials(ctx context.Context, email, password string) (domain.User, bool, error) {
	var user domain.User
	err := a.db.GetContext(ctx, &user, a.db.Rebind(`
		SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?
	`), strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("query user credentials: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domain.User{}, false, nil
	}
	return user, true, nil
}

func (a *authService) issueToken(userID, orgID int64, sid string) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	claims := sessionClaims{
		UserID: userID,
		OrgID:  orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expires, nil
}

func (a *authService) parseToken(raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.ID == "" || claims.UserID <= 0 || claims.OrgID <= 0 {
		return nil, errors.New("invalid session claims")
	}
	return claims, nil
}

// session is the authenticated caller of a request.
type session struct {
	UserID   int64
	OrgID    int64
	SID      string
	Resolver *permissions.Resolver
}

type sessionKey struct{}

func withSession(ctx context.Context, sess session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

func sessionFrom(ctx context.Context) session {
	sess, _ := ctx.Value(sessionKey{}).(session)
	return sess
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.auth.parseToken(strings.TrimSpace(header[len("Bearer "):]))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		resolver, ok := s.sessions.Get(claims.ID)
		if !ok {
			respondError(w, http.StatusUnauthorized, "session closed")
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session{
			UserID:   claims.UserID,
			OrgID:    claims.OrgID,
			SID:      claims.ID,
			Resolver: resolver,
		})))
	})
}

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	OrganizationID int64  `json:"organization_id,omitempty"`
}

type sessionResponse struct {
	Token          string      `json:"token"`
	ExpiresAt      time.Time   `json:"expires_at"`
	User           domain.User `json:"user"`
	OrganizationID int64       `json:"organization_id"`
	Role           string      `json:"role"`
	Permissions    []string    `json:"permissions"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, valid, err := s.auth.validateCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		respondInternal(w, r, "authentication error", err)
		return
	}
	if !valid {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 {
		orgID, err = s.firstOrganization(r.Context(), user.ID)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusForbidden, "user does not belong to any organization")
			return
		}
		if err != nil {
			respondInternal(w, r, "failed to load memberships", err)
			return
		}
	}

	resp, err := s.openSession(r.Context(), user, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusForbidden, "not a member of this organization")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to open session", err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Close(sessionFrom(r.Context()).SID)
	w.WriteHeader(http.StatusNoContent)
}

type switchOrganizationRequest struct {
	OrganizationID int64 `json:"organization_id"`
}

// handleSwitchOrganization closes the current session and opens a new one
// scoped to another organization of the caller.
func (s *server) handleSwitchOrganization(w http.ResponseWriter, r *http.Request) {
	var req switchOrganizationRequest
	if err := decodeJSON(r, &req); err != nil || req.OrganizationID <= 0 {
		respondError(w, http.StatusBadRequest, "organization_id is required")
		return
	}

	sess := sessionFrom(r.Context())
	user, err := s.getUser(r.Context(), sess.UserID)
	if err != nil {
		respondInternal(w, r, "failed to load user", err)
		return
	}

	if _, _, err := s.loadMembership(r.Context(), sess.UserID, req.OrganizationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusForbidden, "not a member of this organization")
			return
		}
		respondInternal(w, r, "failed to load membership", err)
		return
	}

	s.sessions.Close(sess.SID)
	resp, err := s.openSession(r.Context(), user, req.OrganizationID)
	if err != nil {
		respondInternal(w, r, "failed to open session", err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// openSession loads the membership of user in orgID, registers a new
// resolver for it and signs the session token. It returns sql.ErrNoRows when
// the user is not a member.
func (s *server) openSession(ctx context.Context, user domain.User, orgID int64) (sessionResponse, error) {
	role, extra, err := s.loadMembership(ctx, user.ID, orgID)
	if err != nil {
		return sessionResponse{}, err
	}

	sid := uuid.NewString()
	token, expires, err := s.auth.issueToken(user.ID, orgID, sid)
	if err != nil {
		return sessionResponse{}, err
	}

	resolver := s.sessions.Open(sid, permissions.Member{OrgID: orgID, UserID: user.ID}, expires)
	if err := permissions.Apply(resolver, role, extra); err != nil {
		s.sessions.Close(sid)
		return sessionResponse{}, err
	}

	return sessionResponse{
		Token:          token,
		ExpiresAt:      expires,
		User:           user,
		OrganizationID: orgID,
		Role:           role,
		Permissions:    resolver.Permissions(),
	}, nil
}

func (s *server) getUser(ctx context.Context, id int64) (domain.User, error) {
	var user domain.User
	err := s.db.GetContext(ctx, &user, s.db.Rebind(`
		SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?
	`), id)
	if err != nil {
		return domain.User{}, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

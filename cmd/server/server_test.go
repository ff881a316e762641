package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/config"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/db"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/logging"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/migrations"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/permissions"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/seed"
)

const (
	testAdminEmail = "admin@kusystem.test"
	testPassword   = "12345"
)

type testEnv struct {
	t      *testing.T
	db     *sqlx.DB
	srv    *server
	router http.Handler
	orgID  int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "server-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	require.NoError(t, migrations.Up(ctx, database, db.DriverSQLite))
	_, err = seed.Run(ctx, database, seed.Config{
		AdminEmail:        testAdminEmail,
		AdminPassword:     testPassword,
		AdminOrganization: "Casa Central",
	})
	require.NoError(t, err)

	srv := newServer(database, config.Config{
		SessionSecret: "test-secret",
		TokenTTL:      time.Hour,
		Currency:      "USD",
	}, permissions.NewRegistry())

	env := &testEnv{
		t:      t,
		db:     database,
		srv:    srv,
		router: srv.routes(logging.New("error", "text", io.Discard)),
	}
	require.NoError(t, database.Get(&env.orgID, `SELECT id FROM organizations WHERE name = ?`, "Casa Central"))
	return env
}

// do sends body as JSON, or verbatim when it is a string.
func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(email string) sessionResponse {
	e.t.Helper()

	rr := e.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": testPassword})
	require.Equal(e.t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeBody[sessionResponse](e.t, rr)
}

func (e *testEnv) adminToken() string {
	e.t.Helper()
	return e.login(testAdminEmail).Token
}

// addMember creates a user with testPassword and joins it to the seeded
// organization.
func (e *testEnv) addMember(email, role string, extra ...string) int64 {
	e.t.Helper()

	hash, err := hashPassword(testPassword)
	require.NoError(e.t, err)

	var userID int64
	require.NoError(e.t, e.db.Get(&userID, `
		INSERT INTO users (email, name, password_hash) VALUES (?, ?, ?) RETURNING id
	`, email, email, hash))
	_, err = e.db.Exec(`INSERT INTO members (organization_id, user_id, role) VALUES (?, ?, ?)`, e.orgID, userID, role)
	require.NoError(e.t, err)
	for _, p := range extra {
		_, err = e.db.Exec(`
			INSERT INTO member_permissions (organization_id, user_id, permission) VALUES (?, ?, ?)
		`, e.orgID, userID, p)
		require.NoError(e.t, err)
	}
	return userID
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rr)["error"]
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/domain"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/permissions"
)

func TestLoginOpensOwnerSession(t *testing.T) {
	env := newTestEnv(t)

	sess := env.login("  Admin@KuSystem.test ")

	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, env.orgID, sess.OrganizationID)
	assert.Equal(t, permissions.RoleOwner, sess.Role)
	assert.Empty(t, sess.Permissions)
	assert.Equal(t, testAdminEmail, sess.User.Email)
	assert.Equal(t, 1, env.srv.sessions.Len())

	rr := env.do(http.MethodGet, "/members/me/permissions", sess.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody[permissionsResponse](t, rr)
	assert.Equal(t, permissions.RoleOwner, got.Role)
}

func TestLoginRejectsInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/auth/login", "", map[string]string{"email": testAdminEmail, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "nobody@kusystem.test", "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(http.MethodPost, "/auth/login", "", `{"email":"x","password":"y","remember":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLoginRejectsForeignOrganization(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email":           testAdminEmail,
		"password":        testPassword,
		"organization_id": 9999,
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/clients", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "missing bearer token", errorMessage(t, rr))

	rr = env.do(http.MethodGet, "/clients", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid token", errorMessage(t, rr))

	rr = env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken()

	env.srv.auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	rr := env.do(http.MethodGet, "/clients", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutClosesSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken()

	rr := env.do(http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, env.srv.sessions.Len())

	rr = env.do(http.MethodGet, "/clients", token, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "session closed", errorMessage(t, rr))
}

func TestSwitchOrganizationOpensNewSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken()

	rr := env.do(http.MethodPost, "/organizations", token, map[string]string{"name": "Sucursal Norte"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	org := decodeBody[domain.Organization](t, rr)

	rr = env.do(http.MethodGet, "/organizations", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]domain.Membership](t, rr), 2)

	rr = env.do(http.MethodPost, "/auth/switch-organization", token, map[string]int64{"organization_id": org.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	switched := decodeBody[sessionResponse](t, rr)
	assert.Equal(t, org.ID, switched.OrganizationID)
	assert.Equal(t, permissions.RoleOwner, switched.Role)

	rr = env.do(http.MethodGet, "/members/me/permissions", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "old session must be closed")

	rr = env.do(http.MethodGet, "/members/me/permissions", switched.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, org.ID, decodeBody[permissionsResponse](t, rr).OrganizationID)
}

func TestSwitchOrganizationRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken()

	rr := env.do(http.MethodPost, "/auth/switch-organization", token, map[string]int64{"organization_id": 9999})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(http.MethodGet, "/clients", token, nil)
	assert.Equal(t, http.StatusOK, rr.Code, "failed switch keeps the session")
}

func TestViewerCannotWrite(t *testing.T) {
	env := newTestEnv(t)
	env.addMember("viewer@kusystem.test", permissions.RoleViewer)
	sess := env.login("viewer@kusystem.test")

	assert.ElementsMatch(t, []string{permissions.ClientsView, permissions.ProductsView, permissions.QuotesView}, sess.Permissions)

	rr := env.do(http.MethodGet, "/clients", sess.Token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodPost, "/clients", sess.Token, map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "missing permission "+permissions.ClientsCreate, errorMessage(t, rr))

	rr = env.do(http.MethodPut, "/organizations/current", sess.Token, map[string]string{"name": "Nope"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestExtraGrantsExtendRole(t *testing.T) {
	env := newTestEnv(t)
	env.addMember("viewer@kusystem.test", permissions.RoleViewer, permissions.ClientsCreate)
	token := env.login("viewer@kusystem.test").Token

	rr := env.do(http.MethodPost, "/clients", token, map[string]string{"name": "Acme"})
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(http.MethodDelete, "/clients/1", token, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRemovedMemberLosesOpenSessions(t *testing.T) {
	env := newTestEnv(t)
	memberID := env.addMember("admin2@kusystem.test", permissions.RoleAdmin)
	laptop := env.login("admin2@kusystem.test").Token
	phone := env.login("admin2@kusystem.test").Token
	owner := env.adminToken()

	rr := env.do(http.MethodGet, "/members", laptop, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodDelete, "/members/"+itoa(memberID), owner, nil)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	for _, token := range []string{laptop, phone} {
		rr = env.do(http.MethodGet, "/clients", token, nil)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "session closed", errorMessage(t, rr))

		rr = env.do(http.MethodPost, "/clients", token, map[string]string{"name": "Acme"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	rr = env.do(http.MethodGet, "/members", owner, nil)
	assert.Equal(t, http.StatusOK, rr.Code, "other sessions stay open")
}

func TestDemotedMemberLosesGrantsImmediately(t *testing.T) {
	env := newTestEnv(t)
	memberID := env.addMember("admin2@kusystem.test", permissions.RoleAdmin)
	demoted := env.login("admin2@kusystem.test").Token
	owner := env.adminToken()

	rr := env.do(http.MethodPut, "/members/"+itoa(memberID), owner, map[string]any{"role": permissions.RoleViewer})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(http.MethodDelete, "/products/1", demoted, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "missing permission "+permissions.ProductsDelete, errorMessage(t, rr))

	rr = env.do(http.MethodGet, "/members", demoted, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(http.MethodGet, "/clients", demoted, nil)
	assert.Equal(t, http.StatusOK, rr.Code, "viewer grants still apply")
}

func TestMyPermissionsReflectsRevocation(t *testing.T) {
	env := newTestEnv(t)
	sellerID := env.addMember("seller@kusystem.test", permissions.RoleSeller)
	seller := env.login("seller@kusystem.test").Token

	_, err := env.db.Exec(`DELETE FROM members WHERE organization_id = ? AND user_id = ?`, env.orgID, sellerID)
	require.NoError(t, err)

	rr := env.do(http.MethodGet, "/members/me/permissions", seller, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "membership revoked", errorMessage(t, rr))

	rr = env.do(http.MethodGet, "/clients", seller, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMyPermissionsPicksUpRoleChange(t *testing.T) {
	env := newTestEnv(t)
	userID := env.addMember("viewer@kusystem.test", permissions.RoleViewer)
	viewer := env.login("viewer@kusystem.test").Token
	admin := env.adminToken()

	rr := env.do(http.MethodPut, "/members/"+itoa(userID), admin, map[string]any{
		"role":        permissions.RoleSeller,
		"permissions": []string{permissions.QuotesApprove},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(http.MethodGet, "/members/me/permissions", viewer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody[permissionsResponse](t, rr)
	assert.Equal(t, permissions.RoleSeller, got.Role)
	assert.Contains(t, got.Permissions, permissions.QuotesApprove)
	assert.Contains(t, got.Permissions, permissions.ClientsCreate)
}

func TestMembersManagement(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken()

	rr := env.do(http.MethodPost, "/members", admin, map[string]any{
		"email":    "New@KuSystem.test",
		"name":     "Nuevo",
		"password": testPassword,
		"role":     permissions.RoleSeller,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = env.do(http.MethodPost, "/members", admin, map[string]any{
		"email": "new@kusystem.test",
		"role":  permissions.RoleViewer,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(http.MethodPost, "/members", admin, map[string]any{
		"email": "other@kusystem.test",
		"role":  permissions.RoleOwner,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodPost, "/members", admin, map[string]any{
		"email":       "other@kusystem.test",
		"password":    testPassword,
		"role":        permissions.RoleViewer,
		"permissions": []string{"quotes:fly"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodGet, "/members", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	members := decodeBody[[]domain.Member](t, rr)
	require.Len(t, members, 2)
	assert.Equal(t, testAdminEmail, members[0].Email)
	assert.Equal(t, "new@kusystem.test", members[1].Email)
	assert.Equal(t, permissions.RoleSeller, members[1].Role)

	assert.Equal(t, "Nuevo", env.login("new@kusystem.test").User.Name)

	rr = env.do(http.MethodPut, "/members/"+itoa(members[0].UserID), admin, map[string]any{"role": permissions.RoleViewer})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(http.MethodDelete, "/members/"+itoa(members[0].UserID), admin, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(http.MethodDelete, "/members/9999", admin, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRenameOrganization(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken()

	rr := env.do(http.MethodPut, "/organizations/current", admin, map[string]string{"name": "  Casa Sur "})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Casa Sur", decodeBody[domain.Organization](t, rr).Name)

	rr = env.do(http.MethodPut, "/organizations/current", admin, map[string]string{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

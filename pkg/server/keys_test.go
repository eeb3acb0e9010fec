package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/auth/basic"
	"github.com/rhuss/gatekeeper/pkg/config"
	"github.com/rhuss/gatekeeper/pkg/storage"
	"github.com/rhuss/gatekeeper/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyTestHandler(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()

	cfg := testConfig(t)
	hash, err := basic.HashPassword("tenant-password", basic.WithTime(1), basic.WithMemory(1024), basic.WithThreads(1))
	require.NoError(t, err)
	cfg.Auth.Basic.Users = append(cfg.Auth.Basic.Users, config.BasicUserConfig{
		Username: "tenant-admin", PasswordHash: hash, Subject: "org-2-ops", TenantID: "org-2",
	})

	store := memory.New()
	reg, err := NewRegistry(cfg.Auth, store)
	require.NoError(t, err)
	chain, err := NewChain(cfg.Auth, reg)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(cfg, chain, nil, logger, WithKeyStore(store)), store
}

func basicHeader(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

func do(h http.Handler, method, path, authorization, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestKeys_Lifecycle(t *testing.T) {
	h, _ := newKeyTestHandler(t)
	admin := basicHeader("admin", "admin-password")

	rec := do(h, "POST", "/v1/admin/keys", admin, `{"subject":"carol","tenant_id":"org-1","service_tier":"premium","scopes":["read"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created CreateKeyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.True(t, strings.HasPrefix(created.Secret, storage.KeyPrefix))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "carol", created.Identity.Subject)
	assert.Equal(t, "org-1", created.Identity.TenantID())

	// The issued key authenticates on the main chain.
	rec = do(h, "GET", "/v1/whoami", "Bearer "+created.Secret, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var who WhoAmI
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&who))
	assert.Equal(t, "carol", who.Subject)
	assert.Equal(t, "apikey", who.Strategy)
	assert.Equal(t, []string{"read"}, who.Scopes)

	rec = do(h, "GET", "/v1/admin/keys", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), created.Secret, "secrets are not listed")
	var list KeyList
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, created.ID, list.Data[0].ID)

	rec = do(h, "DELETE", "/v1/admin/keys/"+created.ID, admin, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(h, "GET", "/v1/whoami", "Bearer "+created.Secret, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, "DELETE", "/v1/admin/keys/"+created.ID, admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKeys_EmptyList(t *testing.T) {
	h, _ := newKeyTestHandler(t)

	rec := do(h, "GET", "/v1/admin/keys", basicHeader("admin", "admin-password"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"object":"list","data":[]}`, rec.Body.String())
}

func TestKeys_BadRequests(t *testing.T) {
	h, _ := newKeyTestHandler(t)
	admin := basicHeader("admin", "admin-password")

	for name, body := range map[string]string{
		"malformed":       `{"subject":`,
		"missing subject": `{"tenant_id":"org-1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(h, "POST", "/v1/admin/keys", admin, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"type":"invalid_request"`)
		})
	}
}

func TestKeys_RequireBasic(t *testing.T) {
	h, _ := newKeyTestHandler(t)

	rec := do(h, "POST", "/v1/admin/keys", "Bearer sk-alice", `{"subject":"carol"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestKeys_TenantAdminScoped(t *testing.T) {
	h, store := newKeyTestHandler(t)
	admin := basicHeader("admin", "admin-password")
	tenantAdmin := basicHeader("tenant-admin", "tenant-password")

	rec := do(h, "POST", "/v1/admin/keys", admin, `{"subject":"carol","tenant_id":"org-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var other CreateKeyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&other))

	// Tenant admins get their tenant forced onto new keys.
	rec = do(h, "POST", "/v1/admin/keys", tenantAdmin, `{"subject":"dave"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var own CreateKeyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&own))
	assert.Equal(t, "org-2", own.Identity.TenantID())

	rec = do(h, "POST", "/v1/admin/keys", tenantAdmin, `{"subject":"eve","tenant_id":"org-1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var denied errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&denied))
	assert.Equal(t, "forbidden", denied.Error.Type)
	assert.Contains(t, denied.Error.Message, auth.ErrForbidden.Error())

	rec = do(h, "GET", "/v1/admin/keys", tenantAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list KeyList
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, own.ID, list.Data[0].ID)

	rec = do(h, "DELETE", "/v1/admin/keys/"+other.ID, tenantAdmin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	all, err := store.ListKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, k := range all {
		assert.False(t, k.Revoked())
	}
}

func TestKeys_NotMountedWithoutStore(t *testing.T) {
	rec := do(newTestHandler(t, testConfig(t)), "GET", "/v1/admin/keys", basicHeader("admin", "admin-password"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewKeyStore(t *testing.T) {
	ctx := context.Background()

	store, err := NewKeyStore(ctx, config.KeyStoreConfig{})
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = NewKeyStore(ctx, config.KeyStoreConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)

	_, err = NewKeyStore(ctx, config.KeyStoreConfig{Type: "redis"})
	assert.ErrorContains(t, err, "unknown key store type")
}

func TestNewRegistry_StoreEnablesAPIKey(t *testing.T) {
	reg, err := NewRegistry(config.Defaults().Auth, memory.New())
	require.NoError(t, err)

	_, ok := reg.Lookup("apikey")
	assert.True(t, ok)
}

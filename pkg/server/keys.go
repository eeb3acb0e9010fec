package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/storage"
)

// maxKeyRequestBytes bounds the body of key creation requests.
const maxKeyRequestBytes = 64 << 10

// CreateKeyRequest is the body of POST /v1/admin/keys.
type CreateKeyRequest struct {
	Subject     string            `json:"subject"`
	TenantID    string            `json:"tenant_id,omitempty"`
	ServiceTier string            `json:"service_tier,omitempty"`
	Scopes      []string          `json:"scopes,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CreateKeyResponse returns the new key. Secret is never shown again.
type CreateKeyResponse struct {
	storage.KeyRecord
	Secret string `json:"secret"`
}

// KeyList is the body of GET /v1/admin/keys.
type KeyList struct {
	Object string              `json:"object"`
	Data   []storage.KeyRecord `json:"data"`
}

type keyHandler struct {
	store storage.KeyStore
}

func (h *keyHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/admin/keys", h.create)
	mux.HandleFunc("GET /v1/admin/keys", h.list)
	mux.HandleFunc("DELETE /v1/admin/keys/{id}", h.revoke)
}

func (h *keyHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxKeyRequestBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Subject == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "subject is required")
		return
	}

	// Tenant admins can only issue keys for their own tenant.
	if tenantID := storage.GetTenant(r.Context()); tenantID != "" {
		if req.TenantID != "" && req.TenantID != tenantID {
			writeJSONError(w, http.StatusForbidden, "forbidden", auth.ErrForbidden.Error()+": cannot issue keys for another tenant")
			return
		}
		req.TenantID = tenantID
	}

	identity := auth.Identity{
		Subject:     req.Subject,
		ServiceTier: req.ServiceTier,
		Scopes:      req.Scopes,
	}
	if len(req.Metadata) > 0 || req.TenantID != "" {
		identity.Metadata = make(map[string]string, len(req.Metadata)+1)
		for k, v := range req.Metadata {
			identity.Metadata[k] = v
		}
		if req.TenantID != "" {
			identity.Metadata["tenant_id"] = req.TenantID
		}
	}

	rec, secret, err := storage.NewKeyRecord(identity)
	if err != nil {
		slog.Error("generating api key", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}
	if err := h.store.SaveKey(r.Context(), rec); err != nil {
		slog.Error("saving api key", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	slog.Info("api key created", "id", rec.ID, "subject", req.Subject, "tenant_id", req.TenantID,
		"by", callerSubject(r))

	writeJSON(w, http.StatusCreated, CreateKeyResponse{KeyRecord: *rec, Secret: secret})
}

func (h *keyHandler) list(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListKeys(r.Context())
	if err != nil {
		slog.Error("listing api keys", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}
	if keys == nil {
		keys = []storage.KeyRecord{}
	}
	writeJSON(w, http.StatusOK, KeyList{Object: "list", Data: keys})
}

func (h *keyHandler) revoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.store.RevokeKey(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "not_found", "key not found")
		return
	}
	if err != nil {
		slog.Error("revoking api key", "id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	slog.Info("api key revoked", "id", id, "by", callerSubject(r))
	w.WriteHeader(http.StatusNoContent)
}

// tenantScope copies the caller's tenant into the storage context so that
// key operations only see that tenant's keys.
func tenantScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenantID := auth.IdentityFromContext(r.Context()).TenantID(); tenantID != "" {
			r = r.WithContext(storage.SetTenant(r.Context(), tenantID))
		}
		next.ServeHTTP(w, r)
	})
}

func callerSubject(r *http.Request) string {
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		return id.Subject
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, typ, message string) {
	var body errorBody
	body.Error.Type = typ
	body.Error.Message = message
	writeJSON(w, status, body)
}

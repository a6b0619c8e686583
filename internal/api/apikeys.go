package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/duskline/bunker/internal/audit"
	"github.com/duskline/bunker/internal/httpserver"
	"github.com/duskline/bunker/pkg/apikey"
)

// handleListAPIKeys serves GET /admin/api-keys.
func (a *API) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	rows, err := a.st.ListAPIKeys(r.Context())
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list api keys")
		return
	}
	items := make([]apikey.Response, 0, len(rows))
	for _, row := range rows {
		items = append(items, apikey.FromInfo(row))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"keys": items, "count": len(items)})
}

// handleCreateAPIKey serves POST /admin/api-keys.
func (a *API) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apikey.CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	raw, hash, prefix, err := apikey.Generate()
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to generate api key")
		return
	}
	id, err := a.st.CreateAPIKey(r.Context(), req.Description, prefix, hash, req.Role)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create api key")
		return
	}

	a.audit.LogFromRequest(r, audit.Entry{Type: "create", Method: "api_key", Params: id.String()})
	httpserver.Respond(w, http.StatusCreated, apikey.CreateResponse{
		Response: apikey.Response{ID: id, Name: req.Description, KeyPrefix: prefix, Role: req.Role},
		RawKey:   raw,
	})
}

// handleDeleteAPIKey serves DELETE /admin/api-keys/:id.
func (a *API) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid api key ID")
		return
	}
	if err := a.st.DeleteAPIKey(r.Context(), id); err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "api key not found")
		return
	}
	a.audit.LogFromRequest(r, audit.Entry{Type: "delete", Method: "api_key", Params: id.String()})
	httpserver.Respond(w, http.StatusNoContent, nil)
}

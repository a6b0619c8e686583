package api

import (
	"encoding/json"
	"net/http"

	"github.com/duskline/bunker/internal/httpserver"
)

// handleListKeys serves GET /keys: per-stored-key status, npub, bunker URI.
func (a *API) handleListKeys(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, a.keyMgr.ListKeys())
}

type createKeyRequest struct {
	KeyName    string `json:"keyName"`
	Passphrase string `json:"passphrase"`
	Nsec       string `json:"nsec"`
}

// handleCreateKey serves POST /keys: create a new random key, or import one
// from an `nsec`/hex secret, optionally encrypting it at rest.
func (a *API) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.KeyName == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "keyName is required")
		return
	}

	status, err := a.keyMgr.CreateKey(req.KeyName, req.Passphrase, req.Nsec)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "create_failed", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, status)
}

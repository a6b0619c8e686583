package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/duskline/bunker/internal/httpserver"
)

// appRow is one entry of GET /apps: a non-revoked KeyUser with its derived
// permission strings and a count of requests it has made.
type appRow struct {
	ID           string   `json:"id"`
	KeyName      string   `json:"keyName"`
	RemotePubkey string   `json:"remotePubkey"`
	Description  string   `json:"description"`
	Permissions  []string `json:"permissions"`
	RequestCount int      `json:"requestCount"`
}

// handleListApps serves GET /apps.
func (a *API) handleListApps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := a.st.ListKeyUsers(ctx)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	// Audit log rows are cheap enough to pull in bulk and tally in Go; C2
	// has no per-KeyUser count query and adding one is not worth a second
	// round trip per row here.
	entries, err := a.st.ListAuditLog(ctx, 500)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	counts := make(map[uuid.UUID]int, len(users))
	for _, e := range entries {
		if e.KeyUserID != nil {
			counts[*e.KeyUserID]++
		}
	}

	rows := make([]appRow, 0, len(users))
	for _, u := range users {
		if u.Revoked() {
			continue
		}
		conditions, err := a.st.ListSigningConditions(ctx, u.ID)
		if err != nil {
			httpserver.RespondError(w, http.StatusInternalServerError, "list_failed", err.Error())
			return
		}
		perms := make([]string, 0, len(conditions))
		for _, c := range conditions {
			if !c.Allowed {
				continue
			}
			kind := c.KindFilter
			if kind == "" {
				kind = "all"
			}
			perms = append(perms, fmt.Sprintf("%s:%s", c.Method, kind))
		}
		rows = append(rows, appRow{
			ID:           u.ID.String(),
			KeyName:      u.KeyName,
			RemotePubkey: u.UserPubkey,
			Description:  u.Description,
			Permissions:  perms,
			RequestCount: counts[u.ID],
		})
	}
	httpserver.Respond(w, http.StatusOK, rows)
}

type renameAppRequest struct {
	Description string `json:"description"`
}

// handleRenameApp serves PATCH /apps/:id.
func (a *API) handleRenameApp(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	var req renameAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := a.st.RenameKeyUser(r.Context(), id, req.Description); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "rename_failed", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleRevokeApp serves POST /apps/:id/revoke.
func (a *API) handleRevokeApp(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	if err := a.st.RevokeKeyUser(r.Context(), id); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "revoke_failed", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"ok": true})
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/duskline/bunker/internal/audit"
	"github.com/duskline/bunker/internal/httpserver"
	"github.com/duskline/bunker/pkg/pat"
)

// accountAuth re-verifies an Account's vault password on every /user/tokens
// call, since Accounts have no dashboard session of their own (only the
// local administrator and OIDC users do) — the same re-check requests.go
// uses to gate a locked key's approval.
func (a *API) accountAuth(r *http.Request, keyName, password string) (uuid.UUID, bool) {
	if keyName == "" || password == "" {
		return uuid.Nil, false
	}
	if err := a.st.VerifyAccountPassword(r.Context(), keyName, password); err != nil {
		return uuid.Nil, false
	}
	account, err := a.st.GetAccountByKeyName(r.Context(), keyName)
	if err != nil {
		return uuid.Nil, false
	}
	return account.ID, true
}

// handleListTokens serves GET /user/tokens?keyName=&password=.
func (a *API) handleListTokens(w http.ResponseWriter, r *http.Request) {
	accountID, ok := a.accountAuth(r, r.URL.Query().Get("keyName"), r.URL.Query().Get("password"))
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid keyName or password")
		return
	}
	rows, err := a.st.ListPATsByAccount(r.Context(), accountID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list tokens")
		return
	}
	tokens := make([]pat.Token, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, pat.FromInfo(row))
	}
	httpserver.Respond(w, http.StatusOK, pat.ListResponse{Tokens: tokens, Count: len(tokens)})
}

// handleCreateToken serves POST /user/tokens.
func (a *API) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req pat.CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	accountID, ok := a.accountAuth(r, req.KeyName, req.Password)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid keyName or password")
		return
	}

	raw, prefix, hash, err := pat.Generate()
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to generate token")
		return
	}
	id, err := a.st.CreatePAT(r.Context(), accountID, req.Name, prefix, hash, "user")
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create token")
		return
	}

	a.audit.LogFromRequest(r, audit.Entry{Type: "create", Method: "personal_access_token", KeyUserID: nil, Params: jsonString(map[string]string{"id": id.String(), "keyName": req.KeyName})})
	httpserver.Respond(w, http.StatusCreated, pat.CreateResponse{
		Token:    pat.Token{ID: id.String(), Name: req.Name},
		RawToken: raw,
	})
}

// handleDeleteToken serves DELETE /user/tokens/:id.
func (a *API) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		KeyName  string `json:"keyName"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	accountID, ok := a.accountAuth(r, body.KeyName, body.Password)
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid keyName or password")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid token ID")
		return
	}
	if err := a.st.DeletePAT(r.Context(), id, accountID); err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "token not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func jsonString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

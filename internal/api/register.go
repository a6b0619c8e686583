package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/duskline/bunker/internal/audit"
	"github.com/duskline/bunker/internal/httpserver"
)

type registerRequest struct {
	Username string `json:"username"`
	Domain   string `json:"domain"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResult struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	KeyName string `json:"keyName,omitempty"`
}

var reservedUsernames = map[string]bool{
	"admin": true, "root": true, "_": true, "administrator": true, "__": true,
}

// handleRegister serves POST /register/:id. Submitting this form IS the
// admin's approval of the create_account request (§4.8's worked example:
// "Admin submits the registration form with a password"): it runs
// registration validation, rewrites the pending request's params with the
// vetted [username, domain, email] and decides it, waits (poll, 60s) for
// C8's background watcher to load the resulting key into the keyring, then
// bcrypts the password and inserts the Account row.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	var body registerRequest
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Password == "" {
		httpserver.Respond(w, http.StatusUnauthorized, registerResult{Error: "password is required"})
		return
	}

	pr, err := a.st.GetPendingRequest(ctx, id)
	if err != nil || pr.Method != "create_account" {
		httpserver.Respond(w, http.StatusUnauthorized, registerResult{Error: "no such account request"})
		return
	}

	var fields []string
	if err := json.Unmarshal([]byte(pr.Params), &fields); err != nil || len(fields) < 3 {
		httpserver.Respond(w, http.StatusUnauthorized, registerResult{Error: "malformed request"})
		return
	}
	username, domain, email := fields[0], fields[1], fields[2]
	if body.Username != "" {
		username = body.Username
	}
	if body.Domain != "" {
		domain = body.Domain
	}
	if body.Email != "" {
		email = body.Email
	}
	if reservedUsernames[strings.ToLower(username)] {
		httpserver.Respond(w, http.StatusUnauthorized, registerResult{Error: fmt.Sprintf("username %q is reserved", username)})
		return
	}
	keyName := username + "@" + domain

	if pr.Allowed == nil {
		vetted, _ := json.Marshal([]string{username, domain, email})
		if err := a.st.DecidePendingRequest(ctx, id, true, string(vetted)); err != nil {
			httpserver.Respond(w, http.StatusUnauthorized, registerResult{Error: err.Error()})
			return
		}
	} else if !*pr.Allowed {
		httpserver.Respond(w, http.StatusUnauthorized, registerResult{Error: "request was denied"})
		return
	}

	deadline := time.Now().Add(60 * time.Second)
	for {
		if _, ok := a.keys.Get(keyName); ok {
			break
		}
		if time.Now().After(deadline) {
			httpserver.Respond(w, http.StatusUnauthorized, registerResult{Error: "key not yet provisioned"})
			return
		}
		time.Sleep(200 * time.Millisecond)
	}

	if _, err := a.st.GetAccountByKeyName(ctx, keyName); err == nil {
		httpserver.Respond(w, http.StatusUnauthorized, registerResult{Error: "account already exists"})
		return
	}

	if _, err := a.st.CreateAccount(ctx, keyName, email, body.Password); err != nil {
		httpserver.Respond(w, http.StatusUnauthorized, registerResult{Error: err.Error()})
		return
	}

	a.audit.LogFromRequest(r, audit.Entry{Type: "registration", Method: "create_account", Params: pr.Params})
	httpserver.Respond(w, http.StatusOK, registerResult{OK: true, KeyName: keyName})
}

package api

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/duskline/bunker/internal/acl"
	"github.com/duskline/bunker/internal/audit"
	"github.com/duskline/bunker/internal/httpserver"
	"github.com/duskline/bunker/internal/store"
)

// requestRow is one entry of GET /requests, per §4.2/§4.7.
type requestRow struct {
	RequestID    string        `json:"requestId"`
	KeyName      string        `json:"keyName"`
	RemotePubkey string        `json:"remotePubkey"`
	Method       string        `json:"method"`
	Status       string        `json:"status"`
	TTLSeconds   int           `json:"ttlSeconds"`
	CreatedAt    time.Time     `json:"createdAt"`
	EventPreview *eventPreview `json:"eventPreview,omitempty"`
}

// eventPreview is the derived kind/content/tags summary for a pending
// sign_event request, extracted from params[0] on a best-effort basis.
type eventPreview struct {
	Kind    int        `json:"kind"`
	Content string     `json:"content"`
	Tags    [][]string `json:"tags"`
}

func statusOf(pr store.PendingRequest) string {
	if pr.Allowed == nil {
		if time.Since(pr.CreatedAt) >= 60*time.Second {
			return string(store.StatusExpired)
		}
		return string(store.StatusPending)
	}
	if *pr.Allowed {
		return string(store.StatusApproved)
	}
	return "denied"
}

func ttlOf(pr store.PendingRequest) int {
	remaining := 60 - int(time.Since(pr.CreatedAt).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// firstParam decodes the stored JSON-array params and returns element 0,
// or "" if the array is malformed or empty.
func firstParam(raw string) string {
	var params []string
	if err := json.Unmarshal([]byte(raw), &params); err != nil || len(params) == 0 {
		return ""
	}
	return params[0]
}

func previewOf(pr store.PendingRequest) *eventPreview {
	if pr.Method != "sign_event" {
		return nil
	}
	var ev struct {
		Kind    int        `json:"kind"`
		Content string     `json:"content"`
		Tags    [][]string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(firstParam(pr.Params)), &ev); err != nil {
		return nil
	}
	return &eventPreview{Kind: ev.Kind, Content: ev.Content, Tags: ev.Tags}
}

func toRow(pr store.PendingRequest) requestRow {
	return requestRow{
		RequestID:    pr.RequestID,
		KeyName:      pr.KeyName,
		RemotePubkey: pr.RemotePubkey,
		Method:       pr.Method,
		Status:       statusOf(pr),
		TTLSeconds:   ttlOf(pr),
		CreatedAt:    pr.CreatedAt,
		EventPreview: previewOf(pr),
	}
}

// handleListRequests serves GET /requests?status=&limit=&offset=.
func (a *API) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := store.RequestStatus(q.Get("status"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	prs, err := a.st.ListPendingRequests(r.Context(), status, limit, offset)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	rows := make([]requestRow, 0, len(prs))
	for _, pr := range prs {
		rows = append(rows, toRow(pr))
	}
	httpserver.Respond(w, http.StatusOK, rows)
}

var requestPageTemplate = template.Must(template.New("request").Parse(`<!DOCTYPE html>
<html>
<head><title>Approve request</title></head>
<body>
<h1>{{.Method}} for {{.KeyName}}</h1>
<p>From: {{.RemotePubkey}}</p>
<p>Status: {{.Status}} ({{.TTLSeconds}}s remaining)</p>
{{if .EventPreview}}<pre>kind {{.EventPreview.Kind}}: {{.EventPreview.Content}}</pre>{{end}}
<form method="post" action="/requests/{{.RequestID}}">
<input type="password" name="password" placeholder="password (if required)">
<button type="submit" name="decision" value="allow">Allow</button>
<button type="submit" name="decision" value="deny">Deny</button>
</form>
</body>
</html>
`))

var registerPageTemplate = template.Must(template.New("register").Parse(`<!DOCTYPE html>
<html>
<head><title>Create account</title></head>
<body>
<h1>New bunker account</h1>
<p>Requested by: {{.RemotePubkey}}</p>
<form method="post" action="/register/{{.RequestID}}">
<input type="text" name="username" placeholder="username (leave blank to keep generated)">
<input type="text" name="domain" placeholder="domain (leave blank for default)">
<input type="email" name="email" placeholder="email (optional)">
<input type="password" name="password" placeholder="password" required>
<button type="submit">Create account</button>
</form>
</body>
</html>
`))

// handleRequestPage serves GET /requests/:id. For an ordinary signing
// request it's the admin approval page; for a create_account request
// (KeyName == "") it's the registration form that posts to /register/:id.
func (a *API) handleRequestPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pr, err := a.st.GetPendingRequest(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no such request")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	tmpl := requestPageTemplate
	if pr.Method == "create_account" {
		tmpl = registerPageTemplate
	}
	if err := tmpl.Execute(w, toRow(*pr)); err != nil {
		a.logger.Error("rendering request page", "error", err)
	}
}

type approveResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// handleApproveRequest serves POST /requests/:id, per §4.7: approve without
// a password if the target key is plain-text, else verify the account
// password. On success, writes the blanket allow conditions (connect
// implies sign_event kind=all) and appends an audit row.
func (a *API) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	pr, err := a.st.GetPendingRequest(ctx, id)
	if err != nil {
		httpserver.Respond(w, http.StatusNotFound, approveResult{Error: "no such request"})
		return
	}
	if pr.Allowed != nil {
		httpserver.Respond(w, http.StatusUnauthorized, approveResult{Error: "already decided"})
		return
	}
	if pr.KeyName == "" {
		httpserver.Respond(w, http.StatusUnauthorized, approveResult{Error: "use /register for account creation requests"})
		return
	}

	decision := r.FormValue("decision")
	if decision == "" {
		decision = r.URL.Query().Get("decision")
	}
	if decision == "" {
		decision = "allow"
	}

	if decision == "deny" {
		if err := a.st.DecidePendingRequest(ctx, id, false, pr.Params); err != nil {
			httpserver.Respond(w, http.StatusUnauthorized, approveResult{Error: err.Error()})
			return
		}
		a.audit.LogFromRequest(r, audit.Entry{Type: "denial", Method: pr.Method, Params: pr.Params})
		httpserver.Respond(w, http.StatusOK, approveResult{OK: true})
		return
	}

	locked, err := a.keyMgr.IsEncrypted(pr.KeyName)
	if err != nil {
		httpserver.Respond(w, http.StatusUnauthorized, approveResult{Error: err.Error()})
		return
	}
	if locked {
		password := r.FormValue("password")
		if password == "" {
			var body struct {
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			password = body.Password
		}
		if err := a.st.VerifyAccountPassword(ctx, pr.KeyName, password); err != nil {
			httpserver.Respond(w, http.StatusUnauthorized, approveResult{Error: "invalid password"})
			return
		}
	}

	keyUser, err := a.st.UpsertKeyUser(ctx, pr.KeyName, pr.RemotePubkey, "")
	if err != nil {
		httpserver.Respond(w, http.StatusUnauthorized, approveResult{Error: err.Error()})
		return
	}
	if err := acl.PermitAllRequests(ctx, a.st, keyUser.ID, pr.Method, blanketKindFilter(pr.Method)); err != nil {
		httpserver.Respond(w, http.StatusUnauthorized, approveResult{Error: err.Error()})
		return
	}
	if pr.Method == "connect" {
		if err := acl.PermitAllRequests(ctx, a.st, keyUser.ID, "sign_event", "all"); err != nil {
			httpserver.Respond(w, http.StatusUnauthorized, approveResult{Error: err.Error()})
			return
		}
	}

	if err := a.st.DecidePendingRequest(ctx, id, true, pr.Params); err != nil {
		httpserver.Respond(w, http.StatusUnauthorized, approveResult{Error: err.Error()})
		return
	}
	a.audit.LogFromRequest(r, audit.Entry{Type: "approval", Method: pr.Method, Params: pr.Params, KeyUserID: &keyUser.ID})

	httpserver.Respond(w, http.StatusOK, approveResult{OK: true})
}

// blanketKindFilter is the SigningCondition kindFilter an "always allow"
// decision writes: "all" for sign_event, so the grant covers every kind per
// spec §8 Scenario 1, not just the kind the triggering request happened to
// carry; "" (no kind filtering) for every other method.
func blanketKindFilter(method string) string {
	if method == "sign_event" {
		return "all"
	}
	return ""
}

// Package api implements the HTTP Surface (C7): the bunker-specific
// resource surface from spec §6 (/connection, /requests, /register,
// /keys, /apps, /dashboard), mounted onto the shared internal/httpserver
// chi router. Grounded on the teacher's handler packages (pkg/incident,
// pkg/alert, etc.): one small struct per resource group, a Routes()
// chi.Router constructor, JSON via internal/httpserver.Respond.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/duskline/bunker/internal/audit"
	"github.com/duskline/bunker/internal/auth"
	"github.com/duskline/bunker/internal/keyring"
	"github.com/duskline/bunker/internal/store"
)

// KeyManager bridges the API to the daemon's vault/keyring wiring, letting
// /keys list locked-and-unlocked key status and create or import new keys
// without the api package depending on internal/vault directly.
type KeyManager interface {
	ListKeys() []KeyStatus
	CreateKey(name, passphrase, nsec string) (KeyStatus, error)
	IsEncrypted(name string) (bool, error)
}

// KeyStatus is one row of GET /keys.
type KeyStatus struct {
	Name      string `json:"name"`
	Npub      string `json:"npub,omitempty"`
	PubKeyHex string `json:"pubkeyHex,omitempty"`
	Locked    bool   `json:"locked"`
	BunkerURI string `json:"bunkerUri,omitempty"`
}

// API is the C7 HTTP Surface handler set.
type API struct {
	st       *store.Store
	keys     *keyring.Keyring
	keyMgr   KeyManager
	audit    *audit.Writer
	relays   []string
	adminPub string
	baseURL  string
	logger   *slog.Logger
}

// Config bundles API construction parameters.
type Config struct {
	Store       *store.Store
	Keyring     *keyring.Keyring
	KeyManager  KeyManager
	AuditWriter *audit.Writer
	Relays      []string
	AdminPubkey string
	BaseURL     string
	Logger      *slog.Logger
}

// New constructs the API handler set.
func New(cfg Config) *API {
	return &API{
		st:       cfg.Store,
		keys:     cfg.Keyring,
		keyMgr:   cfg.KeyManager,
		audit:    cfg.AuditWriter,
		relays:   cfg.Relays,
		adminPub: cfg.AdminPubkey,
		baseURL:  cfg.BaseURL,
		logger:   cfg.Logger.With("component", "api"),
	}
}

// PublicRoutes mounts the unauthenticated, relay-client-and-admin-facing
// surface: /connection, /requests, /register. These have no session
// concept of their own — /requests/:id approval is gated by the target
// key's own password (or none, if the key is plain-text), per §4.7.
func (a *API) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/connection", a.handleConnection)
	r.Get("/requests", a.handleListRequests)
	r.Get("/requests/{id}", a.handleRequestPage)
	r.Post("/requests/{id}", a.handleApproveRequest)
	r.Post("/register/{id}", a.handleRegister)
	r.Get("/user/tokens", a.handleListTokens)
	r.Post("/user/tokens", a.handleCreateToken)
	r.Delete("/user/tokens/{id}", a.handleDeleteToken)
	return r
}

// DashboardRoutes mounts the authenticated dashboard surface: /keys,
// /apps, /dashboard. Intended to be mounted under the session/API-key
// authenticated sub-router (internal/httpserver's /api/v1). /admin/* is
// further restricted to auth.RoleAdmin identities, per §6: it mints and
// revokes API keys, so a readonly identity must not reach it.
func (a *API) DashboardRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/keys", a.handleListKeys)
	r.Post("/keys", a.handleCreateKey)
	r.Get("/apps", a.handleListApps)
	r.Patch("/apps/{id}", a.handleRenameApp)
	r.Post("/apps/{id}/revoke", a.handleRevokeApp)
	r.Get("/dashboard", a.handleDashboard)

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Get("/api-keys", a.handleListAPIKeys)
		r.Post("/api-keys", a.handleCreateAPIKey)
		r.Delete("/api-keys/{id}", a.handleDeleteAPIKey)
	})

	return r
}

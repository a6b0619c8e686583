// Package app wires the daemon together: vault/keyring bootstrap, database
// and cache connections, one Signer Core endpoint per active key, the
// Authorization Broker, the Admin Channel, the Provisioning watcher, and
// the HTTP Surface — mirroring the teacher's internal/app.Run entry point.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"

	"github.com/duskline/bunker/internal/admin"
	"github.com/duskline/bunker/internal/api"
	"github.com/duskline/bunker/internal/audit"
	"github.com/duskline/bunker/internal/auth"
	"github.com/duskline/bunker/internal/broker"
	"github.com/duskline/bunker/internal/config"
	"github.com/duskline/bunker/internal/httpserver"
	"github.com/duskline/bunker/internal/keymanager"
	"github.com/duskline/bunker/internal/keyring"
	"github.com/duskline/bunker/internal/platform"
	"github.com/duskline/bunker/internal/provisioning"
	"github.com/duskline/bunker/internal/signer"
	"github.com/duskline/bunker/internal/store"
	"github.com/duskline/bunker/internal/telemetry"
	"github.com/duskline/bunker/internal/vault"
	"github.com/duskline/bunker/pkg/slack"
)

// Run reads config, opens the vault, connects to infrastructure, starts one
// Signer Core endpoint per active key plus the Admin Channel, and serves the
// HTTP Surface until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	level := cfg.LogLevel
	if cfg.Verbose {
		level = "debug"
	}
	logger := telemetry.NewLogger(cfg.LogFormat, level)
	slog.SetDefault(logger)

	logger.Info("starting bunker", "listen", cfg.ListenAddr(), "vault", cfg.VaultPath)

	doc, err := vault.Load(cfg.VaultPath)
	if err != nil {
		return fmt.Errorf("loading vault: %w", err)
	}
	if doc.AuthHost != "" {
		cfg.Host = doc.AuthHost
	}
	if doc.AuthPort != 0 {
		cfg.Port = doc.AuthPort
	}

	kr := keyring.New()
	km := keymanager.New(cfg.VaultPath, doc, kr)
	if err := km.LoadPlainKeys(); err != nil {
		return fmt.Errorf("loading plain keys: %w", err)
	}
	if cfg.VaultPassphrase != "" {
		for name, sk := range doc.Keys {
			if !sk.IsEncrypted() {
				continue
			}
			if _, err := km.UnlockKey(ctx, name, cfg.VaultPassphrase); err != nil {
				logger.Warn("could not unlock key at boot", "key_name", name, "error", err)
			}
		}
	}

	adminSecret := doc.Admin.Secret
	if adminSecret == "" {
		return errors.New("vault: admin.secret is required (run `setup` first)")
	}
	adminKey, err := kr.Put("__admin__", adminSecret)
	if err != nil {
		return fmt.Errorf("loading admin key: %w", err)
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	st := store.New(db)

	vaultDir := filepath.Dir(cfg.VaultPath)
	directoryDir := filepath.Join(vaultDir, "directories")
	if err := os.MkdirAll(directoryDir, 0o755); err != nil {
		return fmt.Errorf("creating directory store: %w", err)
	}

	notifier := slack.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)

	provisioner := provisioning.New(provisioning.Config{
		Store:        st,
		Loader:       km,
		Domains:      doc.Domains,
		Relays:       doc.Nostr.Relays,
		DirectoryDir: directoryDir,
		BaseURL:      doc.BaseURL,
		Notifier:     notifier,
		Logger:       logger,
	})

	adminChannel, err := admin.New(admin.Config{
		Key:                adminKey,
		RelayURLs:          doc.Admin.AdminRelays,
		AdminNpubs:         doc.Admin.Npubs,
		Store:              st,
		Keyring:            kr,
		Loader:             km,
		Provisioner:        provisioner,
		DescriptorPath:     filepath.Join(vaultDir, "connection.txt"),
		NotifyAdminsOnBoot: doc.Admin.NotifyAdminsOnBoot,
		Notifier:           notifier,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("constructing admin channel: %w", err)
	}

	requestBroker := broker.New(st, doc.BaseURL, adminChannel, notifier)

	signerErrCh := make(chan error, 1+len(doc.Keys))
	for name := range doc.Keys {
		ak, ok := kr.Get(name)
		if !ok {
			continue // still locked; a key unlocked later is loaded into the keyring but gets no signer endpoint
		}
		ep := signer.New(ak, doc.Nostr.Relays, st, requestBroker, logger)
		go func(name string) {
			if err := ep.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				signerErrCh <- fmt.Errorf("signer endpoint %s: %w", name, err)
			}
		}(name)
	}

	go func() {
		if err := adminChannel.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			signerErrCh <- fmt.Errorf("admin channel: %w", err)
		}
	}()

	go reapPendingRequests(ctx, st, logger)

	auditWriter := audit.NewWriter(st, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		sessionSecret = auth.GenerateDevSecret()
		logger.Info("session: using auto-generated dev secret (set BUNKER_SESSION_SECRET in production)")
	}
	sessionMaxAge, err := time.ParseDuration(cfg.SessionMaxAge)
	if err != nil {
		return fmt.Errorf("parsing session max age %q: %w", cfg.SessionMaxAge, err)
	}
	sessionMgr, err := auth.NewSessionManager(sessionSecret, sessionMaxAge)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	var oidcAuth *auth.OIDCAuthenticator
	if cfg.OIDCIssuerURL != "" && cfg.OIDCClientID != "" {
		oidcAuth, err = auth.NewOIDCAuthenticator(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return fmt.Errorf("initializing OIDC authenticator: %w", err)
		}
		logger.Info("OIDC authentication enabled", "issuer", cfg.OIDCIssuerURL)
	} else {
		logger.Info("OIDC authentication disabled (OIDC_ISSUER_URL not set)")
	}

	patAuth := auth.NewPATAuthenticator(st)
	apikeyAuth := auth.NewAPIKeyAuthenticator(st)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, httpserver.Deps{
		SessionMgr: sessionMgr,
		OIDCAuth:   oidcAuth,
		PATAuth:    patAuth,
		APIKeyAuth: apikeyAuth,
	})

	rateLimiter := auth.NewRateLimiter(rdb, 10, 15*time.Minute)
	localAdminHandler := auth.NewLocalAdminHandler(sessionMgr, st, logger, rateLimiter, oidcAuth != nil)
	srv.Router.Post("/auth/local", localAdminHandler.HandleLocalLogin)
	srv.Router.Post("/auth/change-password", localAdminHandler.HandleChangePassword)
	srv.Router.Get("/auth/config", localAdminHandler.HandleAuthConfig)
	srv.Router.Get("/auth/me", localAdminHandler.HandleMe)
	srv.Router.Post("/auth/logout", localAdminHandler.HandleLogout)

	if oidcAuth != nil && cfg.OIDCClientSecret != "" {
		oauth2Cfg := &oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.OIDCIssuerURL + "/authorize",
				TokenURL: cfg.OIDCIssuerURL + "/oauth/token",
			},
		}
		oidcFlow := auth.NewOIDCFlowHandler(oauth2Cfg, oidcAuth, sessionMgr, logger)
		srv.Router.Get("/auth/oidc/login", oidcFlow.HandleLogin)
		srv.Router.Get("/auth/oidc/callback", oidcFlow.HandleCallback)
		logger.Info("OIDC Authorization Code flow enabled", "redirect_url", cfg.OIDCRedirectURL)
	}

	httpAPI := api.New(api.Config{
		Store:       st,
		Keyring:     kr,
		KeyManager:  km,
		AuditWriter: auditWriter,
		Relays:      doc.Admin.AdminRelays,
		AdminPubkey: adminKey.PubKeyHex,
		BaseURL:     doc.BaseURL,
		Logger:      logger,
	})
	srv.Router.Mount("/", httpAPI.PublicRoutes())
	srv.APIRouter.Mount("/", httpAPI.DashboardRoutes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	case err := <-signerErrCh:
		return err
	}
}

// reapPendingRequests expires undecided PendingRequests older than 60s,
// per §4.2. It sweeps every 10s, so a request is expired at most about 10s
// after its 60s TTL has passed.
func reapPendingRequests(ctx context.Context, st *store.Store, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := st.ReapExpired(ctx); err != nil {
				logger.Error("reaping expired pending requests", "error", err)
			}
		}
	}
}


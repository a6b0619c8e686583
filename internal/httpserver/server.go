package httpserver

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/duskline/bunker/internal/auth"
	"github.com/duskline/bunker/internal/config"
	"github.com/duskline/bunker/internal/version"
)

// Server holds the HTTP server dependencies. Dashboard handlers (C7) are
// mounted on APIRouter after NewServer returns; the relay-client-facing and
// admin-approval-facing routes (/connection, /requests/:id, /register/:id)
// are mounted directly on Router, unauthenticated, per spec.md.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router // authenticated dashboard sub-router, mounted at /api/v1
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// Deps bundles the authenticators NewServer wires into the dashboard auth
// middleware. OIDCAuth, PATAuth, and APIKeyAuth may be nil when that method
// is not configured or not yet needed by a route.
type Deps struct {
	SessionMgr *auth.SessionManager
	OIDCAuth   *auth.OIDCAuthenticator
	PATAuth    *auth.PATAuthenticator
	APIKeyAuth *auth.APIKeyAuthenticator
}

// NewServer creates an HTTP server with ambient middleware and health/metrics
// endpoints, and mounts the authenticated dashboard sub-router at /api/v1.
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, deps Deps) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Get("/status", s.HandleStatus)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(deps.SessionMgr, deps.OIDCAuth, deps.PATAuth, deps.APIKeyAuth, logger))
		r.Use(auth.RequireAuth)

		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			id := auth.FromContext(r.Context())
			Respond(w, http.StatusOK, map[string]string{
				"subject": id.Subject,
				"role":    id.Role,
				"method":  id.Method,
			})
		})

		s.APIRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}

	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Logger.Error("readiness check: redis ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusResponse is the JSON shape returned by HandleStatus.
type statusResponse struct {
	Status          string  `json:"status"`
	Version         string  `json:"version"`
	CommitSHA       string  `json:"commit_sha"`
	Uptime          string  `json:"uptime"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	Database        string  `json:"database"`
	DatabaseLatency float64 `json:"database_latency_ms"`
	Redis           string  `json:"redis"`
	RedisLatency    float64 `json:"redis_latency_ms"`
}

// HandleStatus returns system health information including DB/Redis
// connectivity and process uptime.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uptime := time.Since(s.startedAt)

	resp := statusResponse{
		Version:       version.Version,
		CommitSHA:     version.Commit,
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
	}

	dbStart := time.Now()
	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("status check: database ping failed", "error", err)
		resp.Database = "error"
	} else {
		resp.Database = "ok"
	}
	resp.DatabaseLatency = math.Round(float64(time.Since(dbStart).Microseconds())/10) / 100

	if s.Redis != nil {
		redisStart := time.Now()
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Logger.Error("status check: redis ping failed", "error", err)
			resp.Redis = "error"
		} else {
			resp.Redis = "ok"
		}
		resp.RedisLatency = math.Round(float64(time.Since(redisStart).Microseconds())/10) / 100
	}

	if resp.Database == "ok" {
		resp.Status = "ok"
	} else {
		resp.Status = "degraded"
	}

	Respond(w, http.StatusOK, resp)
}

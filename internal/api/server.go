package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/terra-clan/judgehub/internal/auth"
	"github.com/terra-clan/judgehub/internal/config"
	"github.com/terra-clan/judgehub/internal/health"
	"github.com/terra-clan/judgehub/internal/judging"
	"github.com/terra-clan/judgehub/internal/metrics"
	"github.com/terra-clan/judgehub/internal/notify"
)

// Deps are the collaborators the HTTP server needs
type Deps struct {
	Service    *judging.Service
	Subscriber notify.Subscriber
	Tokens     *auth.TokenIssuer
	Health     *health.Registry
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	LoginRate  float64
	LoginBurst int
}

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	service        *judging.Service
	subscriber     notify.Subscriber
	health         *health.Registry
	metrics        *metrics.Metrics
	gatherer       prometheus.Gatherer
	authMiddleware *AuthMiddleware
	loginLimiter   *IPRateLimiter
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Health == nil {
		deps.Health = health.NewRegistry(0)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}
	if deps.LoginRate <= 0 {
		deps.LoginRate = 1
	}
	if deps.LoginBurst <= 0 {
		deps.LoginBurst = 5
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		config:         cfg,
		service:        deps.Service,
		subscriber:     deps.Subscriber,
		health:         deps.Health,
		metrics:        deps.Metrics,
		gatherer:       deps.Gatherer,
		authMiddleware: NewAuthMiddleware(deps.Tokens),
		loginLimiter:   NewIPRateLimiter(rate.Limit(deps.LoginRate), deps.LoginBurst),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Outside the versioned API, public
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Websocket streams outlive the request timeout
		r.Get("/competitions/{id}/ws", s.handleSubscribeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.config.RequestTimeout))

			r.Route("/auth", func(r chi.Router) {
				r.With(RateLimitMiddleware(s.loginLimiter)).Post("/login", s.handleLogin)
				r.With(s.authMiddleware.Authenticate).Get("/me", s.handleMe)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(s.authMiddleware.Authenticate)
				r.Use(s.authMiddleware.RequirePermission(auth.PermManageUsers))
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
			})

			r.Route("/competitions", func(r chi.Router) {
				r.Get("/", s.handleListCompetitions)
				r.With(s.require(auth.PermManageCompetitions)...).Post("/", s.handleCreateCompetition)

				r.Route("/{id}", func(r chi.Router) {
					admin := r.With(s.require(auth.PermManageCompetitions)...)
					judge := r.With(s.require(auth.PermSubmitScores)...)
					ledger := r.With(s.require(auth.PermReadLedger)...)

					r.Get("/", s.handleGetCompetition)
					admin.Put("/status", s.handleUpdateStatus)

					r.Get("/criteria", s.handleGetCriteria)
					admin.Put("/criteria", s.handleDefineCriteria)

					admin.Post("/participants", s.handleAddParticipant)
					admin.Delete("/participants/{pid}", s.handleRemoveParticipant)
					admin.Post("/judges", s.handleAddJudge)

					judge.Post("/scores", s.handleSubmitScore)
					ledger.Get("/scores", s.handleListScores)
					judge.Get("/participants/{pid}/scores", s.handleGetJudgeScores)

					r.Get("/leaderboard", s.handleLeaderboard)
					r.Post("/leaderboard/diff", s.handleLeaderboardDiff)
					r.Get("/leaderboard.xlsx", s.handleLeaderboardXLSX)
				})
			})
		})
	})

	s.router = r
}

// require authenticates the caller and checks p
func (s *Server) require(p auth.Permission) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		s.authMiddleware.Authenticate,
		s.authMiddleware.RequirePermission(p),
	}
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

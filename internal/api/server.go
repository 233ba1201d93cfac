package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/capigrid/capigrid/internal/auth"
	"github.com/capigrid/capigrid/internal/config"
	"github.com/capigrid/capigrid/internal/db"
	"github.com/capigrid/capigrid/internal/ledger"
	"github.com/capigrid/capigrid/internal/mailer"
	"github.com/capigrid/capigrid/internal/metrics"
	"github.com/capigrid/capigrid/internal/repository"
	"github.com/capigrid/capigrid/internal/stats"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cfg        *config.Config
	logger     *slog.Logger

	engine *ledger.Engine
	stats  *stats.Service
	tokens *auth.TokenManager
	google *auth.GoogleProvider
	mail   *mailer.Mailer

	users         *repository.UserRepository
	emailTokens   *repository.TokenRepository
	categories    *repository.CategoryRepository
	campaigns     *repository.CampaignRepository
	rewards       *repository.RewardRepository
	contributions *repository.ContributionRepository
	updates       *repository.UpdateRepository
}

// NewServer creates the API server with all routes configured
func NewServer(cfg *config.Config, database *db.DB, google *auth.GoogleProvider, mail *mailer.Mailer, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger.With("component", "api"),

		engine: ledger.New(database.DB, logger),
		stats:  stats.NewService(database.DB),
		tokens: auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Std()),
		google: google,
		mail:   mail,

		users:         repository.NewUserRepository(database.DB),
		emailTokens:   repository.NewTokenRepository(database.DB),
		categories:    repository.NewCategoryRepository(database.DB),
		campaigns:     repository.NewCampaignRepository(database.DB),
		rewards:       repository.NewRewardRepository(database.DB),
		contributions: repository.NewContributionRepository(database.DB),
		updates:       repository.NewUpdateRepository(database.DB),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", s.handleRegister)
		r.Get("/auth/verify", s.handleVerifyEmail)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/password/forgot", s.handleForgotPassword)
		r.Post("/auth/password/reset", s.handleResetPassword)
		r.Get("/auth/google", s.handleGoogleLogin)
		r.Get("/auth/google/callback", s.handleGoogleCallback)

		r.Get("/categories", s.handleListCategories)
		r.Get("/campaigns", s.handleListCampaigns)
		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Get("/campaigns/{id}/rewards", s.handleListRewards)
		r.Get("/campaigns/{id}/contributions", s.handleListContributions)
		r.Get("/campaigns/{id}/updates", s.handleListUpdates)
		r.Get("/stats", s.handleStats)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/campaigns", s.handleCreateCampaign)
			r.Put("/campaigns/{id}", s.handleUpdateCampaign)
			r.Delete("/campaigns/{id}", s.handleDeleteCampaign)
			r.Post("/campaigns/{id}/rewards", s.handleCreateReward)
			r.Post("/campaigns/{id}/contributions", s.handleCreateContribution)
			r.Post("/campaigns/{id}/updates", s.handleCreateUpdate)
			r.Get("/me/contributions", s.handleMyContributions)

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.adminMiddleware)

				r.Get("/users", s.handleAdminListUsers)
				r.Get("/campaigns", s.handleAdminListCampaigns)
				r.Put("/users/{id}/toggle", s.handleAdminToggleUser)
				r.Put("/campaigns/{id}/feature", s.handleAdminFeatureCampaign)
				r.Put("/campaigns/{id}/status", s.handleAdminCampaignStatus)
			})
		})
	})
}

// Router returns the configured HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout.Std(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  s.cfg.Server.IdleTimeout.Std(),
	}

	s.logger.Info("starting HTTP API server", "addr", s.cfg.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

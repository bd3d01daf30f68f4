package web

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"nutrition-assistant-bot/internal/config"
	"nutrition-assistant-bot/internal/infra/metrics"
	"nutrition-assistant-bot/internal/usecase"
)

// Server is the operator-facing stats API. Sessions are JWT cookies minted on
// password login; bearer tokens work too for scripted access.
type Server struct {
	cfg     *config.Config
	auth    *AuthManager
	statsUC usecase.StatsUseCase
	log     *zerolog.Logger
	server  *http.Server
}

func NewServer(cfg *config.Config, statsUC usecase.StatsUseCase, logger *zerolog.Logger) *Server {
	srvLog := logger.With().Str("component", "AdminServer").Logger()
	return &Server{
		cfg:     cfg,
		auth:    NewAuthManager(cfg.Admin.JWTSecret, !cfg.Runtime.Dev, cfg.Admin.SessionTTL),
		statsUC: statsUC,
		log:     &srvLog,
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Admin.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("admin server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler builds the routed handler; split out so tests can drive it with
// httptest directly.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/login", s.handleLogin)
	r.Post("/api/v1/logout", s.handleLogout)
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/v1/stats", statsHandler(s.statsUC))
	})
	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.cfg.Admin.JWTSecret) == 0 {
			s.log.Error().Msg("admin jwt secret is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			metrics.IncAdminCommand(r.URL.Path, "unauthorized")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		metrics.IncAdminCommand(r.URL.Path, "authorized")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Admin.Password == "" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	password := r.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Admin.Password)) != 1 {
		metrics.IncAdminCommand("login", "unauthorized")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := s.auth.Mint(w); err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	metrics.IncAdminCommand("login", "authorized")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

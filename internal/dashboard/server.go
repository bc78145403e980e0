// Package dashboard exposes a small read-only HTTP status surface over the
// journal and the broker: latest run report, trade history, open positions.
// JSON only; rendering is left to whatever consumes it.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/broker"
	"github.com/eddiefleurent/stamford_scalper/internal/models"
	"github.com/eddiefleurent/stamford_scalper/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	broker    broker.Broker
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

// StatusView is the top-level payload for /api/status.
type StatusView struct {
	LatestRun *models.RunReport `json:"latest_run"`
	Runs      int               `json:"runs"`
	Trades    int               `json:"trades"`
	Timestamp time.Time         `json:"timestamp"`
}

func NewServer(cfg Config, storage storage.Interface, broker broker.Broker, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   storage,
		broker:    broker,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/report", s.handleReport)
	s.router.Get("/api/trades", s.handleTrades)
	s.router.Get("/api/positions", s.handlePositions)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view := StatusView{
		LatestRun: s.storage.LatestReport(),
		Runs:      len(s.storage.GetReports()),
		Trades:    len(s.storage.GetTrades()),
		Timestamp: time.Now().UTC(),
	}
	s.writeJSON(w, view)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report := s.storage.LatestReport()
	if report == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, report)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.storage.GetTrades())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	positions, err := s.broker.ListOpenPositions(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list open positions")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []models.Position{}
	}
	s.writeJSON(w, positions)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

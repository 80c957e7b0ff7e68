// Package server provides the HTTP control API for the bot manager.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonathan/wohnblitz/internal/bot"
	"github.com/jonathan/wohnblitz/internal/db"
	"github.com/jonathan/wohnblitz/internal/maintenance"
	"github.com/jonathan/wohnblitz/internal/observability"
	"github.com/jonathan/wohnblitz/internal/server/ratelimit"
	"github.com/jonathan/wohnblitz/internal/types"
)

// BotController is the bot manager as seen by the API.
type BotController interface {
	Start(ctx context.Context, userID uuid.UUID) bot.Result
	Stop(ctx context.Context, userID uuid.UUID) bot.Result
	Restart(ctx context.Context, userID uuid.UUID) bot.Result
	StopAll(ctx context.Context) bot.Result
	ShutdownAll(ctx context.Context) bot.Result
	Status(userID uuid.UUID) (bot.Metrics, bool)
	AllStatuses() []bot.Metrics
	Overview() bot.Overview
}

// Store is the storage the API reads and writes directly.
type Store interface {
	Ping(ctx context.Context) error
	GetUserAccount(ctx context.Context, userID uuid.UUID) (*types.UserAccount, error)
	UpdateBotConfig(ctx context.Context, userID uuid.UUID, filterJSON, profileJSON *string) error
	ListLogs(ctx context.Context, filters db.LogFilters) ([]db.BotLog, error)
	DeleteUserLogs(ctx context.Context, userID uuid.UUID) (int64, error)
	ListApplications(ctx context.Context, userID uuid.UUID, limit int) ([]db.Application, error)
	GetApplication(ctx context.Context, id uuid.UUID) (*db.Application, error)
}

// MaintenanceReporter exposes the last maintenance run.
type MaintenanceReporter interface {
	Report() maintenance.Report
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	bots        BotController
	store       Store
	metrics     *observability.Registry
	maintenance MaintenanceReporter
	rateLimiter *ratelimit.Limiter
	validate    *validator.Validate

	// streamInterval is how often status streams poll the manager.
	streamInterval time.Duration
}

// Config holds server configuration
type Config struct {
	Port int
	// StreamInterval defaults to two seconds.
	StreamInterval time.Duration
	// RateLimit defaults to ratelimit.LoadConfig.
	RateLimit *ratelimit.Config
}

// Deps are the components the server exposes.
type Deps struct {
	Bots        BotController
	Store       Store
	Metrics     *observability.Registry
	Maintenance MaintenanceReporter
}

// New creates a new server instance
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		bots:           deps.Bots,
		store:          deps.Store,
		metrics:        deps.Metrics,
		maintenance:    deps.Maintenance,
		validate:       validator.New(),
		streamInterval: cfg.StreamInterval,
	}
	if s.streamInterval <= 0 {
		s.streamInterval = 2 * time.Second
	}
	if s.metrics == nil {
		s.metrics = observability.NewRegistry()
	}

	rl := cfg.RateLimit
	if rl == nil {
		rl = ratelimit.LoadConfig()
	}
	s.rateLimiter = ratelimit.NewLimiter(rl)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Per-user bot control
	mux.HandleFunc("POST /users/{id}/bot/start", s.handleStartBot)
	mux.HandleFunc("POST /users/{id}/bot/stop", s.handleStopBot)
	mux.HandleFunc("POST /users/{id}/bot/restart", s.handleRestartBot)
	mux.HandleFunc("GET /users/{id}/bot/status", s.handleBotStatus)
	mux.HandleFunc("GET /users/{id}/bot/status/stream", s.handleBotStatusStream)

	// Per-user data
	mux.HandleFunc("GET /users/{id}/bot/config", s.handleGetBotConfig)
	mux.HandleFunc("PUT /users/{id}/bot/config", s.handleUpdateBotConfig)
	mux.HandleFunc("GET /users/{id}/bot/logs", s.handleListLogs)
	mux.HandleFunc("DELETE /users/{id}/bot/logs", s.handleDeleteLogs)
	mux.HandleFunc("GET /users/{id}/applications", s.handleListApplications)
	mux.HandleFunc("GET /users/{id}/applications/{appID}", s.handleGetApplication)

	// Fleet
	mux.HandleFunc("GET /bots", s.handleListBots)
	mux.HandleFunc("POST /bots/stop-all", s.handleStopAllBots)

	// Monitoring
	mux.HandleFunc("GET /monitoring/metrics", s.handleMetrics)
	mux.HandleFunc("GET /monitoring/report", s.handleMaintenanceReport)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // status streams stay open
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves requests until ctx is cancelled or the process receives
// SIGINT or SIGTERM, then stops every bot and shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] Listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Printf("[server] Server error: %v", serveErr)
	}
	log.Println("[server] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("server shutdown failed: %w", err)
	}

	res := s.bots.ShutdownAll(shutdownCtx)
	log.Printf("[server] Bots: %s", res.Message)

	s.rateLimiter.Stop()
	log.Println("[server] Stopped")
	return serveErr
}

// ----- Middleware -----

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients that exceed their limit with 429
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)
		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)

		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// ----- Responses -----

// handleHealth reports whether the database is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	overview := s.bots.Overview()
	if err := s.store.Ping(ctx); err != nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status":      "degraded",
			"database":    "unreachable",
			"active_bots": overview.ActiveBots,
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"database":    "ok",
		"active_bots": overview.ActiveBots,
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[server] Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// resultResponse writes a manager result. Failed operations are conflicts
// with the bot's current state.
func (s *Server) resultResponse(w http.ResponseWriter, res bot.Result) {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusConflict
	}
	s.jsonResponse(w, status, res)
}

// userID parses the {id} path value, writing a 400 when it is not a UUID.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}

// extractClientID uses the IP address from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}

	if info.RetryAfter > 0 {
		seconds := max(int(info.RetryAfter.Seconds()), 1)
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d", info.Limit, info.Remaining)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

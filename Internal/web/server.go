package web

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coveport/tidebot/Internal/engine"
	"github.com/coveport/tidebot/Internal/strategy/metrics"
)

// Server exposes the running engine over a small read-only HTTP API.
type Server struct {
	Engine         *engine.Engine
	JWTManager     *JWTManager
	InitialBalance float64
}

func NewServer(eng *engine.Engine, initialBalance float64) *Server {
	return &Server{
		Engine:         eng,
		JWTManager:     NewJWTManager(),
		InitialBalance: initialBalance,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    "healthy",
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/token", s.HandleGenerateToken)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(s.JWTManager))
		r.Get("/api/positions", s.HandleGetPositions)
		r.Get("/api/signal", s.HandleGetSignal)
		r.Get("/api/stats", s.HandleGetStats)
		r.Get("/api/trades", s.HandleGetTrades)
	})

	return r
}

// ListenAndServe blocks until the server fails. Intended to run on its
// own goroutine next to the trading loop.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Printf("🌐 Status API listening on %s", addr)
	return srv.ListenAndServe()
}

func (s *Server) HandleGenerateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		WriteError(w, http.StatusBadRequest, "subject is required")
		return
	}

	token, err := s.JWTManager.GenerateToken(req.Subject, 24)
	if err != nil {
		log.Printf("Error generating token: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": 24 * 3600,
	})
}

func (s *Server) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions := s.Engine.ActivePositions()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(positions),
		"positions": positions,
	})
}

func (s *Server) HandleGetSignal(w http.ResponseWriter, r *http.Request) {
	bd := s.Engine.LastBreakdown()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"long":        bd.Long.FinalTotal,
		"short":       bd.Short.FinalTotal,
		"decision":    bd.Decision,
		"entry_level": bd.EntryLevel,
		"breakdown":   bd,
	})
}

func (s *Server) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	report := metrics.BuildReport(s.Engine.History(), s.InitialBalance)
	WriteJSON(w, http.StatusOK, report)
}

func (s *Server) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.Engine.History()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(trades),
		"trades": trades,
	})
}

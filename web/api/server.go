// Package api serves the supervisor's state over HTTP: JSON snapshots of
// decisions, weights, and telemetry, plus live event streams over SSE and
// websocket.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
	"github.com/selfarchitectai/archon-core/internal/supervisor"
)

// Supervisor is the decision surface the API exposes.
type Supervisor interface {
	EvaluatePlan(plan domain.Plan, source string) (*domain.Decision, error)
	ProcessTelemetry(rec *domain.TelemetryRecord) error
	RecentDecisions(limit int) ([]*domain.Decision, error)
	SystemHealth() (supervisor.Health, error)
}

// Ledger is the read surface for decisions, cycles, and weight history.
type Ledger interface {
	GetDecision(id string) (*domain.Decision, error)
	RecentCycles(limit int) ([]*domain.ProductionCycle, error)
	WeightHistory(limit int) ([]domain.WeightAdjustment, error)
}

// Telemetry serves aggregated build outcome views.
type Telemetry interface {
	Recent(limit int) ([]*domain.TelemetryRecord, error)
	Summary(windowDays int) (domain.TelemetrySummary, error)
	Daily(days int) ([]domain.DailyMetrics, error)
	PerAgentPerformance() (map[string]domain.AgentPerformance, error)
}

// WeightBook exposes the current trust allocation.
type WeightBook interface {
	Current() map[string]float64
}

// Line is the production controller's control surface.
type Line interface {
	Halted() bool
	Reset()
}

// Server is the HTTP API server
type Server struct {
	sup     Supervisor
	ledger  Ledger
	tel     Telemetry
	weights WeightBook
	line    Line
	addr    string
	mux     *http.ServeMux
	sseHub  *SSEHub
	wsHub   *WSHub
}

// NewServer creates a new API server
func NewServer(sup Supervisor, ledger Ledger, tel Telemetry, weights WeightBook, line Line, addr string) *Server {
	s := &Server{
		sup:     sup,
		ledger:  ledger,
		tel:     tel,
		weights: weights,
		line:    line,
		addr:    addr,
		mux:     http.NewServeMux(),
		sseHub:  NewSSEHub(),
		wsHub:   NewWSHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.healthHandler())
	s.mux.HandleFunc("/api/plans", s.submitPlanHandler())
	s.mux.HandleFunc("/api/decisions", s.listDecisionsHandler())
	s.mux.HandleFunc("/api/decisions/", s.getDecisionHandler())
	s.mux.HandleFunc("/api/weights", s.weightsHandler())
	s.mux.HandleFunc("/api/telemetry", s.telemetryHandler())
	s.mux.HandleFunc("/api/telemetry/summary", s.summaryHandler())
	s.mux.HandleFunc("/api/telemetry/daily", s.dailyHandler())
	s.mux.HandleFunc("/api/agents", s.agentsHandler())
	s.mux.HandleFunc("/api/cycles", s.cyclesHandler())
	s.mux.HandleFunc("/api/production/reset", s.resetHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/ws", s.wsHandler())
}

// Handler returns the server's mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the hubs and serves until the listener fails.
func (s *Server) Start() error {
	go s.sseHub.Run()
	go s.wsHub.Run()

	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.mux,
		ReadTimeout: 10 * time.Second,
		// No write timeout: the streaming endpoints hold connections open.
	}
	return srv.ListenAndServe()
}

// Broadcast fans an event out to all SSE and websocket clients.
func (s *Server) Broadcast(event StreamEvent) {
	s.sseHub.Broadcast(event)
	s.wsHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

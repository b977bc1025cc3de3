package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

// PlanSubmission is the POST /api/plans request body.
type PlanSubmission struct {
	Source string      `json:"source"`
	Plan   domain.Plan `json:"plan"`
}

// WeightsResponse pairs the live allocation with its audit trail.
type WeightsResponse struct {
	Weights map[string]float64        `json:"weights"`
	History []domain.WeightAdjustment `json:"history,omitempty"`
}

// ResetResponse reports the production line state after a reset request.
type ResetResponse struct {
	Halted bool      `json:"halted"`
	At     time.Time `json:"at"`
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		health, err := s.sup.SystemHealth()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, health)
	}
}

func (s *Server) submitPlanHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var sub PlanSubmission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if sub.Source == "" {
			writeError(w, http.StatusBadRequest, "source is required")
			return
		}

		decision, err := s.sup.EvaluatePlan(sub.Plan, sub.Source)
		if err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				writeError(w, http.StatusUnprocessableEntity, verr.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(decision)
	}
}

func (s *Server) listDecisionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		decisions, err := s.sup.RecentDecisions(queryInt(r, "limit", 20))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if decisions == nil {
			decisions = []*domain.Decision{}
		}
		writeJSON(w, decisions)
	}
}

func (s *Server) getDecisionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/api/decisions/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "decision id required")
			return
		}

		decision, err := s.ledger.GetDecision(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "decision not found")
			return
		}
		writeJSON(w, decision)
	}
}

func (s *Server) weightsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		history, err := s.ledger.WeightHistory(queryInt(r, "history", 50))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, WeightsResponse{
			Weights: s.weights.Current(),
			History: history,
		})
	}
}

func (s *Server) telemetryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			records, err := s.tel.Recent(queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if records == nil {
				records = []*domain.TelemetryRecord{}
			}
			writeJSON(w, records)

		case http.MethodPost:
			var rec domain.TelemetryRecord
			if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			if err := s.sup.ProcessTelemetry(&rec); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(rec)

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) summaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		summary, err := s.tel.Summary(queryInt(r, "days", 7))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, summary)
	}
}

func (s *Server) dailyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		daily, err := s.tel.Daily(queryInt(r, "days", 7))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if daily == nil {
			daily = []domain.DailyMetrics{}
		}
		writeJSON(w, daily)
	}
}

func (s *Server) agentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		perf, err := s.tel.PerAgentPerformance()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, perf)
	}
}

func (s *Server) cyclesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		cycles, err := s.ledger.RecentCycles(queryInt(r, "limit", 20))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if cycles == nil {
			cycles = []*domain.ProductionCycle{}
		}
		writeJSON(w, cycles)
	}
}

func (s *Server) resetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		s.line.Reset()
		writeJSON(w, ResetResponse{
			Halted: s.line.Halted(),
			At:     time.Now().UTC(),
		})
	}
}

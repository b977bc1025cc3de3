package ledger

import (
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

// Weights returns the current trust weight map.
func (s *Store) Weights() (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT agent_id, weight FROM ai_weights`)
	if err != nil {
		return nil, &domain.StoreError{Op: "load weights", Err: err}
	}
	defer rows.Close()

	weights := make(map[string]float64)
	for rows.Next() {
		var agent string
		var w float64
		if err := rows.Scan(&agent, &w); err != nil {
			return nil, &domain.StoreError{Op: "load weights", Err: err}
		}
		weights[agent] = w
	}
	return weights, rows.Err()
}

// SaveWeights replaces the weight map and appends the accompanying history
// records in a single transaction, so readers never observe a half-written
// map. Serialization of concurrent writers is the caller's responsibility.
func (s *Store) SaveWeights(weights map[string]float64, history []domain.WeightAdjustment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &domain.StoreError{Op: "save weights", Err: err}
	}
	defer tx.Rollback()

	// Wholesale replacement: the committed table always mirrors the map.
	if _, err := tx.Exec(`DELETE FROM ai_weights`); err != nil {
		return &domain.StoreError{Op: "save weights", Err: err}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for agent, w := range weights {
		if _, err := tx.Exec(`
			INSERT INTO ai_weights (agent_id, weight, updated_at) VALUES (?, ?, ?)
		`, agent, w, now); err != nil {
			return &domain.StoreError{Op: "save weights", ID: agent, Err: err}
		}
	}

	for _, adj := range history {
		if _, err := tx.Exec(`
			INSERT INTO ai_weights_history (timestamp, agent_id, old_weight, new_weight, reason)
			VALUES (?, ?, ?, ?, ?)
		`, adj.Timestamp.UTC().Format(time.RFC3339Nano), adj.AgentID, adj.OldWeight, adj.NewWeight, adj.Reason); err != nil {
			return &domain.StoreError{Op: "append weight history", ID: adj.AgentID, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.StoreError{Op: "save weights", Err: err}
	}
	return nil
}

// WeightHistory returns the most recent weight adjustments, newest first.
func (s *Store) WeightHistory(limit int) ([]domain.WeightAdjustment, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, agent_id, old_weight, new_weight, reason
		FROM ai_weights_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, &domain.StoreError{Op: "weight history", Err: err}
	}
	defer rows.Close()

	var history []domain.WeightAdjustment
	for rows.Next() {
		var adj domain.WeightAdjustment
		var ts string
		if err := rows.Scan(&adj.ID, &ts, &adj.AgentID, &adj.OldWeight, &adj.NewWeight, &adj.Reason); err != nil {
			return nil, &domain.StoreError{Op: "weight history", Err: err}
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err == nil {
			adj.Timestamp = parsed
		}
		history = append(history, adj)
	}
	return history, rows.Err()
}

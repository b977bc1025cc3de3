package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for the decision ledger, trust
// weights, telemetry, and production cycles.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertDecision records a new decision. Decisions are never deleted.
func (s *Store) InsertDecision(d *domain.Decision) error {
	planJSON, err := json.Marshal(d.Plan)
	if err != nil {
		return &domain.StoreError{Op: "insert decision", ID: d.ID, Err: err}
	}

	_, err = s.db.Exec(`
		INSERT INTO decisions (id, timestamp, source, plan, trust_score, cohesion_score, cost_efficiency, status, reason, build_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID,
		d.Timestamp.UTC().Format(time.RFC3339Nano),
		d.Source,
		string(planJSON),
		d.TrustScore,
		d.CohesionScore,
		d.CostEfficiency,
		string(d.Status),
		d.Reason,
		nullable(d.BuildID),
	)
	if err != nil {
		return &domain.StoreError{Op: "insert decision", ID: d.ID, Err: err}
	}
	return nil
}

// GetDecision retrieves a decision by ID
func (s *Store) GetDecision(id string) (*domain.Decision, error) {
	row := s.db.QueryRow(`
		SELECT id, timestamp, source, plan, trust_score, cohesion_score, cost_efficiency, status, reason, build_id
		FROM decisions WHERE id = ?
	`, id)
	return scanDecision(row.Scan)
}

// TransitionDecision atomically moves a decision to a new status after
// validating the change against the allowed graph. An invalid transition
// leaves the row untouched.
func (s *Store) TransitionDecision(id string, to domain.DecisionStatus) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &domain.StoreError{Op: "transition decision", ID: id, Err: err}
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRow(`SELECT status FROM decisions WHERE id = ?`, id).Scan(&current); err != nil {
		return &domain.StoreError{Op: "transition decision", ID: id, Err: err}
	}

	if err := domain.ValidateDecisionTransition(id, domain.DecisionStatus(current), to); err != nil {
		return err
	}

	if _, err := tx.Exec(`UPDATE decisions SET status = ? WHERE id = ?`, string(to), id); err != nil {
		return &domain.StoreError{Op: "transition decision", ID: id, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &domain.StoreError{Op: "transition decision", ID: id, Err: err}
	}
	return nil
}

// SetDecisionBuildID attaches a build reference to a decision
func (s *Store) SetDecisionBuildID(id, buildID string) error {
	_, err := s.db.Exec(`UPDATE decisions SET build_id = ? WHERE id = ?`, buildID, id)
	if err != nil {
		return &domain.StoreError{Op: "set build id", ID: id, Err: err}
	}
	return nil
}

// NextApprovedDecision returns the oldest decision still waiting for
// execution, or nil when none is pending.
func (s *Store) NextApprovedDecision() (*domain.Decision, error) {
	row := s.db.QueryRow(`
		SELECT id, timestamp, source, plan, trust_score, cohesion_score, cost_efficiency, status, reason, build_id
		FROM decisions
		WHERE status = 'approved'
		ORDER BY timestamp ASC
		LIMIT 1
	`)
	d, err := scanDecision(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "next approved decision", Err: err}
	}
	return d, nil
}

// RecentDecisions returns the most recent decisions, newest first
func (s *Store) RecentDecisions(limit int) ([]*domain.Decision, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, source, plan, trust_score, cohesion_score, cost_efficiency, status, reason, build_id
		FROM decisions
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, &domain.StoreError{Op: "recent decisions", Err: err}
	}
	defer rows.Close()

	var decisions []*domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows.Scan)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// AgentSuccessRate returns the fraction of an agent's decisions that reached
// completed within the trailing window, plus the total count considered.
func (s *Store) AgentSuccessRate(source string, window time.Duration) (float64, int, error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339Nano)

	var total, completed int
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM decisions
		WHERE source = ? AND timestamp > ?
	`, source, cutoff).Scan(&total, &completed)
	if err != nil {
		return 0, 0, &domain.StoreError{Op: "agent success rate", ID: source, Err: err}
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(completed) / float64(total), total, nil
}

// DecisionStats summarizes decisions within a trailing window for health
// reporting: total, completed, and average trust score.
func (s *Store) DecisionStats(window time.Duration) (total, completed int, avgTrust float64, err error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339Nano)

	err = s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(trust_score), 0)
		FROM decisions
		WHERE timestamp > ?
	`, cutoff).Scan(&total, &completed, &avgTrust)
	if err != nil {
		err = &domain.StoreError{Op: "decision stats", Err: err}
	}
	return
}

func scanDecision(scan func(dest ...any) error) (*domain.Decision, error) {
	var d domain.Decision
	var ts, planJSON, status string
	var reason, buildID sql.NullString

	if err := scan(&d.ID, &ts, &d.Source, &planJSON, &d.TrustScore, &d.CohesionScore, &d.CostEfficiency, &status, &reason, &buildID); err != nil {
		return nil, err
	}

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parsing decision timestamp: %w", err)
	}
	d.Timestamp = parsed
	d.Status = domain.DecisionStatus(status)
	if reason.Valid {
		d.Reason = reason.String
	}
	if buildID.Valid {
		d.BuildID = buildID.String
	}
	if err := json.Unmarshal([]byte(planJSON), &d.Plan); err != nil {
		return nil, fmt.Errorf("parsing decision plan: %w", err)
	}

	return &d, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

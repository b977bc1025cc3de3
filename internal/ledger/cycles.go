package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

// SaveCycle inserts or updates a production cycle row.
func (s *Store) SaveCycle(c *domain.ProductionCycle) error {
	var ended any
	if c.EndedAt != nil {
		ended = c.EndedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.Exec(`
		INSERT INTO production_cycles (id, started_at, ended_at, state, build_count, success_count, failure_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at = excluded.ended_at,
			state = excluded.state,
			build_count = excluded.build_count,
			success_count = excluded.success_count,
			failure_count = excluded.failure_count,
			last_error = excluded.last_error
	`,
		c.ID,
		c.StartedAt.UTC().Format(time.RFC3339Nano),
		ended,
		string(c.State),
		c.BuildCount,
		c.SuccessCount,
		c.FailureCount,
		nullable(c.LastError),
	)
	if err != nil {
		return &domain.StoreError{Op: "save cycle", ID: c.ID, Err: err}
	}
	return nil
}

// GetCycle retrieves a cycle by ID
func (s *Store) GetCycle(id string) (*domain.ProductionCycle, error) {
	row := s.db.QueryRow(`
		SELECT id, started_at, ended_at, state, build_count, success_count, failure_count, last_error
		FROM production_cycles WHERE id = ?
	`, id)
	return scanCycle(row.Scan)
}

// RecentCycles returns the most recently started cycles, newest first.
func (s *Store) RecentCycles(limit int) ([]*domain.ProductionCycle, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, ended_at, state, build_count, success_count, failure_count, last_error
		FROM production_cycles
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, &domain.StoreError{Op: "recent cycles", Err: err}
	}
	defer rows.Close()

	var cycles []*domain.ProductionCycle
	for rows.Next() {
		c, err := scanCycle(rows.Scan)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// ArchiveOpenCycles stamps ended_at on every cycle that has none. Called
// when a controller starts so superseded cycles are archived, not deleted.
func (s *Store) ArchiveOpenCycles(at time.Time) error {
	_, err := s.db.Exec(`
		UPDATE production_cycles SET ended_at = ? WHERE ended_at IS NULL
	`, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &domain.StoreError{Op: "archive cycles", Err: err}
	}
	return nil
}

func scanCycle(scan func(dest ...any) error) (*domain.ProductionCycle, error) {
	var c domain.ProductionCycle
	var started, state string
	var ended, lastErr sql.NullString

	if err := scan(&c.ID, &started, &ended, &state, &c.BuildCount, &c.SuccessCount, &c.FailureCount, &lastErr); err != nil {
		return nil, err
	}

	parsed, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return nil, fmt.Errorf("parsing cycle started_at: %w", err)
	}
	c.StartedAt = parsed
	c.State = domain.CycleState(state)
	if ended.Valid {
		if t, err := time.Parse(time.RFC3339Nano, ended.String); err == nil {
			c.EndedAt = &t
		}
	}
	if lastErr.Valid {
		c.LastError = lastErr.String
	}
	return &c, nil
}

package ledger

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

// InsertTelemetry appends a telemetry record and folds it into the daily
// rolling aggregate in one transaction.
func (s *Store) InsertTelemetry(rec *domain.TelemetryRecord) (int64, error) {
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return 0, &domain.StoreError{Op: "insert telemetry", ID: rec.DecisionID, Err: err}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, &domain.StoreError{Op: "insert telemetry", ID: rec.DecisionID, Err: err}
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO telemetry (timestamp, decision_id, build_status, latency_ms, token_usage, cost_usd, error_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		nullable(rec.DecisionID),
		string(rec.Status),
		rec.LatencyMS,
		rec.TokenUsage,
		rec.CostUSD,
		rec.ErrorCount,
		string(metaJSON),
	)
	if err != nil {
		return 0, &domain.StoreError{Op: "insert telemetry", ID: rec.DecisionID, Err: err}
	}

	success := 0
	failed := 0
	if rec.Status == domain.BuildSuccess {
		success = 1
	} else if rec.Status == domain.BuildFailed {
		failed = 1
	}

	day := rec.Timestamp.UTC().Format("2006-01-02")
	if _, err := tx.Exec(`
		INSERT INTO daily_metrics (date, total_builds, successful_builds, failed_builds, avg_latency_ms, total_cost_usd, total_errors)
		VALUES (?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			avg_latency_ms = (avg_latency_ms * total_builds + ?) / (total_builds + 1),
			total_builds = total_builds + 1,
			successful_builds = successful_builds + ?,
			failed_builds = failed_builds + ?,
			total_cost_usd = total_cost_usd + ?,
			total_errors = total_errors + ?
	`, day, success, failed, rec.LatencyMS, rec.CostUSD, rec.ErrorCount,
		rec.LatencyMS, success, failed, rec.CostUSD, rec.ErrorCount); err != nil {
		return 0, &domain.StoreError{Op: "update daily metrics", ID: day, Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, &domain.StoreError{Op: "insert telemetry", ID: rec.DecisionID, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &domain.StoreError{Op: "insert telemetry", ID: rec.DecisionID, Err: err}
	}
	return id, nil
}

// RecentTelemetry returns the most recent telemetry records, newest first.
func (s *Store) RecentTelemetry(limit int) ([]*domain.TelemetryRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, decision_id, build_status, latency_ms, token_usage, cost_usd, error_count, metadata
		FROM telemetry
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, &domain.StoreError{Op: "recent telemetry", Err: err}
	}
	defer rows.Close()

	var records []*domain.TelemetryRecord
	for rows.Next() {
		rec, err := scanTelemetry(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DailyStats returns per-day aggregates for the past N days, newest first.
func (s *Store) DailyStats(days int) ([]domain.DailyMetrics, error) {
	start := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	rows, err := s.db.Query(`
		SELECT date, total_builds, successful_builds, failed_builds, avg_latency_ms, total_cost_usd, total_errors
		FROM daily_metrics
		WHERE date >= ?
		ORDER BY date DESC
	`, start)
	if err != nil {
		return nil, &domain.StoreError{Op: "daily stats", Err: err}
	}
	defer rows.Close()

	var stats []domain.DailyMetrics
	for rows.Next() {
		var d domain.DailyMetrics
		if err := rows.Scan(&d.Date, &d.TotalBuilds, &d.SuccessCount, &d.FailureCount, &d.AvgLatencyMS, &d.TotalCostUSD, &d.TotalErrors); err != nil {
			return nil, &domain.StoreError{Op: "daily stats", Err: err}
		}
		stats = append(stats, d)
	}
	return stats, rows.Err()
}

// SummaryWindow aggregates the daily rows across a trailing window.
func (s *Store) SummaryWindow(days int) (domain.TelemetrySummary, error) {
	daily, err := s.DailyStats(days)
	if err != nil {
		return domain.TelemetrySummary{}, err
	}

	var sum domain.TelemetrySummary
	var weightedLatency float64
	for _, d := range daily {
		sum.TotalBuilds += d.TotalBuilds
		sum.SuccessCount += d.SuccessCount
		sum.TotalCostUSD += d.TotalCostUSD
		sum.TotalErrors += d.TotalErrors
		weightedLatency += d.AvgLatencyMS * float64(d.TotalBuilds)
	}
	if sum.TotalBuilds > 0 {
		sum.SuccessRate = float64(sum.SuccessCount) / float64(sum.TotalBuilds)
		sum.AvgLatencyMS = weightedLatency / float64(sum.TotalBuilds)
	}
	return sum, nil
}

// AgentPerformance joins telemetry to the decisions that produced it and
// returns agent-level success rate and latency.
func (s *Store) AgentPerformance() (map[string]domain.AgentPerformance, error) {
	rows, err := s.db.Query(`
		SELECT d.source,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN t.build_status = 'success' THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(t.latency_ms), 0)
		FROM telemetry t
		JOIN decisions d ON t.decision_id = d.id
		GROUP BY d.source
	`)
	if err != nil {
		return nil, &domain.StoreError{Op: "agent performance", Err: err}
	}
	defer rows.Close()

	perf := make(map[string]domain.AgentPerformance)
	for rows.Next() {
		var p domain.AgentPerformance
		if err := rows.Scan(&p.AgentID, &p.TotalBuilds, &p.SuccessfulBuilds, &p.AvgLatencyMS); err != nil {
			return nil, &domain.StoreError{Op: "agent performance", Err: err}
		}
		if p.TotalBuilds > 0 {
			p.SuccessRate = float64(p.SuccessfulBuilds) / float64(p.TotalBuilds)
		}
		perf[p.AgentID] = p
	}
	return perf, rows.Err()
}

// ExportTelemetryCSV writes the full telemetry table as CSV, oldest first.
func (s *Store) ExportTelemetryCSV(w io.Writer) error {
	rows, err := s.db.Query(`
		SELECT timestamp, decision_id, build_status, latency_ms, token_usage, cost_usd, error_count
		FROM telemetry
		ORDER BY timestamp
	`)
	if err != nil {
		return &domain.StoreError{Op: "export telemetry", Err: err}
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "decision_id", "build_status", "latency_ms", "token_usage", "cost_usd", "error_count"}); err != nil {
		return err
	}

	for rows.Next() {
		var ts, status string
		var decisionID sql.NullString
		var latency, cost float64
		var tokens, errCount int
		if err := rows.Scan(&ts, &decisionID, &status, &latency, &tokens, &cost, &errCount); err != nil {
			return &domain.StoreError{Op: "export telemetry", Err: err}
		}
		record := []string{
			ts,
			decisionID.String,
			status,
			strconv.FormatFloat(latency, 'f', -1, 64),
			strconv.Itoa(tokens),
			strconv.FormatFloat(cost, 'f', -1, 64),
			strconv.Itoa(errCount),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return rows.Err()
}

func scanTelemetry(rows *sql.Rows) (*domain.TelemetryRecord, error) {
	var rec domain.TelemetryRecord
	var ts, status string
	var decisionID, metaJSON sql.NullString

	if err := rows.Scan(&rec.ID, &ts, &decisionID, &status, &rec.LatencyMS, &rec.TokenUsage, &rec.CostUSD, &rec.ErrorCount, &metaJSON); err != nil {
		return nil, err
	}

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parsing telemetry timestamp: %w", err)
	}
	rec.Timestamp = parsed
	rec.Status = domain.BuildStatus(status)
	if decisionID.Valid {
		rec.DecisionID = decisionID.String
	}
	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
		if err := json.Unmarshal([]byte(metaJSON.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("parsing telemetry metadata: %w", err)
		}
	}
	return &rec, nil
}

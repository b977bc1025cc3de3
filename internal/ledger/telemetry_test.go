package ledger

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

func TestInsertTelemetryRollsUpDaily(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	records := []*domain.TelemetryRecord{
		{Timestamp: now, Status: domain.BuildSuccess, LatencyMS: 100, CostUSD: 0.50},
		{Timestamp: now, Status: domain.BuildFailed, LatencyMS: 300, CostUSD: 0.25, ErrorCount: 1},
	}
	for _, rec := range records {
		if _, err := store.InsertTelemetry(rec); err != nil {
			t.Fatalf("InsertTelemetry() error = %v", err)
		}
	}

	daily, err := store.DailyStats(1)
	if err != nil {
		t.Fatalf("DailyStats() error = %v", err)
	}
	if len(daily) != 1 {
		t.Fatalf("DailyStats() returned %d days, want 1", len(daily))
	}

	day := daily[0]
	if day.TotalBuilds != 2 || day.SuccessCount != 1 || day.FailureCount != 1 {
		t.Errorf("daily = %d/%d/%d, want 2 builds 1 success 1 failure",
			day.TotalBuilds, day.SuccessCount, day.FailureCount)
	}
	if math.Abs(day.AvgLatencyMS-200) > 1e-6 {
		t.Errorf("AvgLatencyMS = %v, want 200 (running average)", day.AvgLatencyMS)
	}
	if math.Abs(day.TotalCostUSD-0.75) > 1e-6 {
		t.Errorf("TotalCostUSD = %v, want 0.75", day.TotalCostUSD)
	}
	if day.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", day.TotalErrors)
	}
}

func TestSummaryWindow(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		status := domain.BuildSuccess
		if i == 3 {
			status = domain.BuildFailed
		}
		rec := &domain.TelemetryRecord{Timestamp: now, Status: status, LatencyMS: 100, CostUSD: 1.0}
		if _, err := store.InsertTelemetry(rec); err != nil {
			t.Fatalf("InsertTelemetry() error = %v", err)
		}
	}

	sum, err := store.SummaryWindow(7)
	if err != nil {
		t.Fatalf("SummaryWindow() error = %v", err)
	}
	if sum.TotalBuilds != 4 || sum.SuccessCount != 3 {
		t.Errorf("summary = %d builds %d successes, want 4/3", sum.TotalBuilds, sum.SuccessCount)
	}
	if math.Abs(sum.SuccessRate-0.75) > 1e-6 {
		t.Errorf("SuccessRate = %v, want 0.75", sum.SuccessRate)
	}
	if math.Abs(sum.TotalCostUSD-4.0) > 1e-6 {
		t.Errorf("TotalCostUSD = %v, want 4.0", sum.TotalCostUSD)
	}
}

func TestRecentTelemetryMetadata(t *testing.T) {
	store := newTestStore(t)

	rec := &domain.TelemetryRecord{
		Timestamp:  time.Now().UTC(),
		Status:     domain.BuildFailed,
		ErrorCount: 1,
		Metadata:   map[string]string{"reason": "timeout"},
	}
	if _, err := store.InsertTelemetry(rec); err != nil {
		t.Fatalf("InsertTelemetry() error = %v", err)
	}

	got, err := store.RecentTelemetry(5)
	if err != nil {
		t.Fatalf("RecentTelemetry() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("RecentTelemetry() returned %d rows, want 1", len(got))
	}
	if got[0].Metadata["reason"] != "timeout" {
		t.Errorf("Metadata = %v, want reason=timeout", got[0].Metadata)
	}
}

func TestAgentPerformance(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	claude := testDecision("dec-perf0000001", "claude", domain.DecisionCompleted, now)
	gpt := testDecision("dec-perf0000002", "gpt", domain.DecisionFailed, now)
	for _, d := range []*domain.Decision{claude, gpt} {
		if err := store.InsertDecision(d); err != nil {
			t.Fatalf("InsertDecision() error = %v", err)
		}
	}

	records := []*domain.TelemetryRecord{
		{Timestamp: now, DecisionID: claude.ID, Status: domain.BuildSuccess, LatencyMS: 100},
		{Timestamp: now, DecisionID: claude.ID, Status: domain.BuildSuccess, LatencyMS: 200},
		{Timestamp: now, DecisionID: gpt.ID, Status: domain.BuildFailed, LatencyMS: 400},
	}
	for _, rec := range records {
		if _, err := store.InsertTelemetry(rec); err != nil {
			t.Fatalf("InsertTelemetry() error = %v", err)
		}
	}

	perf, err := store.AgentPerformance()
	if err != nil {
		t.Fatalf("AgentPerformance() error = %v", err)
	}

	cp, ok := perf["claude"]
	if !ok {
		t.Fatal("claude missing from performance map")
	}
	if cp.TotalBuilds != 2 || cp.SuccessfulBuilds != 2 || cp.SuccessRate != 1.0 {
		t.Errorf("claude = %+v, want 2 builds all successful", cp)
	}
	if math.Abs(cp.AvgLatencyMS-150) > 1e-6 {
		t.Errorf("claude AvgLatencyMS = %v, want 150", cp.AvgLatencyMS)
	}

	gp := perf["gpt"]
	if gp.TotalBuilds != 1 || gp.SuccessRate != 0 {
		t.Errorf("gpt = %+v, want 1 build 0%% success", gp)
	}
}

func TestExportTelemetryCSV(t *testing.T) {
	store := newTestStore(t)

	rec := &domain.TelemetryRecord{
		Timestamp:  time.Now().UTC(),
		Status:     domain.BuildSuccess,
		LatencyMS:  123,
		TokenUsage: 1000,
		CostUSD:    0.5,
	}
	if _, err := store.InsertTelemetry(rec); err != nil {
		t.Fatalf("InsertTelemetry() error = %v", err)
	}

	var buf bytes.Buffer
	if err := store.ExportTelemetryCSV(&buf); err != nil {
		t.Fatalf("ExportTelemetryCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("CSV has %d lines, want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timestamp,decision_id,build_status") {
		t.Errorf("CSV header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "success") || !strings.Contains(lines[1], "1000") {
		t.Errorf("CSV row = %q, want status and token usage", lines[1])
	}
}

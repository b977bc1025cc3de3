package telemetry

import (
	"testing"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

type fakeStore struct {
	ingested []*domain.TelemetryRecord
	perf     map[string]domain.AgentPerformance
}

func (f *fakeStore) InsertTelemetry(rec *domain.TelemetryRecord) (int64, error) {
	f.ingested = append(f.ingested, rec)
	return int64(len(f.ingested)), nil
}

func (f *fakeStore) RecentTelemetry(limit int) ([]*domain.TelemetryRecord, error) {
	return f.ingested, nil
}

func (f *fakeStore) SummaryWindow(days int) (domain.TelemetrySummary, error) {
	return domain.TelemetrySummary{TotalBuilds: len(f.ingested)}, nil
}

func (f *fakeStore) DailyStats(days int) ([]domain.DailyMetrics, error) {
	return nil, nil
}

func (f *fakeStore) AgentPerformance() (map[string]domain.AgentPerformance, error) {
	return f.perf, nil
}

type fixedWeights float64

func (w fixedWeights) Weight(string) float64 { return float64(w) }

func TestIngestDefaults(t *testing.T) {
	store := &fakeStore{}
	collector := NewCollector(store, fixedWeights(0.10))

	id, err := collector.Ingest(&domain.TelemetryRecord{})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if id != 1 {
		t.Errorf("Ingest() id = %d, want 1", id)
	}

	rec := store.ingested[0]
	if rec.Timestamp.IsZero() {
		t.Error("Timestamp left zero, want stamped")
	}
	if rec.Status != domain.BuildUnknown {
		t.Errorf("Status = %q, want unknown", rec.Status)
	}
}

func TestIngestKeepsExplicitFields(t *testing.T) {
	store := &fakeStore{}
	collector := NewCollector(store, fixedWeights(0.10))

	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	_, err := collector.Ingest(&domain.TelemetryRecord{Timestamp: at, Status: domain.BuildSuccess})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	rec := store.ingested[0]
	if !rec.Timestamp.Equal(at) || rec.Status != domain.BuildSuccess {
		t.Errorf("record = %+v, want explicit timestamp and status preserved", rec)
	}
}

func TestPerAgentPerformanceAnnotatesWeights(t *testing.T) {
	store := &fakeStore{
		perf: map[string]domain.AgentPerformance{
			"claude": {AgentID: "claude", TotalBuilds: 5, SuccessfulBuilds: 4, SuccessRate: 0.8},
		},
	}
	collector := NewCollector(store, fixedWeights(0.42))

	perf, err := collector.PerAgentPerformance()
	if err != nil {
		t.Fatalf("PerAgentPerformance() error = %v", err)
	}
	if got := perf["claude"].CurrentWeight; got != 0.42 {
		t.Errorf("CurrentWeight = %v, want 0.42", got)
	}
	if perf["claude"].SuccessRate != 0.8 {
		t.Errorf("SuccessRate = %v, want 0.8 untouched", perf["claude"].SuccessRate)
	}
}

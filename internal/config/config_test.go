package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Supervisor.TrustThreshold != 0.70 {
		t.Errorf("TrustThreshold = %v, want 0.70", cfg.Supervisor.TrustThreshold)
	}
	if cfg.Supervisor.CohesionThreshold != 0.60 {
		t.Errorf("CohesionThreshold = %v, want 0.60", cfg.Supervisor.CohesionThreshold)
	}
	if cfg.Weights.Min != 0.05 || cfg.Weights.Max != 0.50 {
		t.Errorf("weight band = [%v, %v], want [0.05, 0.50]", cfg.Weights.Min, cfg.Weights.Max)
	}
	if cfg.Production.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Production.MaxRetries)
	}
	if cfg.Production.SuccessSummaryThreshold != 3 {
		t.Errorf("SuccessSummaryThreshold = %d, want 3", cfg.Production.SuccessSummaryThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Web.Port != 8090 {
		t.Errorf("Port = %d, want default 8090", cfg.Web.Port)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[supervisor]
trust_threshold = 0.8

[production]
max_retries = 5
retry_backoff_doubling = true

[trigger]
dispatch_url = "https://api.github.com/repos/acme/app/actions/workflows/deploy.yml/dispatches"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Supervisor.TrustThreshold != 0.8 {
		t.Errorf("TrustThreshold = %v, want 0.8", cfg.Supervisor.TrustThreshold)
	}
	if cfg.Production.MaxRetries != 5 || !cfg.Production.RetryBackoffDoubling {
		t.Errorf("production = %+v, want overridden retries", cfg.Production)
	}
	// Untouched sections keep their defaults.
	if cfg.Supervisor.CohesionThreshold != 0.60 {
		t.Errorf("CohesionThreshold = %v, want default 0.60", cfg.Supervisor.CohesionThreshold)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"trust threshold above one", func(c *Config) { c.Supervisor.TrustThreshold = 1.5 }},
		{"negative cohesion threshold", func(c *Config) { c.Supervisor.CohesionThreshold = -0.1 }},
		{"inverted weight band", func(c *Config) { c.Weights.Min = 0.6; c.Weights.Max = 0.5 }},
		{"zero max retries", func(c *Config) { c.Production.MaxRetries = 0 }},
		{"zero poll interval", func(c *Config) { c.Production.PollIntervalSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandPath("~/data/store.sqlite"); !strings.HasPrefix(got, home) {
		t.Errorf("ExpandPath() = %q, want under %q", got, home)
	}
	if got := ExpandPath("/absolute/path"); got != "/absolute/path" {
		t.Errorf("ExpandPath() = %q, want unchanged", got)
	}
}

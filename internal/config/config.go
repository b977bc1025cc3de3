package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Supervisor    SupervisorConfig    `toml:"supervisor"`
	Weights       WeightsConfig       `toml:"weights"`
	Production    ProductionConfig    `toml:"production"`
	Trigger       TriggerConfig       `toml:"trigger"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Optimizer     OptimizerConfig     `toml:"optimizer"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath string `toml:"database_path"`
	PlansDir     string `toml:"plans_dir"`
}

// SupervisorConfig holds the decision gate thresholds
type SupervisorConfig struct {
	TrustThreshold    float64 `toml:"trust_threshold"`
	CohesionThreshold float64 `toml:"cohesion_threshold"`
}

// WeightsConfig bounds every per-agent trust weight
type WeightsConfig struct {
	Min float64 `toml:"min"`
	Max float64 `toml:"max"`
}

// ProductionConfig tunes the build cycle controller
type ProductionConfig struct {
	MaxRetries              int     `toml:"max_retries"`
	RetryDelaySeconds       int     `toml:"retry_delay_seconds"`
	RetryBackoffDoubling    bool    `toml:"retry_backoff_doubling"`
	SuccessSummaryThreshold int     `toml:"success_summary_threshold"`
	PollIntervalSeconds     int     `toml:"poll_interval_seconds"`
	PollTimeoutSeconds      int     `toml:"poll_timeout_seconds"`
	IdleWaitSeconds         int     `toml:"idle_wait_seconds"`
	SummaryWindowDays       int     `toml:"summary_window_days"`
}

// TriggerConfig points at the external build pipeline
type TriggerConfig struct {
	DispatchURL string `toml:"dispatch_url"`
	OutcomeURL  string `toml:"outcome_url"`
	Target      string `toml:"target"`
	TokenEnv    string `toml:"token_env"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
	DashboardURL string `toml:"dashboard_url"`
}

// WebConfig holds the status API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// OptimizerConfig schedules wholesale weight recomputation
type OptimizerConfig struct {
	Enabled    bool   `toml:"enabled"`
	Cron       string `toml:"cron"`
	WindowDays int    `toml:"window_days"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".archon", "memory_store.sqlite"),
			PlansDir:     filepath.Join(home, ".archon", "plans"),
		},
		Supervisor: SupervisorConfig{
			TrustThreshold:    0.70,
			CohesionThreshold: 0.60,
		},
		Weights: WeightsConfig{
			Min: 0.05,
			Max: 0.50,
		},
		Production: ProductionConfig{
			MaxRetries:              3,
			RetryDelaySeconds:       60,
			RetryBackoffDoubling:    false,
			SuccessSummaryThreshold: 3,
			PollIntervalSeconds:     30,
			PollTimeoutSeconds:      300,
			IdleWaitSeconds:         30,
			SummaryWindowDays:       7,
		},
		Trigger: TriggerConfig{
			Target:   "production",
			TokenEnv: "GITHUB_TOKEN",
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
		Web: WebConfig{
			Port: 8090,
			Host: "127.0.0.1",
		},
		Optimizer: OptimizerConfig{
			Enabled:    false,
			Cron:       "0 3 * * 1",
			WindowDays: 7,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.PlansDir = ExpandPath(cfg.General.PlansDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges that would otherwise corrupt scoring or the
// weight invariants.
func (c *Config) Validate() error {
	if c.Supervisor.TrustThreshold < 0 || c.Supervisor.TrustThreshold > 1 {
		return fmt.Errorf("trust_threshold %v outside [0,1]", c.Supervisor.TrustThreshold)
	}
	if c.Supervisor.CohesionThreshold < 0 || c.Supervisor.CohesionThreshold > 1 {
		return fmt.Errorf("cohesion_threshold %v outside [0,1]", c.Supervisor.CohesionThreshold)
	}
	if c.Weights.Min < 0 || c.Weights.Max > 1 || c.Weights.Min >= c.Weights.Max {
		return fmt.Errorf("weight band [%v, %v] is invalid", c.Weights.Min, c.Weights.Max)
	}
	if c.Production.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	if c.Production.PollIntervalSeconds < 1 || c.Production.PollTimeoutSeconds < 1 {
		return fmt.Errorf("poll interval and timeout must be positive")
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "archon", "config.toml")
}

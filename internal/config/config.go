package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StageTimeouts bounds each pipeline stage. Liveness and quick scan run
// inline with the request; the full scan runs on the background worker pool.
type StageTimeouts struct {
	Liveness  time.Duration `yaml:"liveness"`
	QuickScan time.Duration `yaml:"quick_scan"`
	FullScan  time.Duration `yaml:"full_scan"`
	Reporting time.Duration `yaml:"reporting"`
}

// StageDeadlines is the reconciliation sweep's stale-heartbeat table. A
// running execution whose heartbeat is older than its stage deadline is
// presumed to have lost its worker.
type StageDeadlines struct {
	Liveness  time.Duration `yaml:"liveness"`
	QuickScan time.Duration `yaml:"quick_scan"`
	FullScan  time.Duration `yaml:"full_scan"`
	Reporting time.Duration `yaml:"reporting"`
}

// Config holds application configuration. It is injected explicitly into the
// orchestrator, resolver, and sweep at construction; there are no process-wide
// mutable settings.
type Config struct {
	// DataDir is where the ledger database lives
	DataDir string `yaml:"data_dir"`

	Timeouts  StageTimeouts  `yaml:"timeouts"`
	Deadlines StageDeadlines `yaml:"deadlines"`

	// SweepInterval is how often the reconciliation sweep runs
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// MaxWorkers is the size of the full-scan worker pool
	MaxWorkers int `yaml:"max_workers"`

	// QueueSize bounds the full-scan job channel
	QueueSize int `yaml:"queue_size"`

	// RescanLexicon holds follow-up cues ("rescan it", "tekrar tara", ...)
	// that resolve the target from conversation history instead of the
	// request text.
	RescanLexicon []string `yaml:"rescan_lexicon"`

	// ReportLexicon holds cues that ask for results rather than a new scan.
	ReportLexicon []string `yaml:"report_lexicon"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		DataDir: "./data",
		Timeouts: StageTimeouts{
			Liveness:  3 * time.Second,
			QuickScan: 45 * time.Second,
			FullScan:  10 * time.Minute,
			Reporting: 30 * time.Second,
		},
		Deadlines: StageDeadlines{
			Liveness:  30 * time.Second,
			QuickScan: 2 * time.Minute,
			FullScan:  15 * time.Minute,
			Reporting: 5 * time.Minute,
		},
		SweepInterval: 3 * time.Minute,
		MaxWorkers:    3,
		QueueSize:     64,
		RescanLexicon: []string{
			"rescan", "re-scan", "scan again", "scan it again", "run it again",
			"again", "repeat", "one more time", "retry",
			// non-English cues: the lexicon is config, not a hard-coded language
			"tekrar tara", "yeniden tara", "nochmal scannen", "escanear de nuevo",
		},
		ReportLexicon: []string{
			"report", "results", "findings", "what did you find", "show me",
			"summary", "status",
		},
	}
}

// ConfigPath returns the on-disk location of the config file.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".scanwarden")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadConfig reads the config file, falling back to defaults when absent.
func LoadConfig() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config file.
func SaveConfig(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// StageTimeout returns the timeout for a named stage.
func (c *Config) StageTimeout(stage string) time.Duration {
	switch stage {
	case "liveness":
		return c.Timeouts.Liveness
	case "quick_scan":
		return c.Timeouts.QuickScan
	case "full_scan":
		return c.Timeouts.FullScan
	case "reporting":
		return c.Timeouts.Reporting
	}
	return c.Timeouts.QuickScan
}

// StageDeadline returns the sweep deadline for a named stage.
func (c *Config) StageDeadline(stage string) time.Duration {
	switch stage {
	case "liveness":
		return c.Deadlines.Liveness
	case "quick_scan":
		return c.Deadlines.QuickScan
	case "full_scan":
		return c.Deadlines.FullScan
	case "reporting":
		return c.Deadlines.Reporting
	}
	return c.Deadlines.Reporting
}

// EnsureDataDir creates the data directory if missing.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", c.DataDir, err)
	}
	return nil
}

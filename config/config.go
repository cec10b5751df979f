package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config groups configuration of all cache subsystems.
// Optional sections can be disabled by setting them to nil.
type Config struct {
	// Handlers declares every named cache handler to be registered at startup.
	Handlers []*HandlerCfg `yaml:"handlers"`

	// Persistence configures the durable batch store used by persistent
	// complex handlers. If nil, persistent handlers fall back to an
	// in-process store that does not survive restarts.
	Persistence *PersistenceCfg `yaml:"persistence"`

	// Telemetry configures the periodic stats logging loop.
	// If nil, telemetry is disabled.
	Telemetry *TelemetryCfg `yaml:"telemetry"`
}

type PersistenceCfg struct {
	// Dir is the base directory for versioned snapshot batches.
	Dir string `yaml:"dir"`

	// Gzip enables on-the-fly compression of batch files.
	Gzip bool `yaml:"gzip"`

	// Crc32Control writes a checksum per batch and verifies it on load.
	// Corrupted batches are skipped, not fatal.
	Crc32Control bool `yaml:"crc32_control"`

	// MaxVersions bounds how many snapshot versions are kept per handler.
	// Older versions are rotated out after a successful persist.
	// Zero keeps everything.
	MaxVersions int `yaml:"max_versions"`

	// FlushesPerSec throttles batch flushes during bulk persistence so a
	// large snapshot does not saturate disk I/O. Zero disables pacing.
	FlushesPerSec int `yaml:"flushes_per_sec"`
}

type TelemetryCfg struct {
	// LogsEnabled turns the periodic stats log loop on.
	LogsEnabled bool `yaml:"logs_enabled"`

	// LogsInterval is the period between stats log lines.
	LogsInterval time.Duration `yaml:"logs_interval"`
}

func (cfg *PersistenceCfg) Enabled() bool {
	return cfg != nil && cfg.Dir != ""
}

func (cfg *TelemetryCfg) Enabled() bool {
	return cfg != nil && cfg.LogsEnabled
}

// AdjustConfig normalizes absent optional fields to their defaults.
// Call it once after building a Config by hand; LoadConfig calls it
// for you.
func (cfg *Config) AdjustConfig() {
	for _, h := range cfg.Handlers {
		h.adjust()
	}
	if cfg.Telemetry.Enabled() && cfg.Telemetry.LogsInterval <= 0 {
		cfg.Telemetry.LogsInterval = 5 * time.Second
	}
}

// Validate checks every handler section and returns the first
// configuration error. Configuration errors are programmer errors and
// fatal to startup.
func (cfg *Config) Validate() error {
	seen := make(map[string]struct{}, len(cfg.Handlers))
	for _, h := range cfg.Handlers {
		if err := h.Validate(); err != nil {
			return err
		}
		if _, dup := seen[h.Name]; dup {
			return fmt.Errorf("handler %q declared twice: %w", h.Name, ErrDuplicateName)
		}
		seen[h.Name] = struct{}{}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if cfg == nil {
		// an empty or comment-only file unmarshals to nil
		return nil, fmt.Errorf("config file %s is empty: %w", path, ErrEmptyConfig)
	}
	cfg.AdjustConfig()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Package config loads runtime settings from EVENTCORE_* environment
// variables, filling missing ones from the user env files (see
// util.EnvFiles).
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/small-frappuccino/eventcore/pkg/errutil"
	"github.com/small-frappuccino/eventcore/pkg/util"
)

// Prefix is prepended to every variable name.
const Prefix = "EVENTCORE_"

// Config is the runtime configuration of the eventcore command.
type Config struct {
	// Token is the bot token, without the "Bot " prefix.
	Token string `env:"TOKEN"`

	LogDir        string `env:"LOG_DIR"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"text"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`

	// SnapshotDB enables snapshot checkpoints. "default" resolves to a file
	// in the user cache directory; empty disables persistence.
	SnapshotDB        string        `env:"SNAPSHOT_DB"`
	SnapshotRetention time.Duration `env:"SNAPSHOT_RETENTION" envDefault:"720h"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"1m"`

	NATSURL     string   `env:"NATS_URL"`
	RedisURL    string   `env:"REDIS_URL"`
	RelayEvents []string `env:"RELAY_EVENTS" envSeparator:","`

	OTelEndpoint    string  `env:"OTEL_ENDPOINT"`
	OTelDisabled    bool    `env:"OTEL_DISABLED"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`

	// SlowUpdateThreshold logs gateway updates slower than this; 0 disables.
	SlowUpdateThreshold time.Duration `env:"SLOW_UPDATE_THRESHOLD" envDefault:"200ms"`

	TaskGroupBuffer int `env:"TASK_GROUP_BUFFER" envDefault:"256"`
	TaskMaxAttempts int `env:"TASK_MAX_ATTEMPTS" envDefault:"3"`
}

// ErrMissingToken is returned by Validate when no token is configured.
var ErrMissingToken = errors.New("EVENTCORE_TOKEN is not set")

// Load reads the configuration. Variables already set in the environment
// win over the env files.
func Load() (Config, error) {
	err := errutil.HandleConfigError("load", strings.Join(util.EnvFiles(), ","), func() error {
		_, err := util.LoadEnvFiles()
		return err
	})
	if err != nil {
		return Config{}, err
	}
	return Parse()
}

// Parse reads the configuration from the current environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.LogDir == "" {
		cfg.LogDir = util.LogDir()
	}
	if cfg.SnapshotDB == "default" {
		cfg.SnapshotDB = filepath.Join(util.CacheDir(), "snapshots.db")
	}
	return cfg, nil
}

// Validate checks the settings needed to connect.
func (c Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		return fmt.Errorf("EVENTCORE_OTEL_SAMPLE_RATIO must be within [0, 1], got %v", c.OTelSampleRatio)
	}
	if c.SnapshotDB != "" && c.SnapshotRetention < 0 {
		return fmt.Errorf("EVENTCORE_SNAPSHOT_RETENTION must not be negative")
	}
	return nil
}

// PersistenceEnabled reports whether snapshot checkpoints are configured.
func (c Config) PersistenceEnabled() bool { return c.SnapshotDB != "" }

// RelayEnabled reports whether any broker is configured.
func (c Config) RelayEnabled() bool { return c.NATSURL != "" || c.RedisURL != "" }

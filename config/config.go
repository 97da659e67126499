// Package config loads process configuration for the enrichd binaries.
//
// Values are layered: built-in defaults, then an optional YAML file named by
// CONFIG_FILE, then environment variables. An environment variable that is
// unset leaves the lower layer untouched.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/store"
	"github.com/xraph/enrich/sweep"
)

const (
	// MinPort is the minimum valid port number.
	MinPort = 1
	// MaxPort is the maximum valid port number.
	MaxPort = 65535
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "CONFIG_FILE"

// legacyDataDirEnv is consulted when DATA_DIR is unset.
const legacyDataDirEnv = "LMDB_PATH"

// Config is the complete process configuration.
type Config struct {
	Port    int    `yaml:"port"     env:"PORT"`
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
	// DatabaseURL selects the PostgreSQL backend instead of Badger.
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	// SyncWrites makes every commit wait for fsync.
	SyncWrites bool `yaml:"sync_writes" env:"SYNC_WRITES"`

	WikipediaAPIURL string `yaml:"wikipedia_api_url" env:"WIKIPEDIA_API_URL"`
	// LookupRatePerSec caps outbound lookups. Zero or less is unlimited.
	LookupRatePerSec float64 `yaml:"lookup_rate_per_sec" env:"LOOKUP_RATE_PER_SEC"`

	WorkerConcurrency int `yaml:"worker_concurrency" env:"WORKER_CONCURRENCY"`
	MaxRetries        int `yaml:"max_retries"        env:"MAX_RETRIES"`
	// MaxAttempts is the in-process attempt budget per claim. Zero means
	// the same as MaxRetries, with a floor of one.
	MaxAttempts       int    `yaml:"max_attempts"         env:"MAX_ATTEMPTS"`
	LeaseTimeoutMS    int    `yaml:"lease_timeout_ms"     env:"LEASE_TIMEOUT_MS"`
	PollIntervalMS    int    `yaml:"poll_interval_ms"     env:"POLL_INTERVAL_MS"`
	RetryBaseDelayMS  int    `yaml:"retry_base_delay_ms"  env:"RETRY_BASE_DELAY_MS"`
	AttemptTimeoutMS  int    `yaml:"attempt_timeout_ms"   env:"ATTEMPT_TIMEOUT_MS"`
	ShutdownTimeoutMS int    `yaml:"shutdown_timeout_ms"  env:"SHUTDOWN_TIMEOUT_MS"`
	ReclaimSchedule   string `yaml:"reclaim_schedule"     env:"RECLAIM_SCHEDULE"`

	LogLevel  string `yaml:"log_level"  env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Port:              3000,
		DataDir:           "./data",
		SyncWrites:        true,
		WikipediaAPIURL:   "https://en.wikipedia.org/w/api.php",
		WorkerConcurrency: 1,
		MaxRetries:        3,
		LeaseTimeoutMS:    30000,
		PollIntervalMS:    500,
		RetryBaseDelayMS:  1000,
		ShutdownTimeoutMS: 30000,
		ReclaimSchedule:   "@every 10s",
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	return LoadFrom(environ)
}

// LoadFrom reads configuration from environ instead of the process
// environment.
func LoadFrom(environ map[string]string) (Config, error) {
	cfg := Default()

	if path := environ[FileEnv]; path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if _, ok := environ["DATA_DIR"]; !ok {
		if legacy, ok := environ[legacyDataDirEnv]; ok && legacy != "" {
			cfg.DataDir = legacy
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate reports every setting that cannot be used.
func (c Config) Validate() error {
	var errs []error

	if c.Port < MinPort || c.Port > MaxPort {
		errs = append(errs, fmt.Errorf("port must be between %d and %d, got %d", MinPort, MaxPort, c.Port))
	}
	if c.DatabaseURL == "" && c.DataDir == "" {
		errs = append(errs, errors.New("data dir is required"))
	} else if _, _, err := store.Parse(c.StoreLocation()); err != nil {
		errs = append(errs, err)
	}
	if u, err := url.Parse(c.WikipediaAPIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("wikipedia api url %q is not an absolute url", c.WikipediaAPIURL))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be console or json, got %q", c.LogFormat))
	}
	if _, err := sweep.ParseSchedule(c.ReclaimSchedule); err != nil {
		errs = append(errs, fmt.Errorf("reclaim schedule: %w", err))
	}
	if err := c.Engine().Validate(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Engine converts c into the queue engine configuration.
func (c Config) Engine() enrich.Config {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = max(c.MaxRetries, 1)
	}
	return enrich.Config{
		Concurrency:     c.WorkerConcurrency,
		PollInterval:    ms(c.PollIntervalMS),
		MaxAttempts:     attempts,
		RetryBaseDelay:  ms(c.RetryBaseDelayMS),
		AttemptTimeout:  ms(c.AttemptTimeoutMS),
		LeaseTimeout:    ms(c.LeaseTimeoutMS),
		MaxRetries:      c.MaxRetries,
		ReclaimSchedule: c.ReclaimSchedule,
		ShutdownTimeout: ms(c.ShutdownTimeoutMS),
	}
}

// StoreLocation returns the store.Open location: DatabaseURL when set,
// otherwise the Badger data directory.
func (c Config) StoreLocation() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "badger:" + c.DataDir
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/resilience"
)

type Config struct {
	Host     string        `yaml:"host"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
	// LogMaxSizeMB and LogMaxBackups rotate the log file.
	LogMaxSizeMB  int `yaml:"log_max_size_mb"`
	LogMaxBackups int `yaml:"log_max_backups"`

	MetricsAddr string `yaml:"metrics_addr"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	RateLimit float64 `yaml:"rate_limit"`

	Resilience resilience.Config `yaml:"resilience"`

	// Watchers holds per-subcommand overrides keyed by subcommand name.
	Watchers map[string]Watcher `yaml:"watchers"`
}

// Watcher overrides a watcher preset. Zero values keep the preset.
type Watcher struct {
	Path          string          `yaml:"path"`
	ResourceID    int64           `yaml:"resource_id"`
	PointType     string          `yaml:"point_type"`
	Interval      time.Duration   `yaml:"interval"`
	RetryInterval time.Duration   `yaml:"retry_interval"`
	RetentionDays int             `yaml:"retention_days"`
	Suffixes      domain.Suffixes `yaml:"suffixes"`
	// FSEvents enables filesystem notifications on top of polling.
	FSEvents *bool `yaml:"fs_events"`
}

func Load() Config {
	return Config{
		Host:     mustEnv("TX_HOST", ""),
		User:     mustEnv("TX_USER", ""),
		Password: mustEnv("TX_PASSWORD", ""),
		Timeout:  mustEnvDuration("TX_TIMEOUT", 30*time.Second),

		LogLevel:  mustEnv("TX_LOG_LEVEL", "info"),
		LogFormat: mustEnv("TX_LOG_FORMAT", "text"),
		LogFile:   mustEnv("TX_LOG_FILE", filepath.Join(os.TempDir(), "tx-mes-cli.log")),

		LogMaxSizeMB:  mustEnvInt("TX_LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: mustEnvInt("TX_LOG_MAX_BACKUPS", 2),

		MetricsAddr: mustEnv("TX_METRICS_ADDR", ""),

		NATSURL:     mustEnv("TX_NATS_URL", ""),
		NATSSubject: mustEnv("TX_NATS_SUBJECT", "tx.mes.outcomes"),

		RateLimit: mustEnvFloat("TX_RATE_LIMIT", 0),

		Resilience: loadResilience(),
	}
}

func loadResilience() resilience.Config {
	def := resilience.DefaultConfig()
	return resilience.Config{
		Retry: resilience.RetryPolicy{
			Attempts:   mustEnvInt("TX_RETRY_MAX_ATTEMPTS", def.Retry.Attempts),
			Backoff:    mustEnvDuration("TX_RETRY_INITIAL_BACKOFF", def.Retry.Backoff),
			MaxBackoff: mustEnvDuration("TX_RETRY_MAX_BACKOFF", def.Retry.MaxBackoff),
			Factor:     mustEnvFloat("TX_RETRY_MULTIPLIER", def.Retry.Factor),
		},
		Breaker: resilience.BreakerPolicy{
			Enabled:       mustEnvBool("TX_BREAKER_ENABLED", def.Breaker.Enabled),
			MinRequests:   uint32(mustEnvInt("TX_BREAKER_MIN_REQUESTS", int(def.Breaker.MinRequests))),
			FailureRatio:  mustEnvFloat("TX_BREAKER_FAILURE_RATIO", def.Breaker.FailureRatio),
			OpenTimeout:   mustEnvDuration("TX_BREAKER_OPEN_TIMEOUT", def.Breaker.OpenTimeout),
			HalfOpenCalls: uint32(mustEnvInt("TX_BREAKER_HALF_OPEN_MAX_CALLS", int(def.Breaker.HalfOpenCalls))),
		},
	}
}

// LoadFile overlays the YAML file at path onto base. Keys absent from the file
// keep the base values; unknown keys are an error.
func LoadFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}

	out := base
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("parse config file %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// Validate checks the settings every MES command needs.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(c.User) == "" {
		missing = append(missing, "user")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate config", fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}

	u, err := url.Parse(c.Host)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate config", fmt.Errorf("host %q is not an http(s) URL", c.Host))
	}
	if c.RateLimit < 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate config", fmt.Errorf("rate limit must not be negative"))
	}
	return nil
}

// Watcher returns the overrides for a subcommand, zero when there are none.
func (c Config) Watcher(name string) Watcher {
	return c.Watchers[name]
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

// mustEnvDuration accepts Go durations ("1m30s") and plain seconds ("2.5").
func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(seconds * float64(time.Second))
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

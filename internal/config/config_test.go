package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TX_HOST", "")
	t.Setenv("TX_TIMEOUT", "")
	t.Setenv("TX_NATS_SUBJECT", "")
	t.Setenv("TX_RETRY_MAX_ATTEMPTS", "")

	cfg := Load()
	if cfg.Host != "" {
		t.Fatalf("expected empty host, got %q", cfg.Host)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected default timeout 30s, got %s", cfg.Timeout)
	}
	if cfg.NATSSubject != "tx.mes.outcomes" {
		t.Fatalf("expected default subject, got %q", cfg.NATSSubject)
	}
	if cfg.Resilience.Retry.Attempts != 3 {
		t.Fatalf("expected default retry attempts 3, got %d", cfg.Resilience.Retry.Attempts)
	}
	if cfg.LogMaxSizeMB != 100 || cfg.LogMaxBackups != 2 {
		t.Fatalf("unexpected log rotation defaults %d/%d", cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	}
	if filepath.Base(cfg.LogFile) != "tx-mes-cli.log" {
		t.Fatalf("unexpected default log file %q", cfg.LogFile)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("TX_HOST", "http://mes.local:6543/")
	t.Setenv("TX_TIMEOUT", "2.5")
	t.Setenv("TX_RATE_LIMIT", "4")
	t.Setenv("TX_BREAKER_OPEN_TIMEOUT", "1m")
	t.Setenv("TX_BREAKER_ENABLED", "false")

	cfg := Load()
	if cfg.Host != "http://mes.local:6543/" {
		t.Fatalf("unexpected host %q", cfg.Host)
	}
	if cfg.Timeout != 2500*time.Millisecond {
		t.Fatalf("expected plain seconds to parse, got %s", cfg.Timeout)
	}
	if cfg.RateLimit != 4 {
		t.Fatalf("expected rate limit 4, got %v", cfg.RateLimit)
	}
	if cfg.Resilience.Breaker.OpenTimeout != time.Minute || cfg.Resilience.Breaker.Enabled {
		t.Fatalf("unexpected resilience overrides %+v", cfg.Resilience)
	}
}

func TestLoadFileOverlaysBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.yaml")
	content := `
host: http://mes.local:6543
timeout: 10s
resilience:
  retry:
    attempts: 5
watchers:
  apontar-plano-de-corte-scm:
    path: C:\SCM\Layouts
    interval: 1m
    suffixes:
      done: _OK
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	base := Config{User: "operador", Timeout: time.Second}
	cfg, err := LoadFile(path, base)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.User != "operador" || cfg.Host != "http://mes.local:6543" || cfg.Timeout != 10*time.Second {
		t.Fatalf("unexpected overlay %+v", cfg)
	}
	if cfg.Resilience.Retry.Attempts != 5 || cfg.Resilience.Breaker.OpenTimeout != base.Resilience.Breaker.OpenTimeout {
		t.Fatalf("expected nested overlay, got %+v", cfg.Resilience)
	}
	scm := cfg.Watcher("apontar-plano-de-corte-scm")
	if scm.Path != `C:\SCM\Layouts` || scm.Interval != time.Minute || scm.Suffixes.Done != "_OK" {
		t.Fatalf("unexpected watcher overrides %+v", scm)
	}
	if cfg.Watcher("apontar-csv") != (Watcher{}) {
		t.Fatalf("unknown watcher must have no overrides")
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.yaml")
	if err := os.WriteFile(path, []byte("hots: x\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path, Config{}); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{Host: "http://localhost:6543/", User: "u", Password: "p"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cases := []Config{
		{User: "u", Password: "p"},
		{Host: "localhost:6543", User: "u", Password: "p"},
		{Host: "http://localhost", User: "u"},
		{Host: "http://localhost", User: "u", Password: "p", RateLimit: -1},
	}
	for _, cfg := range cases {
		if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Validate(%+v) = %v, want ErrInvalidInput", cfg, err)
		}
	}
}

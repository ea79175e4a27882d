package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tempox/tx-mes-cli/internal/config"
	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/resilience"
)

type fakeMES struct {
	mu       sync.Mutex
	pointed  []string
	readings []string
}

func (f *fakeMES) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sucesso":true,"retorno":{"key":"tok"}}`))
	})
	mux.HandleFunc("POST /leituras", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.readings = append(f.readings, string(body))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"sucesso":true}`))
	})
	mux.HandleFunc("POST /plano-de-corte/{codigo}/apontar", func(w http.ResponseWriter, r *http.Request) {
		code := r.PathValue("codigo")
		if code == "BAD" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"sucesso":false,"mensagem":"plano não encontrado"}`))
			return
		}
		f.mu.Lock()
		f.pointed = append(f.pointed, code)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"sucesso":true}`))
	})
	return mux
}

func testConfig(t *testing.T, host string) config.Config {
	t.Helper()
	return config.Config{
		Host:       host,
		User:       "operador",
		Password:   "segredo",
		Timeout:    2 * time.Second,
		LogLevel:   "debug",
		LogFile:    filepath.Join(t.TempDir(), "logs", "tx-mes-cli.log"),
		Resilience: resilience.DefaultConfig(),
	}
}

func TestNewFailsOnInitialLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := New(context.Background(), testConfig(t, server.URL), Options{Stdout: io.Discard})
	if !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	cfg := testConfig(t, "")
	if _, err := New(context.Background(), cfg, Options{Stdout: io.Discard}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSCMWatcherEndToEnd(t *testing.T) {
	fake := &fakeMES{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	cfg := testConfig(t, server.URL)
	app, err := New(context.Background(), cfg, Options{Stdout: io.Discard, Version: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	dir := t.TempDir()
	for name, content := range map[string]string{"L1.tx": "L1\nrest\n", "L2.tx": "BAD\n"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	preset, ok := LookupPreset("apontar-plano-de-corte-scm")
	if !ok {
		t.Fatalf("missing scm preset")
	}
	watcher, err := app.NewWatcher(preset, WatchSettings{Path: dir})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	report, err := watcher.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Processed != 1 || report.Quarantined != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(fake.pointed) != 1 || fake.pointed[0] != "L1" {
		t.Fatalf("unexpected pointed layouts %v", fake.pointed)
	}
	if _, err := os.Stat(filepath.Join(dir, "L1_APONTADO.tx")); err != nil {
		t.Fatalf("expected L1 to be finalised: %v", err)
	}
	quarantine, err := os.ReadFile(filepath.Join(dir, "L2_COM_ERRO.tx"))
	if err != nil {
		t.Fatalf("expected quarantine file: %v", err)
	}
	if !strings.HasPrefix(string(quarantine), "BAD\nERRO: ") || !strings.Contains(string(quarantine), "plano não encontrado") {
		t.Fatalf("unexpected quarantine content %q", quarantine)
	}

	again, err := watcher.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if again.Items != 0 {
		t.Fatalf("finalised sources must not be read again, got %+v", again)
	}
}

func newTestApp(t *testing.T) (*App, *fakeMES) {
	t.Helper()
	fake := &fakeMES{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	app, err := New(context.Background(), testConfig(t, server.URL), Options{Stdout: io.Discard, Version: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(app.Close)
	return app, fake
}

func TestSCMRetryPassReadsWholeFileQuarantine(t *testing.T) {
	app, fake := newTestApp(t)

	dir := t.TempDir()
	quarantine := filepath.Join(dir, "L9_COM_ERRO.tx")
	if err := os.WriteFile(quarantine, []byte("L9\nPANEL;600;400\nCUT 1,2,3\n\nERRO: timeout\n"), 0o644); err != nil {
		t.Fatalf("write quarantine: %v", err)
	}

	preset, _ := LookupPreset("apontar-plano-de-corte-scm")
	watcher, err := app.NewWatcher(preset, WatchSettings{Path: dir})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	report, err := watcher.RetryPass(context.Background())
	if err != nil {
		t.Fatalf("RetryPass() error = %v", err)
	}
	if report.Attempted != 1 || report.Recovered != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(fake.pointed) != 1 || fake.pointed[0] != "L9" {
		t.Fatalf("unexpected pointed layouts %v", fake.pointed)
	}
	if _, err := os.Stat(quarantine); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected recovered quarantine to be removed, stat err = %v", err)
	}
}

func TestPratikaHonoursProcessedCodeRows(t *testing.T) {
	app, fake := newTestApp(t)

	dir := t.TempDir()
	source := filepath.Join(dir, "prog.pro")
	log := "C:\\SCM\\ORD1#1.PGM ok\nC:\\SCM\\ORD2#2.PGM ok\nC:\\SCM\\ORD3#3.PGM ok\n"
	if err := os.WriteFile(source, []byte(log), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	processed := filepath.Join(dir, "prog_PROCESSADO_SCM_PRATIKA.pro")
	if err := os.WriteFile(processed, []byte(source+",ORD1#1,ORD2#2\n"), 0o644); err != nil {
		t.Fatalf("write processed: %v", err)
	}

	preset, _ := LookupPreset("apontar-leitura-furadeira-scm-pratika")
	watcher, err := app.NewWatcher(preset, WatchSettings{Path: dir, ResourceID: 4})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	report, err := watcher.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Processed != 1 || report.Skipped != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(fake.readings) != 1 || !strings.Contains(fake.readings[0], "ORD3#3") {
		t.Fatalf("unexpected readings %v", fake.readings)
	}
}

func TestNewWatcherPollsOnlyByDefault(t *testing.T) {
	app, _ := newTestApp(t)
	preset, _ := LookupPreset("apontar-plano-de-corte-scm")
	dir := t.TempDir()

	before := len(app.closers)
	if _, err := app.NewWatcher(preset, WatchSettings{Path: dir}); err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if len(app.closers) != before {
		t.Fatalf("filesystem events must be opt-in")
	}

	enabled := true
	if _, err := app.NewWatcher(preset, WatchSettings{Path: dir, FSEvents: &enabled}); err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if len(app.closers) != before+1 {
		t.Fatalf("expected a filesystem watcher when enabled")
	}
}

func TestResolveExplicitZeroDisablesRetry(t *testing.T) {
	preset, _ := LookupPreset("apontar-plano-de-corte-scm")
	interval := time.Duration(0)
	days := 0
	settings, resolved, err := preset.Resolve(
		config.Watcher{RetryInterval: time.Hour, RetentionDays: 9},
		WatchSettings{Path: "/x", RetryInterval: &interval, RetentionDays: &days},
	)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.RetryInterval != 0 || resolved.RetentionDays != 0 || *settings.RetryInterval != 0 {
		t.Fatalf("explicit zero must win, got %+v", resolved)
	}

	_, resolved, err = preset.Resolve(config.Watcher{RetryInterval: time.Hour}, WatchSettings{Path: "/x"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.RetryInterval != time.Hour || resolved.RetentionDays != defaultRetentionDays || resolved.FSEvents {
		t.Fatalf("unset flags must keep file and preset values, got %+v", resolved)
	}

	negative := -1
	if _, _, err := preset.Resolve(config.Watcher{}, WatchSettings{Path: "/x", RetentionDays: &negative}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("negative retention must be rejected, got %v", err)
	}
}

func TestResolveLayersOverrides(t *testing.T) {
	preset, _ := LookupPreset("apontar-csv")
	column := 0
	settings, resolved, err := preset.Resolve(
		config.Watcher{Path: "/from/file", ResourceID: 7, Interval: time.Minute, Suffixes: domain.Suffixes{Quarantine: "_ERR"}},
		WatchSettings{Path: "/from/flag", Layout: "year", Action: "plano", Delimiter: ';', CodeColumn: &column},
	)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if settings.Path != "/from/flag" || settings.ResourceID != 7 {
		t.Fatalf("unexpected settings %+v", settings)
	}
	if resolved.PollInterval != time.Minute || resolved.Suffixes.Quarantine != "_ERR" || resolved.Suffixes.Processed != "_PROCESSADO_TEMPOX" {
		t.Fatalf("unexpected preset %+v", resolved)
	}
	if resolved.Layout != "year" || resolved.Action != domain.ActionPointPlan || resolved.CSV.Delimiter != ';' || resolved.CSV.CodeColumn != 0 {
		t.Fatalf("unexpected flag overrides %+v", resolved)
	}
	if preset.Suffixes.Quarantine != "_COM_ERRO_TEMPOX" {
		t.Fatalf("the preset table must not change")
	}
}

func TestResolveValidates(t *testing.T) {
	reading, _ := LookupPreset("apontar-leitura-furadeira-nanxing")
	if _, _, err := reading.Resolve(config.Watcher{}, WatchSettings{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing path must be rejected, got %v", err)
	}
	if _, _, err := reading.Resolve(config.Watcher{}, WatchSettings{Path: "/x"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing resource id must be rejected, got %v", err)
	}
	point, _ := LookupPreset("apontar-plano-de-corte-nanxing")
	if _, _, err := point.Resolve(config.Watcher{}, WatchSettings{Path: "/x/log.xml", PointType: "SEMPRE"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown point type must be rejected, got %v", err)
	}
}

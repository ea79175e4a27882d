package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type harness struct {
	scanner   *scannerFake
	store     *ledgerStore
	submitter *submitterFake
	notifier  *notifierFake
	metrics   *metricsFake
	contents  map[string]string
	now       time.Time
}

func newHarness(files ...string) *harness {
	h := &harness{
		scanner:   &scannerFake{},
		store:     newLedgerStore(),
		submitter: &submitterFake{},
		notifier:  &notifierFake{},
		metrics:   newMetricsFake(),
		contents:  map[string]string{},
		now:       time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
	for _, f := range files {
		h.scanner.files = append(h.scanner.files, domain.SourceFile{Path: f, Kind: domain.KindCSV})
	}
	return h
}

func (h *harness) reconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	return NewReconciler(cfg, ReconcilerDeps{
		Scanner:   h.scanner,
		Extractor: lineExtractor{},
		Ledgers:   h.store,
		Submitter: h.submitter,
		Notifier:  h.notifier,
		Metrics:   h.metrics,
		Logger:    testLogger,
		Now:       func() time.Time { return h.now },
		ReadFile: func(path string) ([]byte, error) {
			content, ok := h.contents[path]
			if !ok {
				return nil, os.ErrNotExist
			}
			return []byte(content), nil
		},
	})
}

func TestRunCycleIsIdempotentAcrossRestarts(t *testing.T) {
	h := newHarness("leituras.csv")
	h.contents["leituras.csv"] = "A\nB\nA\n"

	report, err := h.reconciler(ReconcilerConfig{}).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Processed != 2 || report.Skipped != 1 || report.Items != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.CycleID == "" {
		t.Fatalf("expected cycle id")
	}

	h.contents["leituras.csv"] = "A\nB\nA\nC\n"
	report, err = h.reconciler(ReconcilerConfig{}).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() after restart error = %v", err)
	}
	if report.Processed != 1 || report.Skipped != 3 {
		t.Fatalf("unexpected report after restart %+v", report)
	}
	if got := h.submitter.calls; len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Fatalf("expected each code submitted once, got %v", got)
	}
	if h.metrics.items[domain.OutcomeProcessed] != 3 || h.metrics.cycles != 2 {
		t.Fatalf("unexpected metrics %+v", h.metrics)
	}
}

func TestFailedItemsAreQuarantinedAndRecovered(t *testing.T) {
	h := newHarness("leituras.csv")
	h.contents["leituras.csv"] = "A\nB\n"
	h.scanner.quarantined = []domain.SourceFile{{Path: "leituras_COM_ERRO.csv"}}

	failing := true
	h.submitter.fn = func(item domain.WorkItem) error {
		if item.Code == "B" && failing {
			return domain.WrapError(domain.ErrTransport, "post", errors.New("connection refused"))
		}
		return nil
	}

	r := h.reconciler(ReconcilerConfig{RetentionDays: 2})
	report, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Processed != 1 || report.Quarantined != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	ledger := h.store.ledger("leituras.csv")
	records := ledger.QuarantinedRecords()
	if len(records) != 1 || records[0].RawFields[0] != "B" {
		t.Fatalf("unexpected quarantine %+v", records)
	}

	if _, err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if len(h.submitter.calls) != 2 {
		t.Fatalf("quarantined item must wait for the retry pass, calls=%v", h.submitter.calls)
	}

	retry, err := r.RetryPass(context.Background())
	if err != nil {
		t.Fatalf("RetryPass() error = %v", err)
	}
	if retry.Attempted != 1 || retry.StillFailing != 1 || retry.Recovered != 0 {
		t.Fatalf("unexpected retry report %+v", retry)
	}
	if want := h.now.Add(-48 * time.Hour); !h.scanner.horizons[0].Equal(want) {
		t.Fatalf("expected horizon %v, got %v", want, h.scanner.horizons[0])
	}

	failing = false
	retry, err = r.RetryPass(context.Background())
	if err != nil {
		t.Fatalf("RetryPass() error = %v", err)
	}
	if retry.Recovered != 1 || retry.StillFailing != 0 {
		t.Fatalf("unexpected retry report %+v", retry)
	}
	if !ledger.IsProcessed(domain.KeyOf([]string{"B"})) || len(ledger.QuarantinedRecords()) != 0 {
		t.Fatalf("recovered record must move to the processed ledger")
	}
	if h.metrics.quarantined != 0 {
		t.Fatalf("expected quarantine gauge reset, got %d", h.metrics.quarantined)
	}

	var statuses []domain.OutcomeStatus
	for _, o := range h.notifier.outcomes {
		statuses = append(statuses, o.Status)
	}
	want := []domain.OutcomeStatus{domain.OutcomeProcessed, domain.OutcomeQuarantined, domain.OutcomeQuarantined, domain.OutcomeRecovered}
	if len(statuses) != len(want) {
		t.Fatalf("unexpected outcomes %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("unexpected outcomes %v", statuses)
		}
	}
	if h.notifier.outcomes[1].Failure != "transport" {
		t.Fatalf("expected transport failure, got %q", h.notifier.outcomes[1].Failure)
	}
}

func TestAlreadyFinalizedIsProcessed(t *testing.T) {
	h := newHarness("cycles.xml")
	h.contents["cycles.xml"] = "L1\n"
	h.submitter.fn = func(domain.WorkItem) error {
		return &domain.RemoteError{Operation: "point_plan", StatusCode: 400, Message: "já está finalizado", Kind: domain.RemoteAlreadyFinalized}
	}

	report, err := h.reconciler(ReconcilerConfig{}).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Processed != 1 || report.Quarantined != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !h.store.ledger("cycles.xml").IsProcessed(domain.KeyOf([]string{"L1"})) {
		t.Fatalf("expected processed marker")
	}
	if h.notifier.outcomes[0].Failure != "already_finalized" {
		t.Fatalf("unexpected outcome %+v", h.notifier.outcomes[0])
	}
}

func TestEmptyLocationIsEmptyCycle(t *testing.T) {
	h := newHarness()
	h.scanner.err = domain.WrapError(domain.ErrNoCandidateFile, "scan", errors.New("nothing"))

	report, err := h.reconciler(ReconcilerConfig{}).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("expected empty cycle, got %v", err)
	}
	if report.Sources != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	h.scanner.err = domain.WrapError(domain.ErrSourceUnavailable, "scan", errors.New("gone"))
	if _, err := h.reconciler(ReconcilerConfig{}).RunCycle(context.Background()); !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if h.metrics.cycleErrors != 1 {
		t.Fatalf("expected one failed cycle, got %d", h.metrics.cycleErrors)
	}
}

func TestVanishedSourceAndRejectedRecords(t *testing.T) {
	h := newHarness("gone.csv", "leituras.csv")
	h.contents["leituras.csv"] = "!bad\nA\n"

	report, err := h.reconciler(ReconcilerConfig{}).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Sources != 2 || report.Rejected != 1 || report.Processed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestCancellationLeavesItemUnmarked(t *testing.T) {
	h := newHarness("leituras.csv")
	h.contents["leituras.csv"] = "A\n"

	ctx, cancel := context.WithCancel(context.Background())
	h.submitter.fn = func(domain.WorkItem) error {
		cancel()
		return context.Canceled
	}

	if _, err := h.reconciler(ReconcilerConfig{}).RunCycle(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if !h.store.ledger("leituras.csv").IsNew(domain.KeyOf([]string{"A"})) {
		t.Fatalf("interrupted item must stay new")
	}
}

func TestFinalizeSingleItemSources(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "L1.tx")
	bad := filepath.Join(dir, "L2.tx")
	empty := filepath.Join(dir, "L3.tx")
	for path, content := range map[string]string{ok: "L1\n", bad: "L2\n", empty: ""} {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	h := newHarness(ok, bad, empty)
	h.submitter.fn = func(item domain.WorkItem) error {
		if item.Code == "L2" {
			return &domain.RemoteError{Operation: "point_plan", StatusCode: 404, Message: "plano não encontrado"}
		}
		return nil
	}

	r := NewReconciler(ReconcilerConfig{Name: "scm", Suffixes: h.store.suffixes}, ReconcilerDeps{
		Scanner:   h.scanner,
		Extractor: lineExtractor{},
		Ledgers:   h.store,
		Submitter: h.submitter,
		Logger:    testLogger,
	})
	if _, err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "L1_APONTADO.tx")); err != nil {
		t.Fatalf("expected finalized source: %v", err)
	}
	if _, err := os.Stat(ok); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected original source to be renamed, got %v", err)
	}
	if _, err := os.Stat(bad); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected quarantined source to be removed, got %v", err)
	}
	if _, err := os.Stat(empty); err != nil {
		t.Fatalf("empty source must be left alone: %v", err)
	}
	if recs := h.store.ledger(bad).QuarantinedRecords(); len(recs) != 1 || recs[0].Error == "" {
		t.Fatalf("expected quarantined record with message, got %+v", recs)
	}
}

func TestRunStopsOnCancelAndRunsRetryPass(t *testing.T) {
	h := newHarness()
	h.scanner.err = domain.ErrNoCandidateFile

	ctx, cancel := context.WithCancel(context.Background())
	h.scanner.onScan = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	r := h.reconciler(ReconcilerConfig{PollInterval: time.Millisecond, RetryInterval: time.Hour})
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not stop after cancellation")
	}
	if h.scanner.scans != 3 {
		t.Fatalf("expected 3 scans, got %d", h.scanner.scans)
	}
	if len(h.scanner.horizons) != 1 {
		t.Fatalf("expected a single retry pass within the interval, got %d", len(h.scanner.horizons))
	}
}

type changeFake chan struct{}

func (c changeFake) Changes() <-chan struct{} { return c }

func TestRunWakesOnChangeSignal(t *testing.T) {
	h := newHarness()
	h.scanner.err = domain.ErrNoCandidateFile

	changes := make(changeFake, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.scanner.onScan = func(n int) {
		switch n {
		case 1:
			changes <- struct{}{}
		case 2:
			cancel()
		}
	}

	r := NewReconciler(ReconcilerConfig{Name: "test", PollInterval: time.Hour}, ReconcilerDeps{
		Scanner:   h.scanner,
		Extractor: lineExtractor{},
		Ledgers:   h.store,
		Submitter: h.submitter,
		Changes:   changes,
		Logger:    testLogger,
	})
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("a change signal must cut the hour-long poll short")
	}
	if h.scanner.scans != 2 {
		t.Fatalf("expected 2 scans, got %d", h.scanner.scans)
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/core/ports"
)

type ReconcilerConfig struct {
	Name               string
	PollInterval       time.Duration
	UnavailableBackoff time.Duration
	RetryInterval      time.Duration
	RetentionDays      int
	// Suffixes.Done enables finalisation of single-item sources.
	Suffixes domain.Suffixes
}

type ReconcilerDeps struct {
	Scanner   ports.SourceScanner
	Extractor ports.RecordExtractor
	Ledgers   ports.LedgerFactory
	Submitter ports.ItemSubmitter
	Notifier  ports.OutcomeNotifier
	Metrics   ports.WatcherMetrics
	// Changes, when set, cuts the sleep between cycles short.
	Changes  ports.ChangeSignal
	Logger   *slog.Logger
	Now      func() time.Time
	ReadFile func(path string) ([]byte, error)
}

type CycleReport struct {
	CycleID          string
	Sources          int
	Items            int
	Processed        int
	Quarantined      int
	Skipped          int
	Rejected         int
	AlreadyFinalized int
}

type RetryReport struct {
	Files        int
	Attempted    int
	Recovered    int
	StillFailing int
}

// Reconciler drives one watcher: scan, extract, dedup, submit and quarantine.
type Reconciler struct {
	cfg  ReconcilerConfig
	deps ReconcilerDeps
}

func NewReconciler(cfg ReconcilerConfig, deps ReconcilerDeps) *Reconciler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.UnavailableBackoff <= 0 {
		cfg.UnavailableBackoff = cfg.PollInterval
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ReadFile == nil {
		deps.ReadFile = os.ReadFile
	}
	return &Reconciler{cfg: cfg, deps: deps}
}

// Run loops until ctx is cancelled. Cycle failures are logged and followed by
// the unavailable backoff; they never stop the loop.
func (r *Reconciler) Run(ctx context.Context) error {
	logger := r.deps.Logger.With("watcher", r.cfg.Name)
	logger.Info("watcher_started",
		"poll_interval", r.cfg.PollInterval.String(),
		"retry_interval", r.cfg.RetryInterval.String(),
		"retention_days", r.cfg.RetentionDays,
	)

	var lastRetry time.Time
	for {
		wait := r.cfg.PollInterval
		if _, err := r.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("cycle_failed", "error", err, "backoff", r.cfg.UnavailableBackoff.String())
			wait = r.cfg.UnavailableBackoff
		}

		if r.cfg.RetryInterval > 0 && (lastRetry.IsZero() || r.deps.Now().Sub(lastRetry) >= r.cfg.RetryInterval) {
			lastRetry = r.deps.Now()
			if _, err := r.RetryPass(ctx); err != nil && ctx.Err() == nil {
				logger.Error("retry_pass_failed", "error", err)
			}
		}

		if err := r.wait(ctx, wait); err != nil {
			break
		}
	}

	logger.Info("watcher_stopped")
	return nil
}

// wait sleeps for d, returning early when the watched location changes.
func (r *Reconciler) wait(ctx context.Context, d time.Duration) error {
	if r.deps.Changes == nil {
		return sleepContext(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	case <-r.deps.Changes.Changes():
	}
	return nil
}

// RunCycle performs one scan and submission pass. An empty source location is
// an empty cycle, not an error.
func (r *Reconciler) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{CycleID: uuid.NewString()}
	logger := r.deps.Logger.With("watcher", r.cfg.Name, "cycle_id", report.CycleID)
	started := r.deps.Now()

	err := r.runCycle(ctx, logger, &report)
	r.deps.Metrics.ObserveCycle(r.cfg.Name, r.deps.Now().Sub(started), err)
	if err != nil {
		return report, err
	}

	if report.Items > 0 || report.Rejected > 0 {
		logger.Info("cycle_completed",
			"sources", report.Sources,
			"items", report.Items,
			"processed", report.Processed,
			"quarantined", report.Quarantined,
			"skipped", report.Skipped,
			"rejected", report.Rejected,
		)
	} else {
		logger.Debug("cycle_completed", "sources", report.Sources)
	}
	return report, nil
}

func (r *Reconciler) runCycle(ctx context.Context, logger *slog.Logger, report *CycleReport) error {
	files, err := r.deps.Scanner.Scan(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoCandidateFile) {
			logger.Debug("no_candidate_file", "error", err)
			return nil
		}
		return fmt.Errorf("scan sources: %w", err)
	}

	var firstErr error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Sources++
		if err := r.processSource(ctx, logger.With("source", file.Path), file, report); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("source_failed", "source", file.Path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Reconciler) processSource(ctx context.Context, logger *slog.Logger, file domain.SourceFile, report *CycleReport) error {
	content, err := r.deps.ReadFile(file.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("source_vanished")
			return nil
		}
		return domain.WrapError(domain.ErrSourceUnavailable, "read source", err)
	}

	extraction, err := r.deps.Extractor.Extract(content)
	if err != nil {
		return fmt.Errorf("extract %s: %w", file.Path, err)
	}
	for _, rejected := range extraction.Rejected {
		report.Rejected++
		logger.Warn("record_rejected", "line", rejected.Line, "record", rejected.Raw, "error", rejected.Err)
	}

	ledger, err := r.deps.Ledgers.Open(file)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if err := ledger.Load(); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	seen := make(map[domain.IdentityKey]struct{}, len(extraction.Items))
	for _, item := range extraction.Items {
		report.Items++
		if _, dup := seen[item.Key]; dup || !ledger.IsNew(item.Key) {
			report.Skipped++
			continue
		}
		seen[item.Key] = struct{}{}

		status, err := r.deliver(ctx, logger, ledger, file, item, domain.OutcomeProcessed)
		if err != nil {
			return err
		}
		switch status {
		case domain.OutcomeQuarantined:
			report.Quarantined++
		default:
			report.Processed++
		}
	}

	if err := ledger.Compact(); err != nil {
		return fmt.Errorf("compact ledger: %w", err)
	}
	return r.finalize(logger, ledger, file, extraction)
}

// deliver submits one item and records its terminal status in the ledger.
// Cancellation leaves the item untouched so the next run submits it again.
func (r *Reconciler) deliver(
	ctx context.Context,
	logger *slog.Logger,
	ledger ports.Ledger,
	file domain.SourceFile,
	item domain.WorkItem,
	success domain.OutcomeStatus,
) (domain.OutcomeStatus, error) {
	submitErr := r.deps.Submitter.Submit(ctx, item)
	if submitErr != nil && ctx.Err() != nil {
		return "", ctx.Err()
	}

	class := domain.Classify(submitErr)
	outcome := domain.Outcome{
		Watcher:   r.cfg.Name,
		Source:    file.Path,
		Code:      item.Code,
		Status:    success,
		CreatedAt: r.deps.Now(),
	}

	switch {
	case submitErr == nil:
		if err := ledger.MarkProcessed(item); err != nil {
			return "", fmt.Errorf("mark processed: %w", err)
		}
		logger.Info("item_submitted", "code", item.Code, "line", item.Line, "status", success)
	case class == domain.FailureAlreadyFinalized:
		if err := ledger.MarkProcessed(item); err != nil {
			return "", fmt.Errorf("mark processed: %w", err)
		}
		outcome.Failure = class.String()
		outcome.Error = submitErr.Error()
		logger.Warn("item_already_finalized", "code", item.Code, "line", item.Line, "error", submitErr)
	default:
		if err := ledger.MarkQuarantined(item, submitErr); err != nil {
			return "", fmt.Errorf("mark quarantined: %w", err)
		}
		outcome.Status = domain.OutcomeQuarantined
		outcome.Failure = class.String()
		outcome.Error = submitErr.Error()
		logger.Error("item_quarantined",
			"code", item.Code,
			"line", item.Line,
			"record", item.RawFields,
			"failure", class.String(),
			"error", submitErr,
		)
	}

	r.deps.Metrics.ObserveItem(r.cfg.Name, outcome.Status)
	if err := r.deps.Notifier.Notify(ctx, outcome); err != nil {
		logger.Warn("outcome_notify_failed", "code", item.Code, "error", err)
	}
	return outcome.Status, nil
}

// finalize renames or deletes a drained single-item source so that later
// scans skip it. A quarantined item keeps its raw record in the quarantine
// file, so the source can go.
func (r *Reconciler) finalize(logger *slog.Logger, ledger ports.Ledger, file domain.SourceFile, extraction domain.Extraction) error {
	if r.cfg.Suffixes.Done == "" || len(extraction.Items) == 0 || len(extraction.Rejected) > 0 {
		return nil
	}

	allProcessed := true
	for _, item := range extraction.Items {
		if !ledger.IsProcessed(item.Key) {
			allProcessed = false
			break
		}
	}

	if allProcessed {
		done := domain.SiblingNames(file.Path, r.cfg.Suffixes).Done
		if err := os.Rename(file.Path, done); err != nil {
			return fmt.Errorf("finalize source: %w", err)
		}
		logger.Info("source_finalized", "target", done)
		return nil
	}

	if err := os.Remove(file.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove quarantined source: %w", err)
	}
	logger.Info("source_removed_after_quarantine")
	return nil
}

// RetryPass resubmits the quarantined records younger than the retention
// window. Successes move to the processed ledger and the quarantine file is
// rewritten with what still fails.
func (r *Reconciler) RetryPass(ctx context.Context) (RetryReport, error) {
	var report RetryReport
	logger := r.deps.Logger.With("watcher", r.cfg.Name, "pass", "retry")

	horizon := r.deps.Now().Add(-time.Duration(r.cfg.RetentionDays) * 24 * time.Hour)
	files, err := r.deps.Scanner.Quarantined(ctx, horizon)
	if err != nil {
		return report, fmt.Errorf("list quarantine files: %w", err)
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Files++
		if err := r.retryFile(ctx, logger.With("source", file.Path), file, &report); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			logger.Error("retry_file_failed", "source", file.Path, "error", err)
		}
	}

	r.deps.Metrics.SetQuarantined(r.cfg.Name, report.StillFailing)
	if report.Attempted > 0 {
		logger.Info("retry_pass_completed",
			"files", report.Files,
			"attempted", report.Attempted,
			"recovered", report.Recovered,
			"still_failing", report.StillFailing,
		)
	}
	return report, nil
}

func (r *Reconciler) retryFile(ctx context.Context, logger *slog.Logger, file domain.SourceFile, report *RetryReport) error {
	ledger, err := r.deps.Ledgers.Open(file)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if err := ledger.Load(); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	for _, record := range ledger.QuarantinedRecords() {
		item, err := r.deps.Extractor.Rebuild(record.RawFields)
		if err != nil {
			report.StillFailing++
			logger.Warn("quarantined_record_unusable", "record", record.RawFields, "error", err)
			continue
		}

		report.Attempted++
		status, err := r.deliver(ctx, logger, ledger, file, item, domain.OutcomeRecovered)
		if err != nil {
			return err
		}
		if status == domain.OutcomeQuarantined {
			report.StillFailing++
		} else {
			report.Recovered++
		}
	}

	if err := ledger.Compact(); err != nil {
		return fmt.Errorf("compact ledger: %w", err)
	}
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.Outcome) error { return nil }

type nopMetrics struct{}

func (nopMetrics) ObserveItem(string, domain.OutcomeStatus)  {}
func (nopMetrics) ObserveCycle(string, time.Duration, error) {}
func (nopMetrics) SetQuarantined(string, int)                {}

package ports

import (
	"context"
	"time"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
)

// SourceScanner locates the candidate files of a watched location.
type SourceScanner interface {
	Scan(ctx context.Context) ([]domain.SourceFile, error)
	Quarantined(ctx context.Context, horizon time.Time) ([]domain.SourceFile, error)
}

// RecordExtractor turns file content into work items. It performs no I/O.
type RecordExtractor interface {
	Extract(content []byte) (domain.Extraction, error)
	Rebuild(raw []string) (domain.WorkItem, error)
}

// Ledger is the dedup state of one source file.
type Ledger interface {
	Load() error
	IsNew(key domain.IdentityKey) bool
	IsProcessed(key domain.IdentityKey) bool
	MarkProcessed(item domain.WorkItem) error
	MarkQuarantined(item domain.WorkItem, cause error) error
	QuarantinedRecords() []domain.QuarantinedRecord
	Compact() error
}

// LedgerFactory opens the ledger of a source file.
type LedgerFactory interface {
	Open(source domain.SourceFile) (Ledger, error)
}

// MESClient is the authenticated MES API.
type MESClient interface {
	Login(ctx context.Context) (string, error)
	ReportReading(ctx context.Context, reading domain.Reading) error
	PointPlan(ctx context.Context, codigoLayout string) error
	CreateProject(ctx context.Context, plans []domain.PlanCreate) error
	LookupPlansByPart(ctx context.Context, idUnicoPeca int64) ([]domain.PlanSnapshot, error)
	CreateOrders(ctx context.Context, orders []domain.OrderCreate) error
}

// OutcomeNotifier publishes submission outcomes.
type OutcomeNotifier interface {
	Notify(ctx context.Context, outcome domain.Outcome) error
}

// WatcherMetrics records loop activity.
type WatcherMetrics interface {
	ObserveItem(watcher string, status domain.OutcomeStatus)
	ObserveCycle(watcher string, duration time.Duration, err error)
	SetQuarantined(watcher string, records int)
}

// FigureSource loads the base64 figure of a layout; nil when there is none.
type FigureSource interface {
	Figure(codigoLayout string) (*string, error)
}

// ChangeSignal wakes a loop before its poll interval elapses.
type ChangeSignal interface {
	Changes() <-chan struct{}
}

package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/core/ports"
)

type scannerFake struct {
	files       []domain.SourceFile
	err         error
	quarantined []domain.SourceFile
	horizons    []time.Time
	onScan      func(n int)
	scans       int
}

func (f *scannerFake) Scan(context.Context) ([]domain.SourceFile, error) {
	f.scans++
	if f.onScan != nil {
		f.onScan(f.scans)
	}
	return f.files, f.err
}

func (f *scannerFake) Quarantined(_ context.Context, horizon time.Time) ([]domain.SourceFile, error) {
	f.horizons = append(f.horizons, horizon)
	return f.quarantined, nil
}

// lineExtractor yields one item per non-empty line; lines starting with "!"
// are rejected.
type lineExtractor struct{}

func (lineExtractor) Extract(content []byte) (domain.Extraction, error) {
	var out domain.Extraction
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "!") {
			out.Rejected = append(out.Rejected, domain.RecordError{Line: i + 1, Raw: []string{line}, Err: domain.ErrMalformedRecord})
			continue
		}
		out.Items = append(out.Items, domain.NewWorkItem([]string{line}, line, i+1))
	}
	return out, nil
}

func (lineExtractor) Rebuild(raw []string) (domain.WorkItem, error) {
	return domain.NewWorkItem(raw, raw[0], 0), nil
}

// ledgerStore stands in for the marker files: state survives reconciler
// restarts as long as the store is shared.
type ledgerStore struct {
	suffixes domain.Suffixes
	ledgers  map[string]*memLedger
}

func newLedgerStore() *ledgerStore {
	return &ledgerStore{
		suffixes: domain.Suffixes{Processed: "_PROCESSADO_TEMPOX", Quarantine: "_COM_ERRO", Done: "_APONTADO"},
		ledgers:  map[string]*memLedger{},
	}
}

func (s *ledgerStore) Open(source domain.SourceFile) (ports.Ledger, error) {
	return s.ledger(source.Path), nil
}

func (s *ledgerStore) ledger(path string) *memLedger {
	key := domain.SiblingNames(path, s.suffixes).Processed
	l, ok := s.ledgers[key]
	if !ok {
		l = &memLedger{processed: map[domain.IdentityKey]bool{}, quarantined: map[domain.IdentityKey]string{}}
		s.ledgers[key] = l
	}
	return l
}

type memLedger struct {
	processed   map[domain.IdentityKey]bool
	quarantined map[domain.IdentityKey]string
	order       []domain.QuarantinedRecord
	loads       int
	compacts    int
}

func (l *memLedger) Load() error {
	l.loads++
	return nil
}

func (l *memLedger) IsNew(key domain.IdentityKey) bool {
	_, quarantined := l.quarantined[key]
	return !l.processed[key] && !quarantined
}

func (l *memLedger) IsProcessed(key domain.IdentityKey) bool { return l.processed[key] }

func (l *memLedger) MarkProcessed(item domain.WorkItem) error {
	l.processed[item.Key] = true
	delete(l.quarantined, item.Key)
	return nil
}

func (l *memLedger) MarkQuarantined(item domain.WorkItem, cause error) error {
	if l.processed[item.Key] {
		return nil
	}
	if _, ok := l.quarantined[item.Key]; !ok {
		l.order = append(l.order, domain.QuarantinedRecord{RawFields: item.RawFields, Key: item.Key})
	}
	l.quarantined[item.Key] = cause.Error()
	return nil
}

func (l *memLedger) QuarantinedRecords() []domain.QuarantinedRecord {
	var out []domain.QuarantinedRecord
	for _, rec := range l.order {
		if msg, ok := l.quarantined[rec.Key]; ok {
			rec.Error = msg
			out = append(out, rec)
		}
	}
	return out
}

func (l *memLedger) Compact() error {
	l.compacts++
	return nil
}

type submitterFake struct {
	mu    sync.Mutex
	calls []string
	fn    func(item domain.WorkItem) error
}

func (f *submitterFake) Submit(_ context.Context, item domain.WorkItem) error {
	f.mu.Lock()
	f.calls = append(f.calls, item.Code)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(item)
	}
	return nil
}

type notifierFake struct {
	outcomes []domain.Outcome
}

func (f *notifierFake) Notify(_ context.Context, outcome domain.Outcome) error {
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

type metricsFake struct {
	items       map[domain.OutcomeStatus]int
	cycles      int
	cycleErrors int
	quarantined int
}

func newMetricsFake() *metricsFake {
	return &metricsFake{items: map[domain.OutcomeStatus]int{}}
}

func (f *metricsFake) ObserveItem(_ string, status domain.OutcomeStatus) { f.items[status]++ }

func (f *metricsFake) ObserveCycle(_ string, _ time.Duration, err error) {
	f.cycles++
	if err != nil {
		f.cycleErrors++
	}
}

func (f *metricsFake) SetQuarantined(_ string, n int) { f.quarantined = n }

type mesClientFake struct {
	readings []domain.Reading
	points   []string
	projects [][]domain.PlanCreate
	lookups  []int64
	orders   [][]domain.OrderCreate

	pointErr  func(call int, code string) error
	readErr   error
	plans     map[int64][]domain.PlanSnapshot
	lookupErr error
}

func (f *mesClientFake) Login(context.Context) (string, error) { return "token", nil }

func (f *mesClientFake) ReportReading(_ context.Context, reading domain.Reading) error {
	f.readings = append(f.readings, reading)
	return f.readErr
}

func (f *mesClientFake) PointPlan(_ context.Context, codigoLayout string) error {
	f.points = append(f.points, codigoLayout)
	if f.pointErr != nil {
		return f.pointErr(len(f.points), codigoLayout)
	}
	return nil
}

func (f *mesClientFake) CreateProject(_ context.Context, plans []domain.PlanCreate) error {
	f.projects = append(f.projects, plans)
	return nil
}

func (f *mesClientFake) CreateOrders(_ context.Context, orders []domain.OrderCreate) error {
	f.orders = append(f.orders, orders)
	return nil
}

func (f *mesClientFake) LookupPlansByPart(_ context.Context, id int64) ([]domain.PlanSnapshot, error) {
	f.lookups = append(f.lookups, id)
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.plans[id], nil
}

package bootstrap

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tempox/tx-mes-cli/internal/config"
	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/core/ports"
	"github.com/tempox/tx-mes-cli/internal/core/usecase"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/extractor/csvrow"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/extractor/cyclexml"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/extractor/firstline"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/extractor/programlog"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/ledger/markerfile"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/scanner/fswatch"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/scanner/localfs"
)

// Preset is the fixed profile of a watcher subcommand.
type Preset struct {
	Name               string
	Short              string
	Layout             localfs.Layout
	Kind               domain.SourceKind
	Patterns           []string
	Action             domain.Action
	Suffixes           domain.Suffixes
	PollInterval       time.Duration
	UnavailableBackoff time.Duration
	RetryInterval      time.Duration
	RetentionDays      int
	EventGap           time.Duration
	CSV                csvrow.Options
	Ledger             markerfile.Format
	// FSEvents wakes the loop on filesystem events in addition to polling.
	FSEvents bool
}

const (
	defaultRetryInterval = 10 * time.Minute
	defaultRetentionDays = 3
)

var presets = []Preset{
	{
		Name:               "apontar-plano-de-corte-nanxing",
		Short:              "Aponta os planos concluídos no log de ciclos XML da Nanxing",
		Layout:             localfs.LayoutSingle,
		Kind:               domain.KindCycleXML,
		Action:             domain.ActionPointPlan,
		Suffixes:           domain.Suffixes{Processed: "_PROCESSADO_TEMPOX", Quarantine: "_COM_ERRO_TEMPOX", MarkerExt: ".csv"},
		PollInterval:       time.Second,
		UnavailableBackoff: 10 * time.Second,
		RetryInterval:      defaultRetryInterval,
		RetentionDays:      defaultRetentionDays,
		EventGap:           2 * time.Second,
	},
	{
		Name:          "apontar-plano-de-corte-scm",
		Short:         "Aponta os planos dos arquivos .tx da SCM",
		Layout:        localfs.LayoutBatch,
		Kind:          domain.KindLayoutFile,
		Patterns:      []string{"*.tx"},
		Action:        domain.ActionPointPlan,
		Suffixes:      domain.Suffixes{Processed: "_PROCESSADO_TEMPOX", Quarantine: "_COM_ERRO", Done: "_APONTADO"},
		PollInterval:  30 * time.Second,
		RetryInterval: defaultRetryInterval,
		RetentionDays: defaultRetentionDays,
		EventGap:      time.Second,
		Ledger:        markerfile.Format{SingleRecord: true},
	},
	{
		Name:          "apontar-leitura-furadeira-nanxing",
		Short:         "Aponta as leituras do CSV mais recente da furadeira Nanxing",
		Layout:        localfs.LayoutFlat,
		Kind:          domain.KindCSV,
		Patterns:      []string{"*.csv"},
		Action:        domain.ActionReading,
		Suffixes:      domain.Suffixes{Processed: "_PROCESSADO_TEMPOX", Quarantine: "_COM_ERRO_TEMPOX"},
		PollInterval:  5 * time.Second,
		RetryInterval: defaultRetryInterval,
		RetentionDays: defaultRetentionDays,
		CSV:           csvrow.Options{Delimiter: ',', HasHeader: true, CodeColumn: 1},
	},
	{
		Name:          "apontar-leitura-furadeira-scm-pratika",
		Short:         "Aponta as leituras do log .pro mais recente da furadeira SCM Pratika",
		Layout:        localfs.LayoutFlat,
		Kind:          domain.KindProgramLog,
		Patterns:      []string{"*.pro"},
		Action:        domain.ActionReading,
		Suffixes:      domain.Suffixes{Processed: "_PROCESSADO_SCM_PRATIKA", Quarantine: "_COM_ERRO_SCM_PRATIKA"},
		PollInterval:  5 * time.Second,
		RetryInterval: defaultRetryInterval,
		RetentionDays: defaultRetentionDays,
		Ledger:        markerfile.Format{CodeRows: true},
	},
	{
		Name:          "apontar-csv",
		Short:         "Aponta leituras ou planos a partir de exportações CSV genéricas",
		Layout:        localfs.LayoutFlat,
		Kind:          domain.KindCSV,
		Patterns:      []string{"*.csv"},
		Action:        domain.ActionReading,
		Suffixes:      domain.Suffixes{Processed: "_PROCESSADO_TEMPOX", Quarantine: "_COM_ERRO_TEMPOX"},
		PollInterval:  20 * time.Second,
		RetryInterval: defaultRetryInterval,
		RetentionDays: defaultRetentionDays,
		EventGap:      2 * time.Second,
		CSV:           csvrow.Options{Delimiter: ',', HasHeader: true, CodeColumn: 1},
	},
}

// Presets returns the watcher presets ordered by name.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func LookupPreset(name string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// WatchSettings are the command-line values of a watcher. Zero values and
// nil pointers keep the configured or preset value; a zero retry interval or
// retention set explicitly disables the retry pass.
type WatchSettings struct {
	Path          string
	ResourceID    int64
	PointType     string
	PollInterval  time.Duration
	RetryInterval *time.Duration
	RetentionDays *int
	FSEvents      *bool

	Layout     string
	Action     string
	Delimiter  rune
	CodeColumn *int
	NoHeader   bool
}

// Resolve merges the preset with the file overrides and the command-line
// settings, in that order.
func (p Preset) Resolve(file config.Watcher, flags WatchSettings) (WatchSettings, Preset, error) {
	out := WatchSettings{
		Path:         file.Path,
		ResourceID:   file.ResourceID,
		PointType:    file.PointType,
		PollInterval: file.Interval,
	}
	mergeSuffixes(&p.Suffixes, file.Suffixes)
	if file.Interval > 0 {
		p.PollInterval = file.Interval
	}
	if file.RetryInterval > 0 {
		p.RetryInterval = file.RetryInterval
	}
	if file.RetentionDays > 0 {
		p.RetentionDays = file.RetentionDays
	}
	if file.FSEvents != nil {
		p.FSEvents = *file.FSEvents
	}

	if flags.Path != "" {
		out.Path = flags.Path
	}
	if flags.ResourceID != 0 {
		out.ResourceID = flags.ResourceID
	}
	if flags.PointType != "" {
		out.PointType = flags.PointType
	}
	if flags.PollInterval > 0 {
		p.PollInterval = flags.PollInterval
	}
	if flags.RetryInterval != nil {
		if *flags.RetryInterval < 0 {
			return out, p, domain.WrapError(domain.ErrInvalidInput, "resolve watcher", fmt.Errorf("negative retry interval %s", *flags.RetryInterval))
		}
		p.RetryInterval = *flags.RetryInterval
	}
	if flags.RetentionDays != nil {
		if *flags.RetentionDays < 0 {
			return out, p, domain.WrapError(domain.ErrInvalidInput, "resolve watcher", fmt.Errorf("negative retention of %d days", *flags.RetentionDays))
		}
		p.RetentionDays = *flags.RetentionDays
	}
	if flags.FSEvents != nil {
		p.FSEvents = *flags.FSEvents
	}
	out.PollInterval = p.PollInterval
	out.RetryInterval = &p.RetryInterval
	out.RetentionDays = &p.RetentionDays
	out.FSEvents = &p.FSEvents

	if flags.Layout != "" {
		layout, err := localfs.ParseLayout(flags.Layout)
		if err != nil {
			return out, p, domain.WrapError(domain.ErrInvalidInput, "resolve watcher", err)
		}
		p.Layout = layout
	}
	if flags.Action != "" {
		action, err := parseAction(flags.Action)
		if err != nil {
			return out, p, err
		}
		p.Action = action
	}
	if flags.Delimiter != 0 {
		p.CSV.Delimiter = flags.Delimiter
	}
	if flags.CodeColumn != nil {
		p.CSV.CodeColumn = *flags.CodeColumn
	}
	if flags.NoHeader {
		p.CSV.HasHeader = false
	}

	if strings.TrimSpace(out.Path) == "" {
		return out, p, domain.WrapError(domain.ErrInvalidInput, "resolve watcher", fmt.Errorf("%s requires a source path", p.Name))
	}
	if p.Action == domain.ActionReading && out.ResourceID <= 0 {
		return out, p, domain.WrapError(domain.ErrInvalidInput, "resolve watcher", fmt.Errorf("%s requires a resource id", p.Name))
	}
	if out.PointType == "" {
		out.PointType = string(domain.PointStartOrEnd)
	}
	if _, ok := domain.ParsePointType(out.PointType); !ok {
		return out, p, domain.WrapError(domain.ErrInvalidInput, "resolve watcher", fmt.Errorf("unknown point type %q", out.PointType))
	}
	return out, p, nil
}

func mergeSuffixes(dst *domain.Suffixes, src domain.Suffixes) {
	if src.Processed != "" {
		dst.Processed = src.Processed
	}
	if src.Quarantine != "" {
		dst.Quarantine = src.Quarantine
	}
	if src.Done != "" {
		dst.Done = src.Done
	}
	if src.MarkerExt != "" {
		dst.MarkerExt = src.MarkerExt
	}
}

func parseAction(v string) (domain.Action, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case string(domain.ActionReading), "reading":
		return domain.ActionReading, nil
	case string(domain.ActionPointPlan), "point":
		return domain.ActionPointPlan, nil
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "parse action", fmt.Errorf("unknown action %q", v))
}

func newExtractor(p Preset) (ports.RecordExtractor, error) {
	switch p.Kind {
	case domain.KindCSV:
		return csvrow.NewExtractor(p.CSV), nil
	case domain.KindCycleXML:
		return cyclexml.NewExtractor(), nil
	case domain.KindProgramLog:
		return programlog.NewExtractor(), nil
	case domain.KindLayoutFile:
		return firstline.NewExtractor(), nil
	}
	return nil, fmt.Errorf("no extractor for source kind %q", p.Kind)
}

// NewWatcher builds the reconciliation loop of a preset.
func (a *App) NewWatcher(p Preset, flags WatchSettings) (*usecase.Reconciler, error) {
	settings, p, err := p.Resolve(a.Config.Watcher(p.Name), flags)
	if err != nil {
		return nil, err
	}
	extractor, err := newExtractor(p)
	if err != nil {
		return nil, err
	}
	pointType, _ := domain.ParsePointType(settings.PointType)

	logger := a.Logger.With("watcher", p.Name)
	submitter := usecase.NewSubmitter(a.Client, usecase.SubmitterConfig{
		Action:     p.Action,
		ResourceID: settings.ResourceID,
		PointType:  pointType,
		EventGap:   p.EventGap,
	}, logger)

	var changes ports.ChangeSignal
	if p.FSEvents {
		events, err := fswatch.New(fswatch.Options{Path: settings.Path, Ignore: p.Suffixes.All(), Logger: logger})
		if err != nil {
			logger.Warn("fswatch_unavailable", "path", settings.Path, "error", err)
		} else {
			changes = events
			a.closers = append(a.closers, func() { _ = events.Close() })
		}
	}

	reconciler := usecase.NewReconciler(usecase.ReconcilerConfig{
		Name:               p.Name,
		PollInterval:       p.PollInterval,
		UnavailableBackoff: p.UnavailableBackoff,
		RetryInterval:      p.RetryInterval,
		RetentionDays:      p.RetentionDays,
		Suffixes:           p.Suffixes,
	}, usecase.ReconcilerDeps{
		Scanner: localfs.NewScanner(localfs.Options{
			Path:     settings.Path,
			Layout:   p.Layout,
			Kind:     p.Kind,
			Patterns: p.Patterns,
			Suffixes: p.Suffixes,
		}),
		Extractor: extractor,
		Ledgers:   markerfile.Factory{Suffixes: p.Suffixes, Format: p.Ledger},
		Submitter: submitter,
		Notifier:  a.Notifier,
		Metrics:   a.Metrics,
		Changes:   changes,
		Logger:    a.Logger,
	})

	logger.Info("watcher_configured",
		"path", settings.Path,
		"layout", p.Layout,
		"action", p.Action,
		"point_type", pointType,
		"poll_interval", p.PollInterval.String(),
		"retry_interval", p.RetryInterval.String(),
		"retention_days", p.RetentionDays,
		"fs_events", changes != nil,
	)

	return reconciler, nil
}

// NewPlanPointer builds the one-shot pointer of apontar-plano-de-corte.
func (a *App) NewPlanPointer() ports.PlanPointer {
	return usecase.NewSubmitter(a.Client, usecase.SubmitterConfig{
		Action:   domain.ActionPointPlan,
		EventGap: 2 * time.Second,
	}, a.Logger)
}

// NewOrderImporter builds the nova-ordem use case.
func (a *App) NewOrderImporter() *usecase.OrderImporter {
	return usecase.NewOrderImporter(a.Client, a.Logger)
}

// NewProjectPlanner builds the novo-plano-de-corte use case.
func (a *App) NewProjectPlanner(figures ports.FigureSource) *usecase.ProjectPlanner {
	return usecase.NewProjectPlanner(a.Client, usecase.NewDuplicateChecker(a.Client), figures, a.Logger)
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/core/ports"
)

type SubmitterConfig struct {
	Action     domain.Action
	ResourceID int64
	PointType  domain.PointType
	// EventGap separates the start and end events of INICIO_E_FIM.
	EventGap time.Duration
}

// Submitter maps work items onto MES calls.
type Submitter struct {
	client ports.MESClient
	cfg    SubmitterConfig
	logger *slog.Logger
}

func NewSubmitter(client ports.MESClient, cfg SubmitterConfig, logger *slog.Logger) *Submitter {
	if cfg.PointType == "" {
		cfg.PointType = domain.PointStartOrEnd
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{client: client, cfg: cfg, logger: logger}
}

func (s *Submitter) Submit(ctx context.Context, item domain.WorkItem) error {
	switch s.cfg.Action {
	case domain.ActionReading:
		return s.client.ReportReading(ctx, domain.Reading{
			ResourceID: s.cfg.ResourceID,
			Code:       item.Code,
			Qty:        1,
			Manual:     false,
		})
	case domain.ActionPointPlan:
		return s.point(ctx, item.Code, s.cfg.PointType)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "submit", fmt.Errorf("unknown action %q", s.cfg.Action))
	}
}

// Point reports one layout outside of a watcher. An already finalised plan
// counts as pointed.
func (s *Submitter) Point(ctx context.Context, codigoLayout string, pointType domain.PointType) error {
	err := s.point(ctx, codigoLayout, pointType)
	if domain.Classify(err) == domain.FailureAlreadyFinalized {
		s.logger.Warn("plan_already_finalized", "codigo_layout", codigoLayout, "error", err)
		return nil
	}
	return err
}

func (s *Submitter) point(ctx context.Context, codigoLayout string, pointType domain.PointType) error {
	if err := s.client.PointPlan(ctx, codigoLayout); err != nil {
		return err
	}
	if pointType != domain.PointStartAndEnd {
		return nil
	}
	if err := sleepContext(ctx, s.cfg.EventGap); err != nil {
		return err
	}
	s.logger.Info("pointing_plan_end", "codigo_layout", codigoLayout)
	return s.client.PointPlan(ctx, codigoLayout)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

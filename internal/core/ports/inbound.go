package ports

import (
	"context"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
)

// ItemSubmitter delivers one work item to the MES.
type ItemSubmitter interface {
	Submit(ctx context.Context, item domain.WorkItem) error
}

// DuplicateFinder reports parts already referenced by a blocking plan.
type DuplicateFinder interface {
	Check(ctx context.Context, parts []domain.PartRef) ([]domain.DuplicateHit, error)
}

// PlanPointer reports a start/stop event for one layout.
type PlanPointer interface {
	Point(ctx context.Context, codigoLayout string, pointType domain.PointType) error
}

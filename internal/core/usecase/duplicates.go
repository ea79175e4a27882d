package usecase

import (
	"context"
	"fmt"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/core/ports"
)

// DuplicateChecker looks up the plans that already reference incoming parts.
type DuplicateChecker struct {
	client ports.MESClient
}

func NewDuplicateChecker(client ports.MESClient) *DuplicateChecker {
	return &DuplicateChecker{client: client}
}

// Check returns the blocking hits in input order. Parts without a unique id
// are never looked up.
func (c *DuplicateChecker) Check(ctx context.Context, parts []domain.PartRef) ([]domain.DuplicateHit, error) {
	plansByPart := make(map[int64][]domain.PlanSnapshot)
	var hits []domain.DuplicateHit

	for _, part := range parts {
		if part.IDUnicoPeca == 0 {
			continue
		}
		plans, ok := plansByPart[part.IDUnicoPeca]
		if !ok {
			var err error
			plans, err = c.client.LookupPlansByPart(ctx, part.IDUnicoPeca)
			if err != nil {
				return nil, fmt.Errorf("lookup plans for part %d: %w", part.IDUnicoPeca, err)
			}
			plansByPart[part.IDUnicoPeca] = plans
		}
		for _, plan := range plans {
			if domain.IsDuplicate(plan, part) {
				hits = append(hits, domain.DuplicateHit{Part: part, Plan: plan})
			}
		}
	}
	return hits, nil
}

package consumption

import (
	"context"
	"time"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/repository"
	"github.com/OptimCE/crm-backend-sub001/usecase"
)

// Series returns owner's samples in [from, to), oldest first, for export.
func (u *Upserter) Series(ctx context.Context, owner domain.ConsumptionOwner, from, to time.Time) ([]domain.ConsumptionSample, error) {
	ctx, id, err := u.auth.Require(ctx, usecase.ReadRole)
	if err != nil {
		return nil, err
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, domain.Invalidf("empty range %s to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	var out []domain.ConsumptionSample
	err = u.uow.Run(ctx, id.TenantID, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Consumption().Range(ctx, owner, from.UTC(), to.UTC())
		return err
	})
	return out, err
}

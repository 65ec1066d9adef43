package sharing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	"github.com/OptimCE/crm-backend-sub001/pkg/logger"
	"github.com/OptimCE/crm-backend-sub001/repository"
	"github.com/OptimCE/crm-backend-sub001/usecase"
)

// UseCase drives the approval workflow of allocation keys on sharing
// operations: PENDING to APPROVED or REJECTED, with at most one open
// APPROVED association per operation.
type UseCase struct {
	uow     repository.UnitOfWork
	auth    usecase.Authorizer
	loc     *time.Location
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(uow repository.UnitOfWork, auth usecase.Authorizer, loc *time.Location, m *metrics.Metrics, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &UseCase{
		uow:     uow,
		auth:    auth,
		loc:     loc,
		metrics: m,
		logger:  logger,
	}
}

// Propose attaches keyID to the operation as a PENDING association starting
// on proposalDate (today when zero). An operation holds at most one open
// PENDING association.
func (uc *UseCase) Propose(ctx context.Context, operationID, keyID int64, proposalDate time.Time) (*domain.SharingOperationKey, error) {
	ctx, id, err := uc.auth.Require(ctx, usecase.WriteRole)
	if err != nil {
		return nil, err
	}
	record := &domain.SharingOperationKey{
		SharingOperationID: operationID,
		KeyID:              keyID,
		StartDate:          uc.day(proposalDate),
		Status:             domain.KeyPending,
	}

	err = uc.uow.Run(ctx, id.TenantID, func(ctx context.Context, tx repository.Tx) error {
		ops := tx.SharingOperations()
		_, err := usecase.Version(ctx, usecase.Versioning[domain.SharingOperationKey]{
			Parent: func(ctx context.Context) error {
				if err := ops.Lock(ctx, operationID); err != nil {
					return err
				}
				found, err := ops.AllocationKeyExists(ctx, keyID)
				if err != nil {
					return err
				}
				if !found {
					return domain.ErrAllocationKeyMissing
				}
				return nil
			},
			Guard: func(ctx context.Context, _ *domain.SharingOperationKey) error {
				pending, err := ops.HasOpenPending(ctx, operationID)
				if err != nil {
					return err
				}
				if pending {
					return domain.ErrPendingKeyExists
				}
				return nil
			},
			Insert: ops.InsertKey,
		}, record, usecase.VersionOptions{})
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.metrics.KeyTransition("propose")
	uc.log(ctx).Info("allocation key proposed",
		zap.Int64("sharing_operation_id", operationID),
		zap.Int64("key_id", keyID),
		zap.Int64("association_id", record.ID),
	)
	return record, nil
}

// Approve closes every open APPROVED association of the operation at
// effectiveDate and approves the open PENDING association of keyID, as one
// unit. The operation row is locked first so concurrent approvals on the
// same operation serialize; the conditional status update and the unique
// index on open APPROVED rows turn any remaining race into Conflict.
func (uc *UseCase) Approve(ctx context.Context, operationID, keyID int64, effectiveDate time.Time) (*domain.SharingOperationKey, error) {
	ctx, id, err := uc.auth.Require(ctx, usecase.WriteRole)
	if err != nil {
		return nil, err
	}
	effective := uc.day(effectiveDate)

	var approved domain.SharingOperationKey
	err = uc.uow.Run(ctx, id.TenantID, func(ctx context.Context, tx repository.Tx) error {
		ops := tx.SharingOperations()
		if err := ops.Lock(ctx, operationID); err != nil {
			return err
		}
		keys, err := ops.ListKeys(ctx, operationID)
		if err != nil {
			return err
		}

		target, ok := openAssociation(keys, keyID)
		if !ok {
			return domain.ErrAssociationNotFound
		}
		if target.Status != domain.KeyPending {
			return domain.ErrAssociationNotOpen
		}
		if effective.Before(domain.DayOf(target.StartDate)) {
			return domain.Invalidf("effective date %s precedes the proposal date %s",
				effective.Format(time.DateOnly), target.StartDate.Format(time.DateOnly))
		}
		for _, k := range keys {
			if k.Status == domain.KeyApproved && k.Open() && effective.Before(domain.DayOf(k.StartDate)) {
				return domain.Invalidf("effective date %s precedes the active key start %s",
					effective.Format(time.DateOnly), k.StartDate.Format(time.DateOnly))
			}
		}

		closed, err := ops.CloseApprovedKeys(ctx, operationID, effective, target.ID)
		if err != nil {
			return err
		}
		if err := ops.TransitionKey(ctx, target.ID, domain.KeyPending, domain.KeyApproved, nil); err != nil {
			return err
		}
		target.Status = domain.KeyApproved
		approved = target

		uc.log(ctx).Debug("previous keys closed", zap.Int64("closed", closed))
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.metrics.KeyTransition("approve")
	uc.log(ctx).Info("allocation key approved",
		zap.Int64("sharing_operation_id", operationID),
		zap.Int64("key_id", keyID),
		zap.Time("effective_date", effective),
	)
	return &approved, nil
}

// Reject marks the open PENDING association of keyID as REJECTED and ends
// it at effectiveDate. Other associations are untouched.
func (uc *UseCase) Reject(ctx context.Context, operationID, keyID int64, effectiveDate time.Time) (*domain.SharingOperationKey, error) {
	ctx, id, err := uc.auth.Require(ctx, usecase.WriteRole)
	if err != nil {
		return nil, err
	}
	effective := uc.day(effectiveDate)

	var rejected *domain.SharingOperationKey
	err = uc.uow.Run(ctx, id.TenantID, func(ctx context.Context, tx repository.Tx) error {
		ops := tx.SharingOperations()
		if err := ops.Lock(ctx, operationID); err != nil {
			return err
		}
		target, err := ops.OpenKey(ctx, operationID, keyID)
		if err != nil {
			return err
		}
		if err := checkEnd(*target, effective); err != nil {
			return err
		}
		if err := ops.TransitionKey(ctx, target.ID, domain.KeyPending, domain.KeyRejected, &effective); err != nil {
			return err
		}
		target.Status = domain.KeyRejected
		target.EndDate = &effective
		rejected = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.metrics.KeyTransition("reject")
	uc.log(ctx).Info("allocation key rejected",
		zap.Int64("sharing_operation_id", operationID),
		zap.Int64("key_id", keyID),
	)
	return rejected, nil
}

// Close ends the open association of keyID at effectiveDate whatever its
// status, removing the key without a replacement.
func (uc *UseCase) Close(ctx context.Context, operationID, keyID int64, effectiveDate time.Time) (*domain.SharingOperationKey, error) {
	ctx, id, err := uc.auth.Require(ctx, usecase.WriteRole)
	if err != nil {
		return nil, err
	}
	effective := uc.day(effectiveDate)

	var closed *domain.SharingOperationKey
	err = uc.uow.Run(ctx, id.TenantID, func(ctx context.Context, tx repository.Tx) error {
		ops := tx.SharingOperations()
		if err := ops.Lock(ctx, operationID); err != nil {
			return err
		}
		target, err := ops.OpenKey(ctx, operationID, keyID)
		if err != nil {
			return err
		}
		if err := checkEnd(*target, effective); err != nil {
			return err
		}
		if err := ops.CloseKey(ctx, target.ID, effective); err != nil {
			return err
		}
		target.EndDate = &effective
		closed = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.metrics.KeyTransition("close")
	uc.log(ctx).Info("allocation key closed",
		zap.Int64("sharing_operation_id", operationID),
		zap.Int64("key_id", keyID),
	)
	return closed, nil
}

// Summary presents the operation's keys: the newest APPROVED row is active,
// the newest open PENDING row awaits approval, everything else is history.
func (uc *UseCase) Summary(ctx context.Context, operationID int64) (domain.KeySummary, error) {
	var out domain.KeySummary
	ctx, id, err := uc.auth.Require(ctx, usecase.ReadRole)
	if err != nil {
		return out, err
	}
	err = uc.uow.Run(ctx, id.TenantID, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.SharingOperations().Get(ctx, operationID); err != nil {
			return err
		}
		keys, err := tx.SharingOperations().ListKeys(ctx, operationID)
		if err != nil {
			return err
		}
		out = domain.SummarizeKeys(keys)
		return nil
	})
	return out, err
}

func (uc *UseCase) day(t time.Time) time.Time {
	if t.IsZero() {
		return domain.Today(uc.loc)
	}
	return domain.DayOf(t)
}

func (uc *UseCase) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, uc.logger)
}

// openAssociation returns the newest open association of keyID; keys are
// ordered newest first.
func openAssociation(keys []domain.SharingOperationKey, keyID int64) (domain.SharingOperationKey, bool) {
	for _, k := range keys {
		if k.KeyID == keyID && k.Open() {
			return k, true
		}
	}
	return domain.SharingOperationKey{}, false
}

func checkEnd(k domain.SharingOperationKey, end time.Time) error {
	if end.Before(domain.DayOf(k.StartDate)) {
		return domain.Invalidf("end date %s precedes start date %s", end.Format(time.DateOnly), k.StartDate.Format(time.DateOnly))
	}
	return nil
}

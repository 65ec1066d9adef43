package meter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/pkg/logger"
	"github.com/OptimCE/crm-backend-sub001/repository"
	"github.com/OptimCE/crm-backend-sub001/usecase"
)

// UseCase versions meter configurations and classifies them over time.
type UseCase struct {
	uow    repository.UnitOfWork
	auth   usecase.Authorizer
	loc    *time.Location
	logger *zap.Logger
}

func New(uow repository.UnitOfWork, auth usecase.Authorizer, loc *time.Location, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &UseCase{
		uow:    uow,
		auth:   auth,
		loc:    loc,
		logger: logger,
	}
}

// PatchConfiguration appends a configuration to the meter's history. It
// never closes an existing row; Timeline decides which one is current.
func (uc *UseCase) PatchConfiguration(ctx context.Context, cfg domain.MeterConfiguration) (*domain.MeterConfiguration, error) {
	return uc.version(ctx, cfg, usecase.VersionOptions{})
}

// ReplaceConfiguration closes the meter's open configurations at the new
// start date, then appends cfg.
func (uc *UseCase) ReplaceConfiguration(ctx context.Context, cfg domain.MeterConfiguration) (*domain.MeterConfiguration, error) {
	return uc.version(ctx, cfg, usecase.VersionOptions{CloseOpen: true})
}

func (uc *UseCase) version(ctx context.Context, cfg domain.MeterConfiguration, opts usecase.VersionOptions) (*domain.MeterConfiguration, error) {
	ctx, id, err := uc.auth.Require(ctx, usecase.WriteRole)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var created *domain.MeterConfiguration
	err = uc.uow.Run(ctx, id.TenantID, func(ctx context.Context, tx repository.Tx) error {
		meters := tx.Meters()
		created, err = usecase.Version(ctx, usecase.Versioning[domain.MeterConfiguration]{
			Parent: func(ctx context.Context) error {
				_, err := meters.GetByEAN(ctx, cfg.EAN)
				return err
			},
			Guard: func(ctx context.Context, rec *domain.MeterConfiguration) error {
				exists, err := meters.HasConfigurationStarting(ctx, rec.EAN, rec.StartDate)
				if err != nil {
					return err
				}
				if exists {
					return domain.ErrConfigurationExists
				}
				return nil
			},
			CloseOpen: func(ctx context.Context, at time.Time) error {
				_, err := meters.CloseOpenConfigurations(ctx, cfg.EAN, at)
				return err
			},
			Insert: meters.InsertConfiguration,
		}, &cfg, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, uc.logger).Info("meter configuration versioned",
		zap.String("ean", created.EAN),
		zap.Int64("configuration_id", created.ID),
		zap.Time("start_date", created.StartDate),
		zap.Bool("closed_previous", opts.CloseOpen),
	)
	return created, nil
}

// Timeline classifies the meter's configurations against reference, or
// against today in the engine time zone when reference is zero.
func (uc *UseCase) Timeline(ctx context.Context, ean string, reference time.Time) (domain.Timeline[domain.MeterConfiguration], error) {
	var out domain.Timeline[domain.MeterConfiguration]
	ctx, id, err := uc.auth.Require(ctx, usecase.ReadRole)
	if err != nil {
		return out, err
	}
	if reference.IsZero() {
		reference = domain.Today(uc.loc)
	}

	err = uc.uow.Run(ctx, id.TenantID, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Meters().GetByEAN(ctx, ean); err != nil {
			return err
		}
		configs, err := tx.Meters().ListConfigurations(ctx, ean)
		if err != nil {
			return err
		}
		out = domain.Classify(domain.NewestFirst(configs), reference)
		return nil
	})
	return out, err
}

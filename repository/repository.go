package repository

import (
	"context"
	"time"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

// Tx is the set of repositories bound to one transaction and one tenant.
// Every read and write of a unit of work goes through it.
type Tx interface {
	Meters() MeterRepository
	SharingOperations() SharingOperationRepository
	Consumption() ConsumptionRepository
}

// TxFunc is the body of a unit of work.
type TxFunc func(ctx context.Context, tx Tx) error

// UnitOfWork runs fn inside one transaction scoped to tenant. Nested calls
// made with the context passed to fn reuse the same transaction.
type UnitOfWork interface {
	Run(ctx context.Context, tenant domain.TenantID, fn TxFunc) error
}

type MeterRepository interface {
	GetByEAN(ctx context.Context, ean string) (*domain.Meter, error)
	// ListConfigurations returns the meter's configurations, newest start date first.
	ListConfigurations(ctx context.Context, ean string) ([]domain.MeterConfiguration, error)
	HasConfigurationStarting(ctx context.Context, ean string, start time.Time) (bool, error)
	InsertConfiguration(ctx context.Context, cfg *domain.MeterConfiguration) error
	// CloseOpenConfigurations sets end_date = at on every open configuration
	// that started before at.
	CloseOpenConfigurations(ctx context.Context, ean string, at time.Time) (int64, error)
}

type SharingOperationRepository interface {
	Get(ctx context.Context, id int64) (*domain.SharingOperation, error)
	// Lock takes a row lock on the operation for the rest of the transaction.
	Lock(ctx context.Context, id int64) error
	AllocationKeyExists(ctx context.Context, keyID int64) (bool, error)
	// ListKeys returns every association of the operation, newest start date first.
	ListKeys(ctx context.Context, operationID int64) ([]domain.SharingOperationKey, error)
	// OpenKey returns the latest association of keyID that has no end date.
	OpenKey(ctx context.Context, operationID, keyID int64) (*domain.SharingOperationKey, error)
	HasOpenPending(ctx context.Context, operationID int64) (bool, error)
	InsertKey(ctx context.Context, key *domain.SharingOperationKey) error
	// CloseApprovedKeys ends every open APPROVED association except exceptID.
	CloseApprovedKeys(ctx context.Context, operationID int64, at time.Time, exceptID int64) (int64, error)
	// TransitionKey moves an open association from one status to another,
	// optionally closing it. It fails with Conflict when the row is not in
	// status from or is already closed.
	TransitionKey(ctx context.Context, id int64, from, to domain.KeyStatus, end *time.Time) error
	// CloseKey ends one open association regardless of status.
	CloseKey(ctx context.Context, id int64, at time.Time) error
}

type ConsumptionRepository interface {
	OwnerExists(ctx context.Context, owner domain.ConsumptionOwner) (bool, error)
	FindByTimestamps(ctx context.Context, owner domain.ConsumptionOwner, timestamps []time.Time) ([]domain.ConsumptionSample, error)
	// SaveBatch writes rows in one round trip: rows with an ID are updated in
	// place, the others are inserted and receive their new ID.
	SaveBatch(ctx context.Context, owner domain.ConsumptionOwner, rows []domain.ConsumptionSample) error
	Range(ctx context.Context, owner domain.ConsumptionOwner, from, to time.Time) ([]domain.ConsumptionSample, error)
}

// Directory maps external identity-provider ids to internal keys. It is the
// only unscoped lookup: it runs before a tenant is known.
type Directory interface {
	TenantByExternalID(ctx context.Context, externalID string) (domain.TenantID, error)
	CallerByExternalID(ctx context.Context, externalID string) (domain.CallerID, error)
	IsMember(ctx context.Context, tenant domain.TenantID, caller domain.CallerID) (bool, error)
}

package usecase

import (
	"context"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/tenant"
)

// Authorizer binds the request identity and enforces a minimum role.
// *tenant.Resolver satisfies it.
type Authorizer interface {
	Require(ctx context.Context, min domain.Role) (context.Context, tenant.Identity, error)
}

// ConsumptionBuffer parks a batch that could not be written so it can be
// replayed later, keeping use cases storage-agnostic.
type ConsumptionBuffer interface {
	BufferConsumption(ctx context.Context, tenantID domain.TenantID, owner domain.ConsumptionOwner, samples []domain.ConsumptionSample) error
}

// Role requirements shared by every use case: reads need membership,
// lifecycle writes need a manager.
const (
	ReadRole  = domain.RoleMember
	WriteRole = domain.RoleManager
)

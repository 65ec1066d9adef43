package postgres

import "github.com/OptimCE/crm-backend-sub001/repository"

// store hands out repositories sharing one tenant scope.
type store struct {
	meters      *meterRepository
	operations  *sharingOperationRepository
	consumption *consumptionRepository
}

func newStore(scope Scope) *store {
	return &store{
		meters:      &meterRepository{scope: scope},
		operations:  &sharingOperationRepository{scope: scope},
		consumption: &consumptionRepository{scope: scope},
	}
}

func (s *store) Meters() repository.MeterRepository                       { return s.meters }
func (s *store) SharingOperations() repository.SharingOperationRepository { return s.operations }
func (s *store) Consumption() repository.ConsumptionRepository            { return s.consumption }

var _ repository.Tx = (*store)(nil)

package memory

import (
	"context"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/repository"
)

// Directory exposes the store's communities and users as an identity
// directory.
func (s *Store) Directory() repository.Directory {
	return directory{s}
}

type directory struct{ s *Store }

func (d directory) TenantByExternalID(_ context.Context, externalID string) (domain.TenantID, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	id, ok := d.s.data.communities[externalID]
	if !ok {
		return 0, domain.ErrTenantNotFound
	}
	return id, nil
}

func (d directory) CallerByExternalID(_ context.Context, externalID string) (domain.CallerID, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	id, ok := d.s.data.users[externalID]
	if !ok {
		return 0, domain.ErrNotAuthenticated
	}
	return id, nil
}

func (d directory) IsMember(_ context.Context, tenant domain.TenantID, caller domain.CallerID) (bool, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	_, ok := d.s.data.members[tenant][caller]
	return ok, nil
}

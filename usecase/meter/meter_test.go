package meter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	"github.com/OptimCE/crm-backend-sub001/internal/tenant"
	"github.com/OptimCE/crm-backend-sub001/repository/memory"
)

const ean = "541448820000000001"

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store   *memory.Store
	uc      *UseCase
	manager context.Context
	member  context.Context
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	tenantID := store.AddCommunity("c-1", "Community One")
	store.AddMember(tenantID, store.AddUser("manager"), domain.RoleManager)
	store.AddMember(tenantID, store.AddUser("member"), domain.RoleMember)
	store.AddMeter(tenantID, ean)

	resolver, err := tenant.NewResolver(store.Directory(), 16, time.Minute, metrics.New(), nil)
	require.NoError(t, err)

	return fixture{
		store:   store,
		uc:      New(store, resolver, time.UTC, nil),
		manager: tenant.WithIdentity(context.Background(), tenant.Resolve("manager", "c-1", []string{"MANAGER"})),
		member:  tenant.WithIdentity(context.Background(), tenant.Resolve("member", "c-1", []string{"MEMBER"})),
	}
}

func configuration(start time.Time, status domain.MeterStatus) domain.MeterConfiguration {
	return domain.MeterConfiguration{
		EAN:        ean,
		StartDate:  start,
		Status:     status,
		Rate:       domain.TariffSimple,
		ClientType: domain.ClientResidential,
	}
}

func TestPatchKeepsPreviousRowsOpen(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.PatchConfiguration(f.manager, configuration(day(2024, 1, 1), domain.MeterStatusActive))
	require.NoError(t, err)
	second, err := f.uc.PatchConfiguration(f.manager, configuration(day(2024, 6, 1), domain.MeterStatusInactive))
	require.NoError(t, err)

	tl, err := f.uc.Timeline(f.member, ean, day(2024, 7, 1))
	require.NoError(t, err)
	require.NotNil(t, tl.Active)
	assert.Equal(t, second.ID, tl.Active.ID)
	require.Len(t, tl.History, 1)
	assert.Nil(t, tl.History[0].EndDate)
	assert.Empty(t, tl.Future)
}

func TestReplaceClosesOpenRowsAtStartDate(t *testing.T) {
	f := newFixture(t)

	first, err := f.uc.ReplaceConfiguration(f.manager, configuration(day(2024, 1, 1), domain.MeterStatusActive))
	require.NoError(t, err)
	_, err = f.uc.ReplaceConfiguration(f.manager, configuration(day(2024, 3, 1), domain.MeterStatusWaitingManager))
	require.NoError(t, err)

	tl, err := f.uc.Timeline(f.member, ean, day(2024, 2, 1))
	require.NoError(t, err)
	require.NotNil(t, tl.Active)
	assert.Equal(t, first.ID, tl.Active.ID)
	require.NotNil(t, tl.Active.EndDate)
	assert.Equal(t, day(2024, 3, 1), *tl.Active.EndDate)
	require.Len(t, tl.Future, 1)
	assert.Equal(t, domain.MeterStatusWaitingManager, tl.Future[0].Status)
}

func TestReplaceNormalizesStartToDay(t *testing.T) {
	f := newFixture(t)

	created, err := f.uc.ReplaceConfiguration(f.manager, configuration(time.Date(2024, 5, 4, 17, 45, 0, 0, time.UTC), domain.MeterStatusActive))
	require.NoError(t, err)
	assert.Equal(t, day(2024, 5, 4), created.StartDate)
}

func TestSameStartDateConflicts(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.PatchConfiguration(f.manager, configuration(day(2024, 1, 1), domain.MeterStatusActive))
	require.NoError(t, err)
	_, err = f.uc.ReplaceConfiguration(f.manager, configuration(day(2024, 1, 1), domain.MeterStatusInactive))
	assert.ErrorIs(t, err, domain.ErrConfigurationExists)
}

func TestUnknownMeterIsNotFound(t *testing.T) {
	f := newFixture(t)

	cfg := configuration(day(2024, 1, 1), domain.MeterStatusActive)
	cfg.EAN = "000"
	_, err := f.uc.PatchConfiguration(f.manager, cfg)
	assert.Equal(t, domain.ErrCodeNotFound, domain.CodeOf(err))

	_, err = f.uc.Timeline(f.member, "000", time.Time{})
	assert.ErrorIs(t, err, domain.ErrMeterNotFound)
}

func TestInvalidConfigurationIsRejected(t *testing.T) {
	f := newFixture(t)

	cfg := configuration(day(2024, 1, 1), domain.MeterStatus(42))
	_, err := f.uc.PatchConfiguration(f.manager, cfg)
	assert.Equal(t, domain.ErrCodeInvalid, domain.CodeOf(err))
}

func TestWritesRequireManager(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.PatchConfiguration(f.member, configuration(day(2024, 1, 1), domain.MeterStatusActive))
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.uc.Timeline(context.Background(), ean, time.Time{})
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestTimelineOfMeterWithoutConfigurations(t *testing.T) {
	f := newFixture(t)

	tl, err := f.uc.Timeline(f.member, ean, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, tl.Active)
	assert.Empty(t, tl.History)
	assert.Empty(t, tl.Future)
}

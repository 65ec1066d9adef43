package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

func TestVersionInsertOnly(t *testing.T) {
	var closed, inserted bool
	v := Versioning[domain.MeterConfiguration]{
		Parent:    func(context.Context) error { return nil },
		CloseOpen: func(context.Context, time.Time) error { closed = true; return nil },
		Insert: func(_ context.Context, cfg *domain.MeterConfiguration) error {
			inserted = true
			cfg.ID = 7
			return nil
		},
	}

	got, err := Version(context.Background(), v, &domain.MeterConfiguration{StartDate: time.Now()}, VersionOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.True(t, inserted)
	assert.False(t, closed)
}

func TestVersionClosesAtStartDay(t *testing.T) {
	var closedAt time.Time
	var order []string
	v := Versioning[domain.SharingOperationKey]{
		Parent: func(context.Context) error { return nil },
		CloseOpen: func(_ context.Context, at time.Time) error {
			order = append(order, "close")
			closedAt = at
			return nil
		},
		Insert: func(context.Context, *domain.SharingOperationKey) error {
			order = append(order, "insert")
			return nil
		},
	}

	start := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	_, err := Version(context.Background(), v, &domain.SharingOperationKey{StartDate: start}, VersionOptions{CloseOpen: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"close", "insert"}, order)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), closedAt)
}

func TestVersionParentNotFound(t *testing.T) {
	v := Versioning[domain.MeterConfiguration]{
		Parent: func(context.Context) error { return domain.ErrMeterNotFound },
		Insert: func(context.Context, *domain.MeterConfiguration) error {
			t.Fatal("insert must not run")
			return nil
		},
	}

	_, err := Version(context.Background(), v, &domain.MeterConfiguration{}, VersionOptions{})
	assert.ErrorIs(t, err, domain.ErrParentNotFound)
	assert.ErrorIs(t, err, domain.ErrMeterNotFound)
	assert.Equal(t, domain.ErrCodeNotFound, domain.CodeOf(err))
}

func TestVersionGuardStopsInsert(t *testing.T) {
	v := Versioning[domain.MeterConfiguration]{
		Parent: func(context.Context) error { return nil },
		Guard:  func(context.Context, *domain.MeterConfiguration) error { return domain.ErrConfigurationExists },
		Insert: func(context.Context, *domain.MeterConfiguration) error {
			t.Fatal("insert must not run")
			return nil
		},
	}

	_, err := Version(context.Background(), v, &domain.MeterConfiguration{}, VersionOptions{})
	assert.ErrorIs(t, err, domain.ErrConfigurationExists)
}

func TestVersionRejectsMissingCloser(t *testing.T) {
	v := Versioning[domain.MeterConfiguration]{
		Parent: func(context.Context) error { return nil },
		Insert: func(context.Context, *domain.MeterConfiguration) error { return nil },
	}

	_, err := Version(context.Background(), v, &domain.MeterConfiguration{}, VersionOptions{CloseOpen: true})
	assert.Equal(t, domain.ErrCodeInvalid, domain.CodeOf(err))
}

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	"github.com/OptimCE/crm-backend-sub001/repository"
)

var repeatableRead = pgx.TxOptions{IsoLevel: pgx.RepeatableRead}

func newMockUnitOfWork(t *testing.T) (pgxmock.PgxPoolIface, *UnitOfWork) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewUnitOfWork(mock, "", zap.NewNop(), metrics.New())
}

func TestUnitOfWorkCommitsOnSuccess(t *testing.T) {
	mock, uow := newMockUnitOfWork(t)

	mock.ExpectBeginTx(repeatableRead)
	mock.ExpectExec("UPDATE meter_configurations").
		WithArgs(int64(7), "EAN-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := uow.Run(context.Background(), 7, func(ctx context.Context, tx repository.Tx) error {
		n, err := tx.Meters().CloseOpenConfigurations(ctx, "EAN-1", domain.DayOf(time.Now()))
		assert.Equal(t, int64(1), n)
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkRollsBackOnError(t *testing.T) {
	mock, uow := newMockUnitOfWork(t)

	mock.ExpectBeginTx(repeatableRead)
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := uow.Run(context.Background(), 7, func(context.Context, repository.Tx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkRollsBackOnPanic(t *testing.T) {
	mock, uow := newMockUnitOfWork(t)

	mock.ExpectBeginTx(repeatableRead)
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = uow.Run(context.Background(), 7, func(context.Context, repository.Tx) error {
			panic("kaboom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkRollsBackAfterCancellation(t *testing.T) {
	mock, uow := newMockUnitOfWork(t)

	mock.ExpectBeginTx(repeatableRead)
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	err := uow.Run(ctx, 7, func(ctx context.Context, _ repository.Tx) error {
		cancel()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkNestedRunJoinsOuterTransaction(t *testing.T) {
	mock, uow := newMockUnitOfWork(t)

	mock.ExpectBeginTx(repeatableRead)
	mock.ExpectCommit()

	var outer, inner repository.Tx
	err := uow.Run(context.Background(), 7, func(ctx context.Context, tx repository.Tx) error {
		outer = tx
		return uow.Run(ctx, 7, func(_ context.Context, tx repository.Tx) error {
			inner = tx
			return nil
		})
	})

	require.NoError(t, err)
	assert.Same(t, outer, inner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkNestedRunRejectsOtherTenant(t *testing.T) {
	mock, uow := newMockUnitOfWork(t)

	mock.ExpectBeginTx(repeatableRead)
	mock.ExpectRollback()

	err := uow.Run(context.Background(), 7, func(ctx context.Context, _ repository.Tx) error {
		return uow.Run(ctx, 8, func(context.Context, repository.Tx) error { return nil })
	})

	assert.Equal(t, domain.ErrCodeForbidden, domain.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkRequiresTenant(t *testing.T) {
	mock, uow := newMockUnitOfWork(t)

	err := uow.Run(context.Background(), 0, func(context.Context, repository.Tx) error { return nil })

	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkClassifiesSerializationFailure(t *testing.T) {
	mock, uow := newMockUnitOfWork(t)

	mock.ExpectBeginTx(repeatableRead)
	mock.ExpectExec("UPDATE sharing_operation_keys").
		WillReturnError(&pgconn.PgError{Code: pgSerializationFailure})
	mock.ExpectRollback()

	err := uow.Run(context.Background(), 7, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.SharingOperations().CloseApprovedKeys(ctx, 3, domain.DayOf(time.Now()), 9)
		return err
	})

	assert.True(t, domain.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkBeginFailureIsTransient(t *testing.T) {
	mock, uow := newMockUnitOfWork(t)

	mock.ExpectBeginTx(repeatableRead).WillReturnError(&pgconn.PgError{Code: "08006"})

	err := uow.Run(context.Background(), 7, func(context.Context, repository.Tx) error {
		t.Fatal("body must not run")
		return nil
	})

	assert.Equal(t, domain.ErrCodeTransient, domain.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

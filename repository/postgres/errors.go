package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgAdminShutdown        = "57P01"
)

// translate maps storage failures onto domain error kinds. Errors that
// already carry a domain code pass through untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return domain.WrapError(domain.ErrCodeConflict, "uniqueness constraint violated", err)
		case pgErr.Code == pgForeignKeyViolation:
			return domain.WrapError(domain.ErrCodeNotFound, "referenced row not found", err)
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected,
			pgErr.Code == pgLockNotAvailable, pgErr.Code == pgAdminShutdown:
			return domain.WrapError(domain.ErrCodeTransient, "transaction aborted, retry", err)
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return domain.WrapError(domain.ErrCodeTransient, "database connection failure", err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return domain.WrapError(domain.ErrCodeTransient, "storage unavailable", err)
	}
	return err
}

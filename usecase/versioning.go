package usecase

import (
	"context"
	"time"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

// Versioning describes how to add a time-bounded record under one parent.
// Every function runs on the caller's transaction; Version never opens one.
type Versioning[T domain.Interval] struct {
	// Parent fails with a NotFound-kind error when the parent is absent
	// from the tenant.
	Parent func(ctx context.Context) error
	// Guard rejects records that would break a write-time invariant.
	Guard func(ctx context.Context, record *T) error
	// CloseOpen ends the parent's open records at the given date.
	CloseOpen func(ctx context.Context, at time.Time) error
	Insert    func(ctx context.Context, record *T) error
}

// VersionOptions selects between insert-only and close-then-insert.
type VersionOptions struct {
	CloseOpen bool
}

// Version inserts record for its parent, first closing the parent's open
// records at the record's start date when opts.CloseOpen is set.
func Version[T domain.Interval](ctx context.Context, v Versioning[T], record *T, opts VersionOptions) (*T, error) {
	if record == nil || v.Parent == nil || v.Insert == nil {
		return nil, domain.ErrInvalidPayload
	}
	if err := v.Parent(ctx); err != nil {
		if domain.CodeOf(err) == domain.ErrCodeNotFound {
			return nil, domain.WrapError(domain.ErrCodeNotFound, domain.ErrParentNotFound.Message, err)
		}
		return nil, err
	}
	if v.Guard != nil {
		if err := v.Guard(ctx, record); err != nil {
			return nil, err
		}
	}
	if opts.CloseOpen {
		if v.CloseOpen == nil {
			return nil, domain.Invalidf("record kind cannot close open versions")
		}
		if err := v.CloseOpen(ctx, domain.DayOf((*record).StartsOn())); err != nil {
			return nil, err
		}
	}
	if err := v.Insert(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

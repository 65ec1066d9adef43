package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/repository"
)

// cachedDirectory keeps positive directory answers in Redis so every engine
// process shares them. Redis failures degrade to the wrapped directory.
type cachedDirectory struct {
	next   repository.Directory
	client redislib.Cmdable
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedDirectory wraps next with a Redis read-through cache.
func NewCachedDirectory(next repository.Directory, client redislib.Cmdable, ttl time.Duration, logger *zap.Logger) repository.Directory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedDirectory{
		next:   next,
		client: client,
		prefix: "identity:",
		ttl:    ttl,
		logger: logger,
	}
}

func (d *cachedDirectory) TenantByExternalID(ctx context.Context, externalID string) (domain.TenantID, error) {
	key := d.key("community", externalID)
	if id, ok := d.get(ctx, key); ok {
		return domain.TenantID(id), nil
	}
	tenant, err := d.next.TenantByExternalID(ctx, externalID)
	if err != nil {
		return 0, err
	}
	d.set(ctx, key, int64(tenant))
	return tenant, nil
}

func (d *cachedDirectory) CallerByExternalID(ctx context.Context, externalID string) (domain.CallerID, error) {
	key := d.key("user", externalID)
	if id, ok := d.get(ctx, key); ok {
		return domain.CallerID(id), nil
	}
	caller, err := d.next.CallerByExternalID(ctx, externalID)
	if err != nil {
		return 0, err
	}
	d.set(ctx, key, int64(caller))
	return caller, nil
}

func (d *cachedDirectory) IsMember(ctx context.Context, tenant domain.TenantID, caller domain.CallerID) (bool, error) {
	key := d.key("member", fmt.Sprintf("%d:%d", tenant, caller))
	if _, ok := d.get(ctx, key); ok {
		return true, nil
	}
	member, err := d.next.IsMember(ctx, tenant, caller)
	if err != nil || !member {
		return member, err
	}
	d.set(ctx, key, 1)
	return true, nil
}

func (d *cachedDirectory) get(ctx context.Context, key string) (int64, bool) {
	result, err := d.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redislib.Nil) {
			d.logger.Warn("identity cache read failed", zap.String("key", key), zap.Error(err))
		}
		return 0, false
	}
	id, err := strconv.ParseInt(result, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (d *cachedDirectory) set(ctx context.Context, key string, value int64) {
	if err := d.client.Set(ctx, key, strconv.FormatInt(value, 10), d.ttl).Err(); err != nil {
		d.logger.Warn("identity cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (d *cachedDirectory) key(kind, id string) string {
	return d.prefix + kind + ":" + id
}

package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/OptimCE/crm-backend-sub001/internal/config"
)

func TestIsolationLevel(t *testing.T) {
	assert.Equal(t, pgx.RepeatableRead, IsolationLevel(""))
	assert.Equal(t, pgx.RepeatableRead, IsolationLevel("snapshot"))
	assert.Equal(t, pgx.ReadCommitted, IsolationLevel(" Read Committed "))
	assert.Equal(t, pgx.Serializable, IsolationLevel("SERIALIZABLE"))
	assert.Equal(t, "repeatable read", isolationParam(pgx.RepeatableRead))
}

func TestNewPoolRejectsMissingURL(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{}, config.EngineConfig{}, nil)
	assert.Error(t, err)
}

func TestPingWithoutPool(t *testing.T) {
	assert.Error(t, Ping(context.Background(), nil, 0))
}

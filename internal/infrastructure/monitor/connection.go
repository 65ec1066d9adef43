package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
)

// Check pings one dependency and returns nil when it is reachable.
type Check func(ctx context.Context) error

// BufferSizer reports how many batches wait in the ingestion buffer.
type BufferSizer interface {
	Size() (int, error)
}

// Monitor polls the engine's dependencies in the background and serves the
// last snapshot to the health endpoint.
type Monitor struct {
	postgres Check
	redis    Check
	buffer   BufferSizer
	metrics  *metrics.Metrics

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// New builds a monitor. Nil checks report the dependency as not configured.
func New(postgres, redis Check, buf BufferSizer, m *metrics.Metrics, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		postgres: postgres,
		redis:    redis,
		buffer:   buf,
		metrics:  m,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether the primary store answered the last check.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.PostgreSQL
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh()
	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh checks every dependency once.
func (m *Monitor) Refresh() {
	bufferOK, bufferSize := m.checkBuffer()
	status := Status{
		PostgreSQL: m.check("postgres", m.postgres, 3*time.Second),
		Redis:      m.check("redis", m.redis, 2*time.Second),
		Buffer:     bufferOK,
		BufferSize: bufferSize,
		LastCheck:  time.Now(),
	}
	m.metrics.SetBuffered(bufferSize)

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if previous.PostgreSQL != status.PostgreSQL && !previous.LastCheck.IsZero() {
		m.logger.Info("postgres availability changed", zap.Bool("online", status.PostgreSQL))
	}
}

func (m *Monitor) check(name string, fn Check, timeout time.Duration) bool {
	if fn == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		m.logger.Debug("dependency check failed", zap.String("dependency", name), zap.Error(err))
		return false
	}
	return true
}

func (m *Monitor) checkBuffer() (bool, int) {
	if m.buffer == nil {
		return false, 0
	}
	size, err := m.buffer.Size()
	if err != nil {
		m.logger.Warn("buffer size check failed", zap.Error(err))
		return false, size
	}
	return true, size
}

package handler

import (
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/api/transport"
	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/infrastructure/monitor"
	"github.com/OptimCE/crm-backend-sub001/pkg/httpcontext"
	"github.com/OptimCE/crm-backend-sub001/pkg/logger"
)

// StatusSource exposes the last dependency snapshot. *monitor.Monitor
// satisfies it.
type StatusSource interface {
	GetStatus() monitor.Status
}

var errPrimaryStorage = domain.WrapError(domain.ErrCodeTransient, "primary storage unreachable", nil)

type HealthHandler struct {
	baseHandler
	monitor StatusSource
}

func NewHealthHandler(mon StatusSource, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
	}
}

// Check answers 200 while Postgres is reachable. Redis only backs the
// identity cache, so losing it is reported but not fatal.
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	status := h.monitor.GetStatus()
	payload := transport.Health{
		Timestamp: time.Now().UTC(),
		LastCheck: status.LastCheck,
		Services: transport.HealthServices{
			PostgreSQL: status.PostgreSQL,
			Redis:      status.Redis,
			Buffer: transport.BufferHealth{
				Online:   status.Buffer,
				Size:     status.BufferSize,
				Degraded: status.Degraded(),
			},
		},
	}

	if status.PostgreSQL {
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	logger.FromContext(reqCtx, h.logger).Warn("health check failing", zap.Bool("buffering", status.Degraded()))
	h.respondError(ctx, errPrimaryStorage, payload)
}

package router

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/OptimCE/crm-backend-sub001/api/handler"
	"github.com/OptimCE/crm-backend-sub001/internal/infrastructure/monitor"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	"github.com/OptimCE/crm-backend-sub001/pkg/httpcontext"
)

type upStatus struct{}

func (upStatus) GetStatus() monitor.Status { return monitor.Status{PostgreSQL: true} }

func serve(h fasthttp.RequestHandler, method, path string) int {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	h(&ctx)
	return ctx.Response.StatusCode()
}

func TestRoutes(t *testing.T) {
	health := apiHandler.NewHealthHandler(upStatus{}, httpcontext.NewAdapter(time.Second), nil)

	withMetrics := New(Handlers{Health: health, Metrics: apiHandler.NewMetricsHandler(metrics.New().Registry())}).Handler
	assert.Equal(t, http.StatusOK, serve(withMetrics, http.MethodGet, "/health"))
	assert.Equal(t, http.StatusOK, serve(withMetrics, http.MethodGet, "/metrics"))
	assert.Equal(t, http.StatusNotFound, serve(withMetrics, http.MethodGet, "/api/v1/tasks"))

	withoutMetrics := New(Handlers{Health: health}).Handler
	assert.Equal(t, http.StatusNotFound, serve(withoutMetrics, http.MethodGet, "/metrics"))
}

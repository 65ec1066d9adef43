package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/OptimCE/crm-backend-sub001/api/handler"
)

// Handlers are the ops endpoints. Metrics may be nil when disabled.
type Handlers struct {
	Health  *apiHandler.HealthHandler
	Metrics fasthttp.RequestHandler
}

func New(handlers Handlers) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	r.HEAD("/health", handlers.Health.Check)

	if handlers.Metrics != nil {
		r.GET("/metrics", handlers.Metrics)
	}

	return r
}

package httpcontext

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	appLogger "github.com/OptimCE/crm-backend-sub001/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// Adapter turns a fasthttp request into a context.Context bounded by the
// request timeout and by the process lifetime, carrying the request id and
// log fields.
type Adapter struct {
	timeout time.Duration
	base    context.Context
}

func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{timeout: timeout, base: context.Background()}
}

// WithBase returns an adapter whose request contexts are cancelled when
// base is, so in-flight requests stop on shutdown.
func (a *Adapter) WithBase(base context.Context) *Adapter {
	if base == nil {
		base = context.Background()
	}
	return &Adapter{timeout: a.timeout, base: base}
}

// Attach derives the request context and echoes the request id header.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(a.base, a.timeout)

	reqID := requestID(ctx)
	ctx.Response.Header.Set(RequestIDHeader, reqID)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)

	fields := []zap.Field{
		zap.String("method", string(ctx.Method())),
		zap.String("path", string(ctx.Path())),
	}
	if remote := ctx.RemoteAddr(); remote != nil {
		fields = append(fields, zap.String("remote_addr", remote.String()))
	}
	return appLogger.ContextWithFields(stdCtx, fields...), cancel
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if header := strings.TrimSpace(string(ctx.Request.Header.Peek(RequestIDHeader))); header != "" {
		return header
	}
	return uuid.NewString()
}

package httpcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	appLogger "github.com/OptimCE/crm-backend-sub001/pkg/logger"
)

func TestAttachKeepsIncomingRequestID(t *testing.T) {
	var req fasthttp.RequestCtx
	req.Request.Header.Set(RequestIDHeader, "req-7")

	ctx, cancel := NewAdapter(time.Second).Attach(&req)
	defer cancel()

	assert.Equal(t, "req-7", appLogger.RequestID(ctx))
	assert.Equal(t, "req-7", string(req.Response.Header.Peek(RequestIDHeader)))
	_, hasDeadline := ctx.Deadline()
	assert.True(t, hasDeadline)
}

func TestAttachGeneratesRequestID(t *testing.T) {
	var req fasthttp.RequestCtx
	ctx, cancel := NewAdapter(0).Attach(&req)
	defer cancel()

	assert.NotEmpty(t, appLogger.RequestID(ctx))
	assert.Equal(t, appLogger.RequestID(ctx), string(req.Response.Header.Peek(RequestIDHeader)))
}

func TestAttachFollowsBaseCancellation(t *testing.T) {
	base, stop := context.WithCancel(context.Background())
	var req fasthttp.RequestCtx
	ctx, cancel := NewAdapter(time.Minute).WithBase(base).Attach(&req)
	defer cancel()

	stop()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

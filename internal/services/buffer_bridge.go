package services

import (
	"context"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/infrastructure/buffer"
	"github.com/OptimCE/crm-backend-sub001/usecase"
)

// BufferBridge adapts the BoltDB buffer to the use-case port so the
// upserter never sees buffer items.
type BufferBridge struct {
	processor *BufferProcessor
	source    string
}

func NewBufferBridge(processor *BufferProcessor, source string) *BufferBridge {
	if source == "" {
		source = buffer.SourceMQTT
	}
	return &BufferBridge{processor: processor, source: source}
}

func (b *BufferBridge) BufferConsumption(ctx context.Context, tenantID domain.TenantID, owner domain.ConsumptionOwner, samples []domain.ConsumptionSample) error {
	if b.processor == nil {
		return domain.ErrInvalidPayload
	}
	item := buffer.Item{
		TenantID: tenantID,
		Owner:    owner,
		Samples:  append([]domain.ConsumptionSample(nil), samples...),
		Source:   b.source,
		Priority: 3,
	}
	return b.processor.BufferBatch(ctx, item)
}

var _ usecase.ConsumptionBuffer = (*BufferBridge)(nil)

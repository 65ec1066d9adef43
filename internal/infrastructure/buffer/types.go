package buffer

import (
	"time"

	"github.com/google/uuid"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

const (
	SourceMQTT = "mqtt"
	SourceCLI  = "cli"

	defaultPriority = 3
	maxPriority     = 5
)

// Item is a consumption batch parked while primary storage is unavailable.
// It carries its tenant explicitly since no request context survives the
// round trip through the buffer.
type Item struct {
	ID        string                     `json:"id"`
	TenantID  domain.TenantID            `json:"tenant_id"`
	Owner     domain.ConsumptionOwner    `json:"owner"`
	Samples   []domain.ConsumptionSample `json:"samples"`
	Source    string                     `json:"source"`
	Priority  int                        `json:"priority"`
	Retries   int                        `json:"retries"`
	LastError string                     `json:"last_error,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`

	bucketKey []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority <= 0 || i.Priority > maxPriority {
		i.Priority = defaultPriority
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}

func (i Item) validate() error {
	if !i.TenantID.Valid() {
		return domain.ErrNotAuthorized
	}
	if err := i.Owner.Validate(); err != nil {
		return err
	}
	if len(i.Samples) == 0 {
		return domain.Invalidf("buffered batch has no samples")
	}
	return nil
}

package domain

import (
	"fmt"
	"time"
)

// OwnerKind tells which aggregate a consumption series belongs to.
type OwnerKind string

const (
	OwnerMeter            OwnerKind = "meter"
	OwnerSharingOperation OwnerKind = "sharing_operation"
)

// ConsumptionOwner identifies one series: a meter by EAN or a sharing
// operation by id.
type ConsumptionOwner struct {
	Kind        OwnerKind `json:"kind"`
	EAN         string    `json:"ean,omitempty"`
	OperationID int64     `json:"operation_id,omitempty"`
}

func MeterOwner(ean string) ConsumptionOwner {
	return ConsumptionOwner{Kind: OwnerMeter, EAN: ean}
}

func OperationOwner(id int64) ConsumptionOwner {
	return ConsumptionOwner{Kind: OwnerSharingOperation, OperationID: id}
}

func (o ConsumptionOwner) Validate() error {
	switch o.Kind {
	case OwnerMeter:
		if o.EAN == "" {
			return Invalidf("meter owner requires an ean")
		}
	case OwnerSharingOperation:
		if o.OperationID <= 0 {
			return Invalidf("sharing operation owner requires an id")
		}
	default:
		return Invalidf("unknown owner kind %q", o.Kind)
	}
	return nil
}

func (o ConsumptionOwner) String() string {
	if o.Kind == OwnerMeter {
		return fmt.Sprintf("%s:%s", o.Kind, o.EAN)
	}
	return fmt.Sprintf("%s:%d", o.Kind, o.OperationID)
}

// ConsumptionSample is one timestamped measurement row. A nil measurement
// means "not reported"; merging keeps the stored value in that case.
type ConsumptionSample struct {
	ID        int64     `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Gross     *Decimal  `json:"gross,omitempty"`
	Net       *Decimal  `json:"net,omitempty"`
	Shared    *Decimal  `json:"shared,omitempty"`
	Injection *Decimal  `json:"injection,omitempty"`
}

// MergeOnto returns existing overwritten by every measurement s reports.
// The identity of existing is preserved.
func (s ConsumptionSample) MergeOnto(existing ConsumptionSample) ConsumptionSample {
	merged := existing
	if s.Gross != nil {
		merged.Gross = s.Gross
	}
	if s.Net != nil {
		merged.Net = s.Net
	}
	if s.Shared != nil {
		merged.Shared = s.Shared
	}
	if s.Injection != nil {
		merged.Injection = s.Injection
	}
	return merged
}

// TimestampPrecision is the resolution of a timestamptz column. Samples
// are truncated to it before lookup so a re-ingested sample finds its row.
const TimestampPrecision = time.Microsecond

// TimeKey is the uniqueness key of a sample inside one owner's series.
func (s ConsumptionSample) TimeKey() int64 {
	return s.Timestamp.UTC().Truncate(TimestampPrecision).UnixMicro()
}

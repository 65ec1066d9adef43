package domain

import "time"

// MeterStatus is the operating state recorded on a meter configuration.
type MeterStatus int

const (
	MeterStatusActive MeterStatus = iota + 1
	MeterStatusInactive
	MeterStatusWaitingGridOperator
	MeterStatusWaitingManager
)

func (s MeterStatus) Valid() bool {
	return s >= MeterStatusActive && s <= MeterStatusWaitingManager
}

func (s MeterStatus) String() string {
	switch s {
	case MeterStatusActive:
		return "ACTIVE"
	case MeterStatusInactive:
		return "INACTIVE"
	case MeterStatusWaitingGridOperator:
		return "WAITING_GRID_OPERATOR"
	case MeterStatusWaitingManager:
		return "WAITING_MANAGER"
	default:
		return "UNKNOWN"
	}
}

// TariffRate is the metering regime of a configuration.
type TariffRate int

const (
	TariffSimple TariffRate = iota + 1
	TariffDual
	TariffNightOnly
)

func (r TariffRate) Valid() bool {
	return r >= TariffSimple && r <= TariffNightOnly
}

// ClientType classifies the holder of a meter.
type ClientType int

const (
	ClientResidential ClientType = iota + 1
	ClientProfessional
	ClientIndustrial
)

func (c ClientType) Valid() bool {
	return c >= ClientResidential && c <= ClientIndustrial
}

// Meter is a physical delivery point identified by its EAN code.
type Meter struct {
	ID        int64     `json:"id"`
	TenantID  TenantID  `json:"-"`
	EAN       string    `json:"ean"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MeterConfiguration is one time-bounded operating configuration of a meter.
// Rows are never edited after creation except to set EndDate.
type MeterConfiguration struct {
	ID                 int64       `json:"id"`
	TenantID           TenantID    `json:"-"`
	EAN                string      `json:"ean"`
	StartDate          time.Time   `json:"start_date"`
	EndDate            *time.Time  `json:"end_date,omitempty"`
	Status             MeterStatus `json:"status"`
	Rate               TariffRate  `json:"rate"`
	ClientType         ClientType  `json:"client_type"`
	HolderID           *int64      `json:"holder_id,omitempty"`
	SharingOperationID *int64      `json:"sharing_operation_id,omitempty"`
	Description        string      `json:"description,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

func (c MeterConfiguration) StartsOn() time.Time { return c.StartDate }
func (c MeterConfiguration) EndsOn() *time.Time  { return c.EndDate }

// Validate checks the fields a caller must supply before versioning.
func (c *MeterConfiguration) Validate() error {
	if c == nil {
		return ErrInvalidPayload
	}
	if c.EAN == "" {
		return Invalidf("ean is required")
	}
	if c.StartDate.IsZero() {
		return Invalidf("start date is required")
	}
	if c.EndDate != nil && DayOf(*c.EndDate).Before(DayOf(c.StartDate)) {
		return Invalidf("end date %s precedes start date %s", c.EndDate.Format(time.DateOnly), c.StartDate.Format(time.DateOnly))
	}
	if !c.Status.Valid() {
		return Invalidf("unknown meter status %d", c.Status)
	}
	if !c.Rate.Valid() {
		return Invalidf("unknown tariff rate %d", c.Rate)
	}
	if !c.ClientType.Valid() {
		return Invalidf("unknown client type %d", c.ClientType)
	}
	c.StartDate = DayOf(c.StartDate)
	c.EndDate = dayPtr(c.EndDate)
	return nil
}

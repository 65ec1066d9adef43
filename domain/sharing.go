package domain

import "time"

// OperationType distinguishes the legal frame of a sharing operation.
type OperationType int

const (
	OperationLocal OperationType = iota + 1
	OperationRenewableCommunity
	OperationCitizenCommunity
)

func (t OperationType) String() string {
	switch t {
	case OperationLocal:
		return "LOCAL"
	case OperationRenewableCommunity:
		return "CER"
	case OperationCitizenCommunity:
		return "CEC"
	default:
		return "UNKNOWN"
	}
}

// SharingOperation groups meters under one allocation key at a time.
type SharingOperation struct {
	ID        int64         `json:"id"`
	TenantID  TenantID      `json:"-"`
	Name      string        `json:"name"`
	Type      OperationType `json:"type"`
	CreatedAt time.Time     `json:"created_at"`
}

// AllocationKey is a named energy-distribution formula.
type AllocationKey struct {
	ID          int64    `json:"id"`
	TenantID    TenantID `json:"-"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
}

// KeyStatus is the approval state of a key association.
type KeyStatus int

const (
	KeyPending KeyStatus = iota + 1
	KeyApproved
	KeyRejected
)

func (s KeyStatus) String() string {
	switch s {
	case KeyPending:
		return "PENDING"
	case KeyApproved:
		return "APPROVED"
	case KeyRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// SharingOperationKey links an allocation key to a sharing operation for
// [StartDate, EndDate].
type SharingOperationKey struct {
	ID                 int64      `json:"id"`
	TenantID           TenantID   `json:"-"`
	SharingOperationID int64      `json:"sharing_operation_id"`
	KeyID              int64      `json:"key_id"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	Status             KeyStatus  `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
}

func (k SharingOperationKey) StartsOn() time.Time { return k.StartDate }
func (k SharingOperationKey) EndsOn() *time.Time  { return k.EndDate }

// Open reports whether the association has not been closed yet.
func (k SharingOperationKey) Open() bool { return k.EndDate == nil }

package domain

import "time"

type RequestID string

type CallKind string

const (
	KindVoice CallKind = "voice"
	KindVideo CallKind = "video"
)

type DeliveryState string

const (
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryQueued    DeliveryState = "queued"
)

// Decision is the explicit per-request answer state. Keeping it on the
// request (instead of a shared flag) lets concurrent callers wait on their
// own request without interfering with each other.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// CallRequest is a client's ask to reach a specific staff member before any
// session exists. Video requests carry the raw staff query they were resolved
// from; voice requests carry a free-form purpose.
type CallRequest struct {
	ID         RequestID     `json:"id"`
	Kind       CallKind      `json:"kind"`
	ClientName string        `json:"client_name"`
	Purpose    string        `json:"purpose,omitempty"`
	StaffQuery string        `json:"staff_query,omitempty"`
	StaffID    StaffID       `json:"staff_id"`
	CreatedAt  time.Time     `json:"created_at"`
	Delivery   DeliveryState `json:"delivery"`
	Decision   Decision      `json:"decision"`
}

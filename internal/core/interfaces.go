package core

// Frame is a raw outbound payload (already-encoded JSON event).
type Frame []byte

// ConnID identifies one live transport link (browser tab <-> server).
type ConnID string

type Role string

const (
	RoleNone   Role = "none"
	RoleClient Role = "client"
	RoleStaff  Role = "staff"
)

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

package core

import "time"

type SessionID string

type SessionState string

const (
	SessionConnecting SessionState = "connecting"
	SessionActive     SessionState = "active"
	SessionEnded      SessionState = "ended"
)

// CallSession is the authoritative record of one accepted call: exactly one
// client connection and one staff connection, never a third.
type CallSession struct {
	ID         SessionID    `json:"id"`
	ClientConn ConnID       `json:"client_conn"`
	StaffConn  ConnID       `json:"staff_conn"`
	State      SessionState `json:"state"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    time.Time    `json:"ended_at,omitempty"`
}

// HasParticipant reports whether id is one of the session's two legs.
func (s *CallSession) HasParticipant(id ConnID) bool {
	return id == s.ClientConn || id == s.StaffConn
}

// Peer returns the opposite leg of id, or false if id is not a participant.
func (s *CallSession) Peer(id ConnID) (ConnID, bool) {
	switch id {
	case s.ClientConn:
		return s.StaffConn, true
	case s.StaffConn:
		return s.ClientConn, true
	}
	return "", false
}

// Duration is zero until the session has ended.
func (s *CallSession) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

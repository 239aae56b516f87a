package app

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/staffdesk/Consult/internal/core"
	"github.com/staffdesk/Consult/internal/domain"
)

// Outbound event types pushed by the coordinator and relay. The adapter owns
// the inbound vocabulary; these are the server-initiated messages.
const (
	EventIncomingCall      = "incoming-call"
	EventIncomingVideoCall = "incoming-video-call"
	EventRequestQueued     = "request-queued"
	EventRequestExpired    = "request-expired"
	EventCallAccepted      = "call-accepted"
	EventCallRejected      = "call-rejected"
	EventCallEnded         = "call-ended"
)

type incomingCallEvent struct {
	Type    string             `json:"type"`
	Request domain.CallRequest `json:"request"`
}

type requestQueuedEvent struct {
	Type      string           `json:"type"`
	RequestID domain.RequestID `json:"request_id"`
	StaffID   domain.StaffID   `json:"staff_id"`
}

type requestExpiredEvent struct {
	Type      string           `json:"type"`
	RequestID domain.RequestID `json:"request_id"`
}

type callAcceptedEvent struct {
	Type       string             `json:"type"`
	SessionID  core.SessionID     `json:"session_id"`
	Role       core.Role          `json:"role"`
	PeerName   string             `json:"peer_name,omitempty"`
	ICEServers []webrtc.ICEServer `json:"ice_servers,omitempty"`
}

type callRejectedEvent struct {
	Type      string           `json:"type"`
	RequestID domain.RequestID `json:"request_id"`
	Reason    string           `json:"reason,omitempty"`
}

type callEndedEvent struct {
	Type       string         `json:"type"`
	SessionID  core.SessionID `json:"session_id"`
	Reason     string         `json:"reason,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

type relayEnvelope struct {
	Type      string          `json:"type"`
	SessionID core.SessionID  `json:"session_id"`
	From      core.ConnID     `json:"from"`
	Payload   json.RawMessage `json:"payload"`
}

// sendEvent is fire-and-forget relative to state mutation: callers mutate
// their tables first, then push. A full send buffer drops the frame.
func sendEvent(sig core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Msg("marshal event")
		return
	}
	if err := sig.TrySend(core.Frame(b)); err != nil {
		log.Warn().Err(err).Str("module", "app.events").Msg("event dropped")
	}
}

package app

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/staffdesk/Consult/internal/core"
	"github.com/staffdesk/Consult/internal/metrics"
)

// Signaling message types the relay will carry.
const (
	MsgOffer        = "offer"
	MsgAnswer       = "answer"
	MsgICECandidate = "ice-candidate"
)

// SignalingRelay forwards WebRTC handshake messages strictly between the two
// participants of a session and performs no interpretation of the payload.
// The participant check lives here and nowhere else, so no per-message-type
// handler can forget it. Its only write is the connecting -> active state
// transition once an answer has been exchanged.
type SignalingRelay struct {
	sessions *CallSessionTable
	registry *Registry
	metrics  *metrics.Metrics
}

func NewSignalingRelay(sessions *CallSessionTable, registry *Registry, m *metrics.Metrics) *SignalingRelay {
	return &SignalingRelay{sessions: sessions, registry: registry, metrics: m}
}

// Relay validates and forwards one signaling message.
// Unknown session -> ErrNotFound; sender not a participant -> ErrUnauthorized;
// in both cases nothing is forwarded.
func (r *SignalingRelay) Relay(sessionID core.SessionID, sender core.ConnID, msgType string, payload json.RawMessage) error {
	switch msgType {
	case MsgOffer, MsgAnswer, MsgICECandidate:
	default:
		r.reject("bad_type")
		return fmt.Errorf("relay: unsupported message type %q", msgType)
	}

	sess, err := r.sessions.Get(sessionID)
	if err != nil {
		r.reject("invalid_session")
		return fmt.Errorf("relay session %s: %w", sessionID, core.ErrNotFound)
	}

	peer, ok := sess.Peer(sender)
	if !ok {
		r.reject("unauthorized")
		log.Warn().Str("module", "app.relay").
			Str("session", string(sessionID)).
			Str("sender", string(sender)).
			Msg("signaling from non-participant rejected")
		return fmt.Errorf("relay session %s: %w", sessionID, core.ErrUnauthorized)
	}

	sig, ok := r.registry.Signal(peer)
	if !ok {
		// Table-registry consistency says this only happens inside a
		// teardown already in flight; the sender hears about it via
		// call-ended, not here.
		r.reject("peer_gone")
		return fmt.Errorf("relay peer %s: %w", peer, core.ErrNotFound)
	}

	sendEvent(sig, relayEnvelope{
		Type:      msgType,
		SessionID: sessionID,
		From:      sender,
		Payload:   payload,
	})
	if msgType == MsgAnswer && sess.State == core.SessionConnecting {
		_ = r.sessions.SetState(sessionID, core.SessionActive)
	}
	if r.metrics != nil {
		r.metrics.RelayedMessages.WithLabelValues(msgType).Inc()
	}
	return nil
}

func (r *SignalingRelay) reject(reason string) {
	if r.metrics != nil {
		r.metrics.RelayRejections.WithLabelValues(reason).Inc()
	}
}

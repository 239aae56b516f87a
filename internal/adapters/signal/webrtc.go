package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/staffdesk/Consult/internal/app"
	"github.com/staffdesk/Consult/internal/core"
)

// handleSDP covers offers and answers. The payload is checked to be a
// well-formed session description and then forwarded byte-for-byte; the
// relay decides whether the sender may speak for this session.
func (ctl *SignalWSController) handleSDP(
	sid core.ConnID,
	conn *WsSignalConn,
	msgType string,
	data []byte,
) {
	type sdpPayload struct {
		Type      string          `json:"type"`
		SessionID string          `json:"session_id"`
		Payload   json.RawMessage `json:"payload"`
	}
	var p sdpPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad sdp payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(p.Payload, &desc); err != nil || desc.SDP == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	if err := ctl.Relay.Relay(core.SessionID(p.SessionID), sid, msgType, p.Payload); err != nil {
		ctl.sendError(conn, statusFor(err))
	}
}

func (ctl *SignalWSController) handleCandidate(
	sid core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type candidatePayload struct {
		Type      string          `json:"type"`
		SessionID string          `json:"session_id"`
		Payload   json.RawMessage `json:"payload"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(p.Payload, &cand); err != nil || cand.Candidate == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	if err := ctl.Relay.Relay(core.SessionID(p.SessionID), sid, app.MsgICECandidate, p.Payload); err != nil {
		ctl.sendError(conn, statusFor(err))
	}
}

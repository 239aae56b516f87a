package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/staffdesk/Consult/internal/core"
	"github.com/staffdesk/Consult/internal/domain"
)

type requestAck struct {
	Type      string           `json:"type"`
	RequestID domain.RequestID `json:"request_id"`
	StaffID   domain.StaffID   `json:"staff_id"`
}

func (ctl *SignalWSController) ackRequest(conn *WsSignalConn, req domain.CallRequest) {
	ack := requestAck{RequestID: req.ID, StaffID: req.StaffID}
	if req.Delivery == domain.DeliveryQueued {
		ack.Type = "request-queued"
	} else {
		ack.Type = "request-ringing"
	}
	ctl.sendJSON(conn, ack)
}

func (ctl *SignalWSController) requestFailed(conn *WsSignalConn, err error) {
	if errors.Is(err, core.ErrNotFound) {
		ctl.sendJSON(conn, map[string]any{"type": "staff-not-found"})
		return
	}
	if errors.Is(err, core.ErrStaffUnavailable) {
		ctl.sendJSON(conn, map[string]any{"type": "staff-unavailable"})
		return
	}
	ctl.sendError(conn, statusFor(err))
}

func (ctl *SignalWSController) handleStartConversation(
	sid core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type callPayload struct {
		Type       string `json:"type"`
		ClientName string `json:"client_name"`
		Purpose    string `json:"purpose"`
		StaffID    string `json:"staff_id"`
	}
	var p callPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.Limiter.Allow(sid) {
		ctl.sendError(conn, "rate_limited")
		return
	}

	req, err := ctl.Coord.RequestCall(sid, p.ClientName, p.Purpose, p.StaffID)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(sid)).Msg("call request failed")
		ctl.requestFailed(conn, err)
		return
	}
	ctl.ackRequest(conn, req)
}

func (ctl *SignalWSController) handleVideoCallRequest(
	sid core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type videoPayload struct {
		Type       string `json:"type"`
		ClientName string `json:"client_name"`
		Staff      string `json:"staff"`
	}
	var p videoPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad video call payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.Limiter.Allow(sid) {
		ctl.sendError(conn, "rate_limited")
		return
	}

	req, err := ctl.Coord.RequestVideoCall(sid, p.ClientName, p.Staff)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(sid)).Msg("video call request failed")
		ctl.requestFailed(conn, err)
		return
	}
	ctl.ackRequest(conn, req)
}

func (ctl *SignalWSController) handleCallResponse(
	sid core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type responsePayload struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
		Accepted  bool   `json:"accepted"`
		Reason    string `json:"reason"`
	}
	var p responsePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad response payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	err := ctl.Coord.Respond(sid, domain.RequestID(p.RequestID), p.Accepted, p.Reason)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("request", p.RequestID).Msg("response failed")
		ctl.sendError(conn, statusFor(err))
		return
	}
	if !p.Accepted {
		ctl.sendJSON(conn, map[string]any{
			"type":       "response-recorded",
			"request_id": p.RequestID,
		})
	}
}

func (ctl *SignalWSController) handleEndCall(
	sid core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type endPayload struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
		Reason    string `json:"reason"`
	}
	var p endPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad end-call payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	if err := ctl.Coord.EndCall(sid, core.SessionID(p.SessionID), p.Reason); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("session", p.SessionID).Msg("end-call failed")
		ctl.sendError(conn, statusFor(err))
		return
	}
	// The peer is notified by the coordinator; echo closure to the ender.
	ctl.sendJSON(conn, map[string]any{
		"type":       "call-ended",
		"session_id": p.SessionID,
	})
}

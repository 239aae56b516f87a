package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/staffdesk/Consult/internal/app"
	"github.com/staffdesk/Consult/internal/core"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	period := ctl.Cfg.PingPeriod
	if period <= 0 {
		period = 54 * time.Second
	}
	ping := time.NewTicker(period)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(sid)).Msg("readPump closing")
		ctl.Coord.OnDisconnect(sid)
		ctl.Limiter.Forget(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("conn", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(sid, c, data)
		}
	}
}

// handleSignal is the single authoritative dispatch table: exactly one
// handler per event type. "video-call-response" and "accept-call" are two
// wire names for the same operation.
func (ctl *SignalWSController) handleSignal(sid core.ConnID, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "staff-login":
		ctl.handleStaffLogin(sid, c, data)
	case "staff-availability":
		ctl.handleAvailability(sid, c, data)
	case "start-conversation":
		ctl.handleStartConversation(sid, c, data)
	case "video-call-request":
		ctl.handleVideoCallRequest(sid, c, data)
	case "video-call-response", "accept-call":
		ctl.handleCallResponse(sid, c, data)
	case "offer":
		ctl.handleSDP(sid, c, app.MsgOffer, data)
	case "answer":
		ctl.handleSDP(sid, c, app.MsgAnswer, data)
	case "ice-candidate":
		ctl.handleCandidate(sid, c, data)
	case "end-call":
		ctl.handleEndCall(sid, c, data)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, status string) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"error": status,
	})
}

// statusFor maps the coordinator's error taxonomy to the named statuses the
// browser shows; internals never leak as raw error strings.
func statusFor(err error) string {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return "not_authorized"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrStaffUnavailable):
		return "staff_unavailable"
	case errors.Is(err, app.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, app.ErrConnBusy):
		return "busy"
	default:
		return "internal_error"
	}
}

package signal

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/staffdesk/Consult/internal/core"
	"github.com/staffdesk/Consult/internal/domain"
)

// handleStaffLogin authenticates a staff connection, routes its aliases, and
// drains any requests queued while it was away. A valid token from an earlier
// login may replace the password.
func (ctl *SignalWSController) handleStaffLogin(
	sid core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type loginPayload struct {
		Type     string `json:"type"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Token    string `json:"token"`
	}
	var p loginPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad login payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	var staff *domain.Staff
	if p.Token != "" {
		staffID, err := ctl.Tokens.Verify(p.Token, time.Now())
		if err == nil {
			if s, ok := ctl.Coord.Directory.Get(string(staffID)); ok {
				staff = &s
			}
		}
	}
	if staff == nil {
		s, err := ctl.Creds.Authenticate(p.Email, p.Password)
		if err != nil {
			log.Warn().Str("module", "signal").Str("email", p.Email).Msg("login failed")
			ctl.sendJSON(conn, map[string]any{
				"type":   "login-failed",
				"reason": "invalid credentials",
			})
			return
		}
		staff = s
	}

	if err := ctl.Coord.Registry.RegisterStaff(sid, staff); err != nil {
		ctl.sendError(conn, statusFor(err))
		return
	}

	token, err := ctl.Tokens.Issue(staff.ID, time.Now())
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("token issue")
	}

	resp := struct {
		Type    string               `json:"type"`
		Staff   domain.Staff         `json:"staff"`
		Token   string               `json:"token,omitempty"`
		Pending []domain.CallRequest `json:"pending"`
	}{
		Type:    "login-ok",
		Staff:   *staff,
		Token:   token,
		Pending: ctl.Coord.Pending.Snapshot(staff.ID),
	}
	ctl.sendJSON(conn, resp)

	// Queued requests arrive as individual incoming-call events after the
	// login acknowledgement.
	ctl.Coord.OnStaffConnected(staff.ID)
}

func (ctl *SignalWSController) handleAvailability(
	sid core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type availabilityPayload struct {
		Type      string `json:"type"`
		Available bool   `json:"available"`
	}
	var p availabilityPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}

	staffID, ok := ctl.Coord.Registry.StaffOf(sid)
	if !ok {
		ctl.sendError(conn, "not_authorized")
		return
	}
	ctl.Coord.Directory.SetAvailable(staffID, p.Available)
	log.Info().Str("module", "signal").
		Str("staff", string(staffID)).
		Bool("available", p.Available).
		Msg("availability changed")
	ctl.sendJSON(conn, map[string]any{
		"type":      "availability-ok",
		"available": p.Available,
	})
}

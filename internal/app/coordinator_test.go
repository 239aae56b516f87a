package app

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffdesk/Consult/internal/core"
	"github.com/staffdesk/Consult/internal/domain"
)

func TestRequestToOfflineStaffIsQueuedAndDeliveredOnce(t *testing.T) {
	f := newFixture(t)
	f.connect("client-1")

	req, err := f.coord.RequestCall("client-1", "Ada", "billing question", "staff-anna")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryQueued, req.Delivery)
	assert.Equal(t, 1, f.pending.Len("staff-anna"))

	// Staff logs in: the request arrives exactly once and the queue empties.
	staffConn := f.connectStaff(t, "staff-conn-1", "staff-anna")

	evs := staffConn.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, "incoming-call", evs[0]["type"])
	reqData := evs[0]["request"].(map[string]any)
	assert.Equal(t, string(req.ID), reqData["id"])
	assert.Equal(t, "Ada", reqData["client_name"])
	assert.Zero(t, f.pending.Len("staff-anna"))

	staffConn.drop()
	f.coord.OnStaffConnected("staff-anna")
	require.Equal(t, []string{"incoming-call"}, staffConn.eventTypes(t),
		"a re-login shows the still-ringing request again")
	assert.Zero(t, f.pending.Len("staff-anna"), "the queue itself drains exactly once")
}

func TestRequestToOnlineStaffRingsImmediately(t *testing.T) {
	f := newFixture(t)
	staffConn := f.connectStaff(t, "staff-conn-1", "staff-anna")
	f.connect("client-1")

	req, err := f.coord.RequestCall("client-1", "Ada", "appointment", "AN")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryDelivered, req.Delivery)
	assert.Zero(t, f.pending.Len("staff-anna"))

	require.Equal(t, []string{"incoming-call"}, staffConn.eventTypes(t))
}

func TestRequestUnknownStaff(t *testing.T) {
	f := newFixture(t)
	f.connect("client-1")

	_, err := f.coord.RequestCall("client-1", "Ada", "help", "staff-ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRequestUnavailableStaff(t *testing.T) {
	f := newFixture(t)
	f.connect("client-1")

	_, err := f.coord.RequestCall("client-1", "Ada", "help", "staff-lena")
	assert.ErrorIs(t, err, core.ErrStaffUnavailable)
	assert.Zero(t, f.pending.Len("staff-lena"), "unavailable is distinct from queued")
}

func TestVideoRequestFuzzyResolution(t *testing.T) {
	f := newFixture(t)
	f.connectStaff(t, "staff-conn-1", "staff-omar")
	f.connect("client-1")

	req, err := f.coord.RequestVideoCall("client-1", "Ada", "haddad")
	require.NoError(t, err)
	assert.Equal(t, domain.StaffID("staff-omar"), req.StaffID)
	assert.Equal(t, domain.KindVideo, req.Kind)

	_, err = f.coord.RequestVideoCall("client-1", "Ada", "consult.example")
	assert.ErrorIs(t, err, core.ErrNotFound, "ambiguous match must not guess")
}

func TestAcceptCreatesSessionAndSignalingFlows(t *testing.T) {
	f := newFixture(t)
	staffConn := f.connectStaff(t, "staff-conn-1", "staff-anna")
	clientConn := f.connect("client-1")

	req, err := f.coord.RequestCall("client-1", "Ada", "demo", "staff-anna")
	require.NoError(t, err)
	staffConn.drop()

	require.NoError(t, f.coord.Respond("staff-conn-1", req.ID, true, ""))
	assert.Equal(t, 1, f.sessions.Count())

	clientEv := clientConn.lastEvent(t)
	staffEv := staffConn.lastEvent(t)
	assert.Equal(t, "call-accepted", clientEv["type"])
	assert.Equal(t, "call-accepted", staffEv["type"])
	assert.Equal(t, clientEv["session_id"], staffEv["session_id"], "both sides get the same fresh session id")
	assert.Equal(t, "client", clientEv["role"])
	assert.Equal(t, "staff", staffEv["role"])
	assert.Equal(t, "Anna Keller", clientEv["peer_name"])
	assert.Equal(t, "Ada", staffEv["peer_name"])

	sid := core.SessionID(clientEv["session_id"].(string))
	clientConn.drop()
	staffConn.drop()

	// Offer/answer/candidate flow under the minted id.
	require.NoError(t, f.relay.Relay(sid, "client-1", MsgOffer, json.RawMessage(`{"sdp":"o"}`)))
	require.NoError(t, f.relay.Relay(sid, "staff-conn-1", MsgAnswer, json.RawMessage(`{"sdp":"a"}`)))
	require.NoError(t, f.relay.Relay(sid, "client-1", MsgICECandidate, json.RawMessage(`{"candidate":"c"}`)))
	assert.Equal(t, []string{"offer", "ice-candidate"}, staffConn.eventTypes(t))
	assert.Equal(t, []string{"answer"}, clientConn.eventTypes(t))

	// Staff hangs up: client learns, session is gone, archive has the call.
	clientConn.drop()
	require.NoError(t, f.coord.EndCall("staff-conn-1", sid, ""))
	assert.Equal(t, "call-ended", clientConn.lastEvent(t)["type"])
	_, err = f.sessions.Get(sid)
	assert.ErrorIs(t, err, core.ErrNotFound)

	recs := f.sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, sid, recs[0].SessionID)
	assert.Equal(t, domain.StaffID("staff-anna"), recs[0].StaffID)
	assert.Equal(t, "ended", recs[0].Reason)
}

func TestAcceptFailureNotifiesSecondClient(t *testing.T) {
	f := newFixture(t)
	f.connectStaff(t, "staff-conn-1", "staff-anna")
	f.connect("client-1")
	client2 := f.connect("client-2")

	r1, err := f.coord.RequestCall("client-1", "Ada", "first", "staff-anna")
	require.NoError(t, err)
	r2, err := f.coord.RequestCall("client-2", "Grace", "second", "staff-anna")
	require.NoError(t, err)

	require.NoError(t, f.coord.Respond("staff-conn-1", r1.ID, true, ""))
	client2.drop()

	// Accepting a second request while already in a call fails, but the
	// second client still gets a terminal answer instead of silence.
	err = f.coord.Respond("staff-conn-1", r2.ID, true, "")
	assert.ErrorIs(t, err, ErrConnBusy)

	ev := client2.lastEvent(t)
	assert.Equal(t, "call-rejected", ev["type"])
	assert.Equal(t, string(r2.ID), ev["request_id"])
	assert.Equal(t, 1, f.sessions.Count(), "the first call stays intact")
}

func TestReloginRedeliversRingingRequest(t *testing.T) {
	f := newFixture(t)
	f.connectStaff(t, "staff-conn-1", "staff-anna")
	clientConn := f.connect("client-1")

	req, err := f.coord.RequestCall("client-1", "Ada", "demo", "staff-anna")
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryDelivered, req.Delivery)

	// Second tab logs in while the first is still connected; the old
	// connection goes away only afterwards.
	staffConn2 := f.connectStaff(t, "staff-conn-2", "staff-anna")
	f.coord.OnDisconnect("staff-conn-1")

	require.Equal(t, []string{"incoming-call"}, staffConn2.eventTypes(t),
		"the ringing request follows the staff onto the fresh connection")
	assert.Zero(t, f.pending.Len("staff-anna"))

	// And the fresh connection can answer it.
	clientConn.drop()
	require.NoError(t, f.coord.Respond("staff-conn-2", req.ID, true, ""))
	assert.Equal(t, "call-accepted", clientConn.lastEvent(t)["type"])
}

func TestRejectNotifiesClientWithReason(t *testing.T) {
	f := newFixture(t)
	f.connectStaff(t, "staff-conn-1", "staff-anna")
	clientConn := f.connect("client-1")

	req, err := f.coord.RequestCall("client-1", "Ada", "demo", "staff-anna")
	require.NoError(t, err)

	require.NoError(t, f.coord.Respond("staff-conn-1", req.ID, false, "in a meeting"))
	ev := clientConn.lastEvent(t)
	assert.Equal(t, "call-rejected", ev["type"])
	assert.Equal(t, "in a meeting", ev["reason"])
	assert.Zero(t, f.sessions.Count())

	// The request is closed; a second answer finds nothing.
	assert.ErrorIs(t, f.coord.Respond("staff-conn-1", req.ID, true, ""), core.ErrNotFound)
}

func TestRespondAuthorization(t *testing.T) {
	f := newFixture(t)
	f.connectStaff(t, "staff-conn-1", "staff-anna")
	f.connectStaff(t, "staff-conn-2", "staff-omar")
	f.connect("client-1")

	req, err := f.coord.RequestCall("client-1", "Ada", "demo", "staff-anna")
	require.NoError(t, err)

	// A different staff member cannot answer someone else's request.
	assert.ErrorIs(t, f.coord.Respond("staff-conn-2", req.ID, true, ""), core.ErrUnauthorized)
	// Nor can an anonymous connection.
	f.connect("rando")
	assert.ErrorIs(t, f.coord.Respond("rando", req.ID, true, ""), core.ErrUnauthorized)
	// Unknown request ids fail loudly.
	assert.ErrorIs(t, f.coord.Respond("staff-conn-1", "ghost", true, ""), core.ErrNotFound)
}

func TestEndCallAuthorization(t *testing.T) {
	f := newFixture(t)
	f.connectStaff(t, "staff-conn-1", "staff-anna")
	f.connect("client-1")
	f.connect("rando")

	req, err := f.coord.RequestCall("client-1", "Ada", "demo", "staff-anna")
	require.NoError(t, err)
	require.NoError(t, f.coord.Respond("staff-conn-1", req.ID, true, ""))

	sess, err := f.sessions.FindByConnection("client-1")
	require.NoError(t, err)

	assert.ErrorIs(t, f.coord.EndCall("rando", sess.ID, ""), core.ErrUnauthorized)
	assert.Equal(t, 1, f.sessions.Count(), "unauthorized end-call leaves the session intact")
	assert.ErrorIs(t, f.coord.EndCall("client-1", "ghost", ""), core.ErrNotFound)

	require.NoError(t, f.coord.EndCall("client-1", sess.ID, "done"))
}

func TestStaffDisconnectMidCall(t *testing.T) {
	f := newFixture(t)
	f.connectStaff(t, "staff-conn-1", "staff-anna")
	clientConn := f.connect("client-1")

	req, err := f.coord.RequestCall("client-1", "Ada", "demo", "staff-anna")
	require.NoError(t, err)
	require.NoError(t, f.coord.Respond("staff-conn-1", req.ID, true, ""))
	sess, err := f.sessions.FindByConnection("client-1")
	require.NoError(t, err)
	clientConn.drop()

	f.coord.OnDisconnect("staff-conn-1")

	ev := clientConn.lastEvent(t)
	assert.Equal(t, "call-ended", ev["type"])
	assert.Equal(t, "peer disconnected", ev["reason"])
	_, err = f.sessions.Get(sess.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Stale signaling for the dead session is rejected.
	err = f.relay.Relay(sess.ID, "client-1", MsgICECandidate, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, core.ErrNotFound)

	recs := f.sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "peer disconnected", recs[0].Reason)
}

func TestStaffDisconnectRequeuesRingingRequest(t *testing.T) {
	f := newFixture(t)
	f.connectStaff(t, "staff-conn-1", "staff-anna")
	clientConn := f.connect("client-1")

	req, err := f.coord.RequestCall("client-1", "Ada", "demo", "staff-anna")
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryDelivered, req.Delivery)

	f.coord.OnDisconnect("staff-conn-1")

	assert.Equal(t, 1, f.pending.Len("staff-anna"), "ringing request survives the staff disconnect")
	ev := clientConn.lastEvent(t)
	assert.Equal(t, "request-queued", ev["type"])
	assert.Equal(t, string(req.ID), ev["request_id"])

	// Next login delivers it again, exactly once.
	staffConn2 := f.connectStaff(t, "staff-conn-2", "staff-anna")
	require.Equal(t, []string{"incoming-call"}, staffConn2.eventTypes(t))
	assert.Zero(t, f.pending.Len("staff-anna"))
}

func TestClientDisconnectDropsItsRequests(t *testing.T) {
	f := newFixture(t)
	staffConn := f.connectStaff(t, "staff-conn-1", "staff-anna")
	f.connect("client-1")

	req, err := f.coord.RequestCall("client-1", "Ada", "demo", "staff-anna")
	require.NoError(t, err)
	staffConn.drop()

	f.coord.OnDisconnect("client-1")

	ev := staffConn.lastEvent(t)
	assert.Equal(t, "request-expired", ev["type"], "staff dashboard clears the dead request")
	assert.ErrorIs(t, f.coord.Respond("staff-conn-1", req.ID, true, ""), core.ErrNotFound)
}

func TestQueuedRequestSkippedWhenClientGone(t *testing.T) {
	f := newFixture(t)
	f.connect("client-1")

	_, err := f.coord.RequestCall("client-1", "Ada", "demo", "staff-anna")
	require.NoError(t, err)
	f.coord.OnDisconnect("client-1")

	staffConn := f.connectStaff(t, "staff-conn-1", "staff-anna")
	assert.Empty(t, staffConn.events(t), "requests of departed clients are not delivered")
}

func TestRequestExpiry(t *testing.T) {
	f := newFixture(t)
	staffConn := f.connectStaff(t, "staff-conn-1", "staff-anna")
	clientConn := f.connect("client-1")
	f.coord.ResponseWindow = 50 * time.Millisecond

	req, err := f.coord.RequestCall("client-1", "Ada", "demo", "staff-anna")
	require.NoError(t, err)
	staffConn.drop()

	// Not yet stale.
	f.coord.ExpireStale(time.Now())
	assert.Empty(t, clientConn.events(t))

	f.coord.ExpireStale(time.Now().Add(time.Second))
	assert.Equal(t, "request-expired", clientConn.lastEvent(t)["type"])
	assert.Equal(t, "request-expired", staffConn.lastEvent(t)["type"])

	assert.ErrorIs(t, f.coord.Respond("staff-conn-1", req.ID, true, ""), core.ErrNotFound)
}

func TestExpiryIgnoresQueuedRequests(t *testing.T) {
	f := newFixture(t)
	clientConn := f.connect("client-1")
	f.coord.ResponseWindow = time.Millisecond

	_, err := f.coord.RequestCall("client-1", "Ada", "demo", "staff-anna")
	require.NoError(t, err)

	f.coord.ExpireStale(time.Now().Add(time.Hour))
	assert.Empty(t, clientConn.events(t), "queued requests wait for the staff, not the clock")
	assert.Equal(t, 1, f.pending.Len("staff-anna"))
}

func TestOpenRequestsFor(t *testing.T) {
	f := newFixture(t)
	f.connectStaff(t, "staff-conn-1", "staff-anna")
	f.connect("client-1")
	f.connect("client-2")

	r1, err := f.coord.RequestCall("client-1", "Ada", "first", "staff-anna")
	require.NoError(t, err)
	r2, err := f.coord.RequestCall("client-2", "Grace", "second", "staff-anna")
	require.NoError(t, err)

	open := f.coord.OpenRequestsFor("staff-anna")
	require.Len(t, open, 2)
	assert.Equal(t, r1.ID, open[0].ID, "oldest first")
	assert.Equal(t, r2.ID, open[1].ID)
	assert.Empty(t, f.coord.OpenRequestsFor("staff-omar"))
}

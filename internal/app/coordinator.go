package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/staffdesk/Consult/internal/archive"
	"github.com/staffdesk/Consult/internal/core"
	"github.com/staffdesk/Consult/internal/domain"
	"github.com/staffdesk/Consult/internal/metrics"
)

const sessionIDAttempts = 3

// trackedRequest is a request the coordinator still owes an answer for.
// notifiedAt is zero while the request sits in the pending store.
type trackedRequest struct {
	req        *domain.CallRequest
	clientConn core.ConnID
	notifiedAt time.Time
}

// Coordinator drives the call lifecycle: request -> notify/queue ->
// accept/reject/expire -> active -> ended. It is the only writer of the
// session table and the open-request set.
type Coordinator struct {
	Registry  *Registry
	Pending   *PendingCallStore
	Sessions  *CallSessionTable
	Directory *Directory
	Archive   archive.CallArchiver
	Metrics   *metrics.Metrics

	// ICEServers is handed to both parties when a call is accepted.
	ICEServers []webrtc.ICEServer

	// ResponseWindow bounds how long a delivered request may ring before
	// it expires; SweepInterval is how often the sweeper looks.
	ResponseWindow time.Duration
	SweepInterval  time.Duration

	mu   sync.Mutex
	open map[domain.RequestID]*trackedRequest
}

func NewCoordinator(
	reg *Registry,
	pending *PendingCallStore,
	sessions *CallSessionTable,
	dir *Directory,
	arch archive.CallArchiver,
	m *metrics.Metrics,
) *Coordinator {
	return &Coordinator{
		Registry:       reg,
		Pending:        pending,
		Sessions:       sessions,
		Directory:      dir,
		Archive:        arch,
		Metrics:        m,
		ResponseWindow: 60 * time.Second,
		SweepInterval:  5 * time.Second,
		open:           make(map[domain.RequestID]*trackedRequest),
	}
}

// Run drives the expiry sweeper until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) {
	t := time.NewTicker(c.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.coordinator").Msg("sweeper stopped")
			return
		case now := <-t.C:
			c.ExpireStale(now)
		}
	}
}

// RequestCall handles a client's call request addressed by exact staff id.
func (c *Coordinator) RequestCall(conn core.ConnID, clientName, purpose, targetStaffID string) (domain.CallRequest, error) {
	staff, ok := c.Directory.Get(targetStaffID)
	if !ok {
		return domain.CallRequest{}, fmt.Errorf("staff %q: %w", targetStaffID, core.ErrNotFound)
	}
	return c.submit(conn, domain.CallRequest{
		Kind:       domain.KindVoice,
		ClientName: clientName,
		Purpose:    purpose,
	}, staff)
}

// RequestVideoCall resolves the staff member by fuzzy name/email match and
// files a video-call request. An ambiguous query fails with a named error
// instead of guessing.
func (c *Coordinator) RequestVideoCall(conn core.ConnID, clientName, staffQuery string) (domain.CallRequest, error) {
	id, ok := c.Directory.Resolve(staffQuery)
	if !ok {
		return domain.CallRequest{}, fmt.Errorf("staff %q: %w", staffQuery, core.ErrNotFound)
	}
	staff, _ := c.Directory.Get(string(id))
	return c.submit(conn, domain.CallRequest{
		Kind:       domain.KindVideo,
		ClientName: clientName,
		StaffQuery: staffQuery,
	}, staff)
}

func (c *Coordinator) submit(conn core.ConnID, req domain.CallRequest, staff domain.Staff) (domain.CallRequest, error) {
	if !staff.Available {
		return domain.CallRequest{}, fmt.Errorf("staff %s: %w", staff.ID, core.ErrStaffUnavailable)
	}
	if err := c.Registry.RegisterClient(conn, req.ClientName); err != nil {
		return domain.CallRequest{}, fmt.Errorf("register client: %w", err)
	}

	req.ID = domain.RequestID(uuid.NewString())
	req.StaffID = staff.ID
	req.CreatedAt = time.Now()
	req.Decision = domain.DecisionPending
	if c.Metrics != nil {
		c.Metrics.RequestsTotal.WithLabelValues(string(req.Kind)).Inc()
	}

	tracked := &trackedRequest{req: &req, clientConn: conn}

	staffConn, online := c.Registry.LookupStaff(string(staff.ID))
	if online {
		req.Delivery = domain.DeliveryDelivered
		tracked.notifiedAt = time.Now()
		c.track(tracked)
		if sig, ok := c.Registry.Signal(staffConn); ok {
			sendEvent(sig, incomingCallEvent{Type: eventTypeFor(req.Kind), Request: req})
		}
		log.Info().Str("module", "app.coordinator").
			Str("request", string(req.ID)).
			Str("staff", string(staff.ID)).
			Msg("request delivered")
		return req, nil
	}

	req.Delivery = domain.DeliveryQueued
	if err := c.Pending.Enqueue(staff.ID, &req); err != nil {
		return domain.CallRequest{}, fmt.Errorf("queue for staff %s: %w", staff.ID, err)
	}
	c.track(tracked)
	if c.Metrics != nil {
		c.Metrics.QueuedRequests.Inc()
	}
	return req, nil
}

func eventTypeFor(kind domain.CallKind) string {
	if kind == domain.KindVideo {
		return EventIncomingVideoCall
	}
	return EventIncomingCall
}

func (c *Coordinator) track(tr *trackedRequest) {
	c.mu.Lock()
	c.open[tr.req.ID] = tr
	c.mu.Unlock()
}

// OnStaffConnected drains the pending store for a freshly registered staff id
// and delivers each queued request exactly once. Requests still ringing from
// a superseded connection are shown again on the new one with a fresh
// response window. Requests whose client has since disconnected are dropped
// silently.
func (c *Coordinator) OnStaffConnected(staffID domain.StaffID) {
	reqs := c.Pending.DrainFor(staffID)
	if len(reqs) > 0 && c.Metrics != nil {
		c.Metrics.QueuedRequests.Sub(float64(len(reqs)))
	}

	staffConn, ok := c.Registry.LookupStaff(string(staffID))
	if !ok {
		// Lost the race against an immediate disconnect: put everything
		// back so the next login sees it, in the original order.
		for _, r := range reqs {
			_ = c.Pending.Enqueue(staffID, r)
		}
		if len(reqs) > 0 && c.Metrics != nil {
			c.Metrics.QueuedRequests.Add(float64(len(reqs)))
		}
		return
	}
	sig, ok := c.Registry.Signal(staffConn)
	if !ok {
		return
	}

	now := time.Now()

	c.mu.Lock()
	var ringing []*trackedRequest
	for id, tr := range c.open {
		if tr.req.StaffID != staffID || tr.notifiedAt.IsZero() {
			continue
		}
		if _, alive := c.Registry.Signal(tr.clientConn); !alive {
			delete(c.open, id)
			continue
		}
		tr.notifiedAt = now
		ringing = append(ringing, tr)
	}
	c.mu.Unlock()
	sort.Slice(ringing, func(i, j int) bool {
		return ringing[i].req.CreatedAt.Before(ringing[j].req.CreatedAt)
	})
	for _, tr := range ringing {
		sendEvent(sig, incomingCallEvent{Type: eventTypeFor(tr.req.Kind), Request: *tr.req})
		log.Info().Str("module", "app.coordinator").
			Str("request", string(tr.req.ID)).
			Str("staff", string(staffID)).
			Msg("ringing request redelivered")
	}

	for _, r := range reqs {
		c.mu.Lock()
		tr, open := c.open[r.ID]
		if open {
			if _, alive := c.Registry.Signal(tr.clientConn); !alive {
				delete(c.open, r.ID)
				open = false
			}
		}
		if open {
			tr.notifiedAt = now
			tr.req.Delivery = domain.DeliveryDelivered
		}
		c.mu.Unlock()
		if !open {
			continue
		}
		sendEvent(sig, incomingCallEvent{Type: eventTypeFor(r.Kind), Request: *r})
		log.Info().Str("module", "app.coordinator").
			Str("request", string(r.ID)).
			Str("staff", string(staffID)).
			Msg("queued request delivered")
	}
}

// Respond drives the Accepted/Rejected transition. Only the staff member the
// request targets may answer it; on acceptance a fresh session id is minted
// and both parties are told to begin WebRTC negotiation.
func (c *Coordinator) Respond(staffConn core.ConnID, requestID domain.RequestID, accepted bool, reason string) error {
	staffID, ok := c.Registry.StaffOf(staffConn)
	if !ok {
		return fmt.Errorf("respond: %w", core.ErrUnauthorized)
	}

	c.mu.Lock()
	tr, ok := c.open[requestID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("request %s: %w", requestID, core.ErrNotFound)
	}
	if tr.req.StaffID != staffID {
		c.mu.Unlock()
		return fmt.Errorf("request %s: %w", requestID, core.ErrUnauthorized)
	}
	delete(c.open, requestID)
	c.mu.Unlock()

	clientSig, clientAlive := c.Registry.Signal(tr.clientConn)

	if !accepted {
		tr.req.Decision = domain.DecisionRejected
		if c.Metrics != nil {
			c.Metrics.CallOutcomes.WithLabelValues("rejected").Inc()
		}
		if clientAlive {
			sendEvent(clientSig, callRejectedEvent{Type: EventCallRejected, RequestID: requestID, Reason: reason})
		}
		log.Info().Str("module", "app.coordinator").Str("request", string(requestID)).Msg("request rejected")
		return nil
	}

	if !clientAlive {
		if c.Metrics != nil {
			c.Metrics.CallOutcomes.WithLabelValues("client_gone").Inc()
		}
		return fmt.Errorf("client of request %s: %w", requestID, core.ErrNotFound)
	}
	tr.req.Decision = domain.DecisionAccepted

	var sess core.CallSession
	var err error
	for i := 0; i < sessionIDAttempts; i++ {
		sess, err = c.Sessions.Create(core.SessionID(uuid.NewString()), tr.clientConn, staffConn)
		if !errors.Is(err, core.ErrDuplicateSession) {
			break
		}
	}
	if err != nil {
		// The request is closed either way; the client hears a terminal
		// status instead of waiting on a request nobody holds anymore.
		if c.Metrics != nil {
			c.Metrics.CallOutcomes.WithLabelValues("failed").Inc()
		}
		sendEvent(clientSig, callRejectedEvent{Type: EventCallRejected, RequestID: requestID, Reason: "call setup failed"})
		return fmt.Errorf("create session: %w", err)
	}
	if c.Metrics != nil {
		c.Metrics.ActiveSessions.Inc()
		c.Metrics.CallOutcomes.WithLabelValues("accepted").Inc()
	}

	staffName := ""
	if s, ok := c.Directory.Get(string(staffID)); ok {
		staffName = s.Name
	}

	// Session row exists before either side hears about it; the client is
	// the offerer by convention.
	sendEvent(clientSig, callAcceptedEvent{
		Type:       EventCallAccepted,
		SessionID:  sess.ID,
		Role:       core.RoleClient,
		PeerName:   staffName,
		ICEServers: c.ICEServers,
	})
	if staffSig, ok := c.Registry.Signal(staffConn); ok {
		sendEvent(staffSig, callAcceptedEvent{
			Type:       EventCallAccepted,
			SessionID:  sess.ID,
			Role:       core.RoleStaff,
			PeerName:   tr.req.ClientName,
			ICEServers: c.ICEServers,
		})
	}
	log.Info().Str("module", "app.coordinator").
		Str("request", string(requestID)).
		Str("session", string(sess.ID)).
		Msg("request accepted, session created")
	return nil
}

// EndCall handles an explicit hang-up from either participant.
func (c *Coordinator) EndCall(conn core.ConnID, sessionID core.SessionID, reason string) error {
	sess, err := c.Sessions.Get(sessionID)
	if err != nil {
		return fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	if !sess.HasParticipant(conn) {
		return fmt.Errorf("session %s: %w", sessionID, core.ErrUnauthorized)
	}
	final, err := c.Sessions.Remove(sessionID)
	if err != nil {
		return fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	if reason == "" {
		reason = "ended"
	}
	c.finishSession(final, conn, reason, "ended")
	return nil
}

// OnDisconnect is the transport-level cleanup path: tear down any session the
// connection was part of, drop its open requests, then remove its registry
// entry (which fires the staff-offline hook for staff).
func (c *Coordinator) OnDisconnect(conn core.ConnID) {
	if sess, err := c.Sessions.FindByConnection(conn); err == nil {
		if final, err := c.Sessions.Remove(sess.ID); err == nil {
			c.finishSession(final, conn, "peer disconnected", "peer_disconnected")
		}
	}

	c.mu.Lock()
	var orphaned []*trackedRequest
	for id, tr := range c.open {
		if tr.clientConn == conn {
			delete(c.open, id)
			orphaned = append(orphaned, tr)
		}
	}
	c.mu.Unlock()

	// Clear the ringing entry on the staff side for any request whose
	// client just vanished.
	for _, tr := range orphaned {
		if tr.notifiedAt.IsZero() {
			continue
		}
		if staffConn, ok := c.Registry.LookupStaff(string(tr.req.StaffID)); ok {
			if sig, ok := c.Registry.Signal(staffConn); ok {
				sendEvent(sig, requestExpiredEvent{Type: EventRequestExpired, RequestID: tr.req.ID})
			}
		}
	}

	c.Registry.Unregister(conn)
}

// OnStaffOffline is the registry's presence-changed hook. Requests already
// delivered to the departed connection but not yet answered go back to the
// pending store so the next login sees them; their clients are told the
// request is queued again.
func (c *Coordinator) OnStaffOffline(staffID domain.StaffID) {
	c.mu.Lock()
	var requeue []*trackedRequest
	for _, tr := range c.open {
		if tr.req.StaffID == staffID && !tr.notifiedAt.IsZero() {
			tr.notifiedAt = time.Time{}
			tr.req.Delivery = domain.DeliveryQueued
			requeue = append(requeue, tr)
		}
	}
	c.mu.Unlock()
	if len(requeue) == 0 {
		return
	}
	sort.Slice(requeue, func(i, j int) bool {
		return requeue[i].req.CreatedAt.Before(requeue[j].req.CreatedAt)
	})

	for _, tr := range requeue {
		if err := c.Pending.Enqueue(staffID, tr.req); err != nil {
			c.mu.Lock()
			delete(c.open, tr.req.ID)
			c.mu.Unlock()
			log.Warn().Err(err).Str("module", "app.coordinator").
				Str("request", string(tr.req.ID)).
				Msg("could not requeue request after staff disconnect")
			continue
		}
		if c.Metrics != nil {
			c.Metrics.QueuedRequests.Inc()
		}
		if sig, ok := c.Registry.Signal(tr.clientConn); ok {
			sendEvent(sig, requestQueuedEvent{Type: EventRequestQueued, RequestID: tr.req.ID, StaffID: staffID})
		}
	}
	log.Info().Str("module", "app.coordinator").
		Str("staff", string(staffID)).
		Int("count", len(requeue)).
		Msg("requeued delivered requests after staff disconnect")
}

// ExpireStale moves delivered-but-unanswered requests past the response
// window to Expired and informs both sides.
func (c *Coordinator) ExpireStale(now time.Time) {
	c.mu.Lock()
	var expired []*trackedRequest
	for id, tr := range c.open {
		if !tr.notifiedAt.IsZero() && now.Sub(tr.notifiedAt) > c.ResponseWindow {
			delete(c.open, id)
			expired = append(expired, tr)
		}
	}
	c.mu.Unlock()

	for _, tr := range expired {
		if c.Metrics != nil {
			c.Metrics.CallOutcomes.WithLabelValues("expired").Inc()
		}
		if sig, ok := c.Registry.Signal(tr.clientConn); ok {
			sendEvent(sig, requestExpiredEvent{Type: EventRequestExpired, RequestID: tr.req.ID})
		}
		if staffConn, ok := c.Registry.LookupStaff(string(tr.req.StaffID)); ok {
			if sig, ok := c.Registry.Signal(staffConn); ok {
				sendEvent(sig, requestExpiredEvent{Type: EventRequestExpired, RequestID: tr.req.ID})
			}
		}
		log.Info().Str("module", "app.coordinator").
			Str("request", string(tr.req.ID)).
			Msg("request expired without answer")
	}
}

// OpenRequestsFor lists delivered-but-unanswered requests for a staff
// dashboard; combine with PendingCallStore.Snapshot for the queued ones.
func (c *Coordinator) OpenRequestsFor(staffID domain.StaffID) []domain.CallRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.CallRequest
	for _, tr := range c.open {
		if tr.req.StaffID == staffID && !tr.notifiedAt.IsZero() {
			out = append(out, *tr.req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// finishSession notifies the surviving participant and records the call.
// The session row is already gone by the time anyone is notified.
func (c *Coordinator) finishSession(final core.CallSession, endedBy core.ConnID, reason, outcome string) {
	if c.Metrics != nil {
		c.Metrics.ActiveSessions.Dec()
		c.Metrics.CallOutcomes.WithLabelValues(outcome).Inc()
	}
	if peer, ok := final.Peer(endedBy); ok {
		if sig, ok := c.Registry.Signal(peer); ok {
			sendEvent(sig, callEndedEvent{
				Type:       EventCallEnded,
				SessionID:  final.ID,
				Reason:     reason,
				DurationMS: final.Duration().Milliseconds(),
			})
		}
	}

	staffID, _ := c.Registry.StaffOf(final.StaffConn)
	clientName, _ := c.Registry.ClientNameOf(final.ClientConn)
	if err := c.Archive.Record(archive.CallRecord{
		SessionID:  final.ID,
		StaffID:    staffID,
		ClientName: clientName,
		StartedAt:  final.StartedAt,
		EndedAt:    final.EndedAt,
		Duration:   final.Duration(),
		Reason:     reason,
	}); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").
			Str("session", string(final.ID)).
			Msg("archive record failed")
	}
}

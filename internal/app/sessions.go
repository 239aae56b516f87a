package app

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/staffdesk/Consult/internal/core"
)

// ErrConnBusy means a connection is already part of another session; a single
// browser tab holds at most one call at a time.
var ErrConnBusy = errors.New("connection already in a call")

// CallSessionTable is the authoritative set of in-progress calls. Lifecycle
// writes go through the coordinator only; the relay just reads membership.
type CallSessionTable struct {
	mu     sync.RWMutex
	byID   map[core.SessionID]*core.CallSession
	byConn map[core.ConnID]core.SessionID
}

func NewCallSessionTable() *CallSessionTable {
	return &CallSessionTable{
		byID:   make(map[core.SessionID]*core.CallSession),
		byConn: make(map[core.ConnID]core.SessionID),
	}
}

// Create registers a new session. Fails with ErrDuplicateSession on an id
// collision (caller regenerates and retries) and ErrConnBusy if either leg
// is already in a call.
func (t *CallSessionTable) Create(id core.SessionID, clientConn, staffConn core.ConnID) (core.CallSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[id]; ok {
		return core.CallSession{}, core.ErrDuplicateSession
	}
	if _, ok := t.byConn[clientConn]; ok {
		return core.CallSession{}, ErrConnBusy
	}
	if _, ok := t.byConn[staffConn]; ok {
		return core.CallSession{}, ErrConnBusy
	}
	s := &core.CallSession{
		ID:         id,
		ClientConn: clientConn,
		StaffConn:  staffConn,
		State:      core.SessionConnecting,
		StartedAt:  time.Now(),
	}
	t.byID[id] = s
	t.byConn[clientConn] = id
	t.byConn[staffConn] = id
	log.Info().Str("module", "app.sessions").
		Str("session", string(id)).
		Str("client_conn", string(clientConn)).
		Str("staff_conn", string(staffConn)).
		Msg("session created")
	return *s, nil
}

// Get returns a copy; callers never get a handle to the live row.
func (t *CallSessionTable) Get(id core.SessionID) (core.CallSession, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.byID[id]; ok {
		return *s, nil
	}
	return core.CallSession{}, core.ErrNotFound
}

func (t *CallSessionTable) SetState(id core.SessionID, state core.SessionState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[id]
	if !ok {
		return core.ErrNotFound
	}
	s.State = state
	return nil
}

// Remove tears the session down and returns its final record with EndedAt
// stamped, so the caller can archive the duration.
func (t *CallSessionTable) Remove(id core.SessionID) (core.CallSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[id]
	if !ok {
		return core.CallSession{}, core.ErrNotFound
	}
	delete(t.byID, id)
	delete(t.byConn, s.ClientConn)
	delete(t.byConn, s.StaffConn)
	s.State = core.SessionEnded
	s.EndedAt = time.Now()
	log.Info().Str("module", "app.sessions").Str("session", string(id)).Msg("session removed")
	return *s, nil
}

// FindByConnection locates the session a connection participates in, used by
// disconnect cleanup.
func (t *CallSessionTable) FindByConnection(conn core.ConnID) (core.CallSession, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byConn[conn]
	if !ok {
		return core.CallSession{}, core.ErrNotFound
	}
	return *t.byID[id], nil
}

func (t *CallSessionTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/staffdesk/Consult/internal/core"
	"github.com/staffdesk/Consult/internal/domain"
)

type connEntry struct {
	Role        core.Role
	StaffID     domain.StaffID
	ClientName  string
	Signal      core.SignalConnection
	Cancel      context.CancelFunc
	ConnectedAt time.Time

	// aliases this connection is routable under in staffByAlias;
	// unregister must remove every one of them.
	aliases []string
}

// Registry maps live connections to identities and answers presence lookups.
// All staff aliases (directory id, short code) point at the same connection
// and are registered and removed together.
type Registry struct {
	mu           sync.RWMutex
	conns        map[core.ConnID]*connEntry
	staffByAlias map[string]core.ConnID

	// onStaffOffline fires after a staff connection is fully unrouted,
	// so the consumer never races a delivery into a dead connection.
	onStaffOffline func(domain.StaffID)
}

func NewRegistry() *Registry {
	return &Registry{
		conns:        make(map[core.ConnID]*connEntry),
		staffByAlias: make(map[string]core.ConnID),
	}
}

// SetOnStaffOffline installs the presence-changed hook. Must be called
// before the first connection is accepted.
func (r *Registry) SetOnStaffOffline(fn func(domain.StaffID)) {
	r.onStaffOffline = fn
}

// Bind creates the entry for a fresh transport connection. Identity is
// attached later by RegisterStaff or RegisterClient.
func (r *Registry) Bind(id core.ConnID, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{
		Role:        core.RoleNone,
		Signal:      sig,
		Cancel:      cancel,
		ConnectedAt: time.Now(),
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("bound connection")
}

// RegisterStaff attaches a staff identity to a connection and routes every
// alias at it. A second login for the same staff supersedes the first:
// the old connection loses all its routes and is canceled.
func (r *Registry) RegisterStaff(id core.ConnID, staff *domain.Staff) error {
	r.mu.Lock()
	entry, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return core.ErrNotFound
	}

	var stale *connEntry
	if oldID, ok := r.staffByAlias[string(staff.ID)]; ok && oldID != id {
		if old, ok := r.conns[oldID]; ok {
			for _, a := range old.aliases {
				delete(r.staffByAlias, a)
			}
			old.aliases = nil
			old.Role = core.RoleNone
			old.StaffID = ""
			stale = old
			log.Warn().Str("module", "app.registry").
				Str("staff", string(staff.ID)).
				Str("old_conn", string(oldID)).
				Str("new_conn", string(id)).
				Msg("staff re-login superseded old connection")
		}
	}

	// Re-login on the same connection drops its previous routes first.
	for _, a := range entry.aliases {
		if r.staffByAlias[a] == id {
			delete(r.staffByAlias, a)
		}
	}

	entry.Role = core.RoleStaff
	entry.StaffID = staff.ID
	entry.aliases = staff.Aliases()
	for _, a := range entry.aliases {
		r.staffByAlias[a] = id
	}
	r.mu.Unlock()

	if stale != nil && stale.Cancel != nil {
		stale.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("staff", string(staff.ID)).Msg("registered staff")
	return nil
}

// RegisterClient attaches a client identity (display name only).
func (r *Registry) RegisterClient(id core.ConnID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[id]
	if !ok {
		return core.ErrNotFound
	}
	if entry.Role == core.RoleStaff {
		// A logged-in staff connection cannot double as a client.
		return core.ErrUnauthorized
	}
	entry.Role = core.RoleClient
	entry.ClientName = name
	return nil
}

// LookupStaff answers a presence check for any staff alias.
func (r *Registry) LookupStaff(identity string) (core.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.staffByAlias[identity]
	return id, ok
}

// Signal returns the transport endpoint for a live connection.
func (r *Registry) Signal(id core.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Signal, true
	}
	return nil, false
}

// StaffOf returns the staff identity bound to a connection, if any.
func (r *Registry) StaffOf(id core.ConnID) (domain.StaffID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok && e.Role == core.RoleStaff {
		return e.StaffID, true
	}
	return "", false
}

// ClientNameOf returns the display name a client connection registered with.
func (r *Registry) ClientNameOf(id core.ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok && e.Role == core.RoleClient {
		return e.ClientName, true
	}
	return "", false
}

// Unregister removes a connection and every alias pointing at it.
// Called exactly once, on disconnect. The staff-offline hook fires after
// the routes are gone.
func (r *Registry) Unregister(id core.ConnID) {
	r.mu.Lock()
	entry, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	for _, a := range entry.aliases {
		if r.staffByAlias[a] == id {
			delete(r.staffByAlias, a)
		}
	}
	delete(r.conns, id)
	wasStaff := entry.Role == core.RoleStaff
	staffID := entry.StaffID
	r.mu.Unlock()

	if entry.Cancel != nil {
		entry.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered connection")
	if wasStaff && r.onStaffOffline != nil {
		r.onStaffOffline(staffID)
	}
}

// Cancel aborts the pumps of a connection without touching its routes.
func (r *Registry) Cancel(id core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	return true
}

// ConnCount is a health-endpoint convenience.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

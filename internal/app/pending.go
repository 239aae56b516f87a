package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/staffdesk/Consult/internal/domain"
)

// ErrQueueFull is an operational cap, not a protocol invariant; the client
// is told the staff queue is saturated instead of waiting forever.
var ErrQueueFull = errors.New("pending queue full")

// PendingCallStore holds requests addressed to staff who are offline, FIFO
// per staff id, delivered exactly once on their next connection.
type PendingCallStore struct {
	mu     sync.Mutex
	queues map[domain.StaffID][]*domain.CallRequest
	cap    int
}

// NewPendingCallStore caps each staff queue at perStaffCap; zero or negative
// means unbounded.
func NewPendingCallStore(perStaffCap int) *PendingCallStore {
	return &PendingCallStore{
		queues: make(map[domain.StaffID][]*domain.CallRequest),
		cap:    perStaffCap,
	}
}

func (s *PendingCallStore) Enqueue(staffID domain.StaffID, req *domain.CallRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[staffID]
	if s.cap > 0 && len(q) >= s.cap {
		return ErrQueueFull
	}
	s.queues[staffID] = append(q, req)
	log.Info().Str("module", "app.pending").
		Str("staff", string(staffID)).
		Str("request", string(req.ID)).
		Int("depth", len(q)+1).
		Msg("queued request")
	return nil
}

// DrainFor atomically removes and returns all queued requests for a staff id,
// oldest first. A second drain without intervening enqueues returns nothing.
func (s *PendingCallStore) DrainFor(staffID domain.StaffID) []*domain.CallRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[staffID]
	if len(q) == 0 {
		return nil
	}
	delete(s.queues, staffID)
	log.Info().Str("module", "app.pending").Str("staff", string(staffID)).Int("count", len(q)).Msg("drained requests")
	return q
}

// Snapshot copies the queue without consuming it, for dashboard listings.
func (s *PendingCallStore) Snapshot(staffID domain.StaffID) []domain.CallRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[staffID]
	out := make([]domain.CallRequest, 0, len(q))
	for _, r := range q {
		out = append(out, *r)
	}
	return out
}

func (s *PendingCallStore) Len(staffID domain.StaffID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[staffID])
}

package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/staffdesk/Consult/internal/archive"
	"github.com/staffdesk/Consult/internal/core"
	"github.com/staffdesk/Consult/internal/domain"
	"github.com/staffdesk/Consult/internal/metrics"
)

// fakeConn records every frame pushed at it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return core.ErrBackpressure
	}
	cp := make(core.Frame, len(f))
	copy(cp, f)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// events decodes every received frame into a generic map.
func (c *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) eventTypes(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, e := range c.events(t) {
		out = append(out, e["type"].(string))
	}
	return out
}

func (c *fakeConn) lastEvent(t *testing.T) map[string]any {
	t.Helper()
	evs := c.events(t)
	require.NotEmpty(t, evs)
	return evs[len(evs)-1]
}

func (c *fakeConn) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func testStaff() []domain.Staff {
	return []domain.Staff{
		{ID: "staff-anna", Code: "AN", Name: "Anna Keller", Email: "anna@consult.example", Available: true},
		{ID: "staff-omar", Code: "OM", Name: "Omar Haddad", Email: "omar@consult.example", Available: true},
		{ID: "staff-lena", Code: "LE", Name: "Lena Brandt", Email: "lena@consult.example", Available: false},
	}
}

type fixture struct {
	coord    *Coordinator
	registry *Registry
	pending  *PendingCallStore
	sessions *CallSessionTable
	relay    *SignalingRelay
	sink     *archive.MemoryArchive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	reg := NewRegistry()
	pending := NewPendingCallStore(8)
	sessions := NewCallSessionTable()
	dir := NewDirectory(testStaff())
	sink := archive.NewMemoryArchive()
	coord := NewCoordinator(reg, pending, sessions, dir, sink, m)
	reg.SetOnStaffOffline(coord.OnStaffOffline)
	return &fixture{
		coord:    coord,
		registry: reg,
		pending:  pending,
		sessions: sessions,
		relay:    NewSignalingRelay(sessions, reg, m),
		sink:     sink,
	}
}

// connect binds a fresh fake connection under the given id.
func (f *fixture) connect(id core.ConnID) *fakeConn {
	c := &fakeConn{}
	_, cancel := context.WithCancel(context.Background())
	f.registry.Bind(id, c, cancel)
	return c
}

// connectStaff binds a connection and logs the staff member in.
func (f *fixture) connectStaff(t *testing.T, id core.ConnID, staffID domain.StaffID) *fakeConn {
	t.Helper()
	c := f.connect(id)
	staff, ok := f.coord.Directory.Get(string(staffID))
	require.True(t, ok)
	require.NoError(t, f.registry.RegisterStaff(id, &staff))
	f.coord.OnStaffConnected(staffID)
	return c
}

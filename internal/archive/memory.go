package archive

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// MemoryArchive keeps completed-call records in memory. Good enough for a
// single-node deployment and for tests.
type MemoryArchive struct {
	mu      sync.Mutex
	records []CallRecord
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{}
}

func (a *MemoryArchive) Record(rec CallRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	log.Info().Str("module", "archive").
		Str("session", string(rec.SessionID)).
		Str("staff", string(rec.StaffID)).
		Dur("duration", rec.Duration).
		Str("reason", rec.Reason).
		Msg("call recorded")
	return nil
}

func (a *MemoryArchive) Records() []CallRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]CallRecord, len(a.records))
	copy(out, a.records)
	return out
}

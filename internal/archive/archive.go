// Package archive is the persistence sink for completed calls. The coordinator
// only sees the CallArchiver interface; a durable implementation (database,
// queue) plugs in behind it.
package archive

import (
	"time"

	"github.com/staffdesk/Consult/internal/core"
	"github.com/staffdesk/Consult/internal/domain"
)

type CallRecord struct {
	SessionID  core.SessionID `json:"session_id"`
	StaffID    domain.StaffID `json:"staff_id"`
	ClientName string         `json:"client_name,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	Duration   time.Duration  `json:"duration"`
	Reason     string         `json:"reason,omitempty"`
}

type CallArchiver interface {
	Record(rec CallRecord) error
}

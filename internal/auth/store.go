// Package auth holds the identity side of staff login: a credential store
// resolving email/password to a stable staff id, and a token manager so a
// dashboard can prove who it is after a reconnect.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/staffdesk/Consult/internal/domain"
)

var ErrBadCredentials = errors.New("invalid email or password")

// CredentialStore authenticates a staff login. The coordinator core only
// depends on this interface; a database-backed implementation plugs in here.
type CredentialStore interface {
	Authenticate(email, password string) (*domain.Staff, error)
}

// MemoryStore authenticates against the static directory from config.
type MemoryStore struct {
	byEmail map[string]domain.Staff
}

func NewMemoryStore(staff []domain.Staff) *MemoryStore {
	s := &MemoryStore{byEmail: make(map[string]domain.Staff, len(staff))}
	for _, st := range staff {
		s.byEmail[strings.ToLower(st.Email)] = st
	}
	return s
}

func (s *MemoryStore) Authenticate(email, password string) (*domain.Staff, error) {
	st, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrBadCredentials
	}
	if subtle.ConstantTimeCompare([]byte(st.Password), []byte(password)) != 1 {
		return nil, ErrBadCredentials
	}
	out := st
	return &out, nil
}

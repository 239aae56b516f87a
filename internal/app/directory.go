package app

import (
	"strings"
	"sync"

	"github.com/staffdesk/Consult/internal/domain"
)

// Directory is the static staff roster with a runtime availability flag.
// Resolution is best-effort and must degrade to "not found" rather than
// silently picking a wrong match.
type Directory struct {
	mu    sync.RWMutex
	staff []domain.Staff
	byKey map[string]int
}

func NewDirectory(staff []domain.Staff) *Directory {
	d := &Directory{
		staff: make([]domain.Staff, len(staff)),
		byKey: make(map[string]int),
	}
	copy(d.staff, staff)
	for i := range d.staff {
		s := &d.staff[i]
		s.Email = strings.ToLower(s.Email)
		d.byKey[string(s.ID)] = i
		if s.Code != "" {
			d.byKey[s.Code] = i
		}
		if s.Email != "" {
			d.byKey[s.Email] = i
		}
	}
	return d
}

// Get looks up an exact key: directory id, short code, or email.
func (d *Directory) Get(key string) (domain.Staff, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i, ok := d.byKey[strings.ToLower(strings.TrimSpace(key))]; ok {
		return d.staff[i], true
	}
	if i, ok := d.byKey[strings.TrimSpace(key)]; ok {
		return d.staff[i], true
	}
	return domain.Staff{}, false
}

// Resolve fuzzy-matches a human query (partial name or email) to one staff
// member. Exact keys win; otherwise a normalized substring match must hit
// exactly one entry, or resolution fails.
func (d *Directory) Resolve(query string) (domain.StaffID, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "", false
	}
	if s, ok := d.Get(q); ok {
		return s.ID, true
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	var hit domain.StaffID
	count := 0
	for i := range d.staff {
		s := &d.staff[i]
		if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(s.Email, q) {
			hit = s.ID
			count++
		}
	}
	if count != 1 {
		return "", false
	}
	return hit, true
}

// SetAvailable toggles whether a staff member is taking calls.
func (d *Directory) SetAvailable(id domain.StaffID, available bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.byKey[string(id)]
	if !ok {
		return false
	}
	d.staff[i].Available = available
	return true
}

// List returns a copy of the roster for the public directory endpoint.
func (d *Directory) List() []domain.Staff {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Staff, len(d.staff))
	copy(out, d.staff)
	return out
}

// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"strings"
)

const (
	MaxStaffNameLen  = 64
	MaxStaffEmailLen = 128
)

var (
	ErrStaffNameEmpty   = errors.New("staff name empty")
	ErrStaffNameTooLong = errors.New("staff name too long")
	ErrStaffEmailEmpty  = errors.New("staff email empty")
)

type StaffID string

// Staff is one entry of the static directory. ID is the canonical key;
// Code is a short human-facing alias that resolves to the same presence slot.
type Staff struct {
	ID        StaffID `json:"id" mapstructure:"id"`
	Code      string  `json:"code" mapstructure:"code"`
	Name      string  `json:"name" mapstructure:"name"`
	Email     string  `json:"email" mapstructure:"email"`
	Password  string  `json:"-" mapstructure:"password"`
	Available bool    `json:"available" mapstructure:"available"`
}

// Aliases returns every key this staff member may be addressed by.
// Presence registration and removal must cover all of them together.
func (s *Staff) Aliases() []string {
	out := []string{string(s.ID)}
	if s.Code != "" && s.Code != string(s.ID) {
		out = append(out, s.Code)
	}
	return out
}

func NewStaff(id StaffID, name, email string) (*Staff, error) {
	if name == "" {
		return nil, ErrStaffNameEmpty
	}
	if len(name) > MaxStaffNameLen {
		return nil, ErrStaffNameTooLong
	}
	if email == "" {
		return nil, ErrStaffEmailEmpty
	}
	return &Staff{ID: id, Name: name, Email: strings.ToLower(email)}, nil
}

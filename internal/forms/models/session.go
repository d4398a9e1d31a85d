package models

import (
	"sync/atomic"
	"time"

	"fishtank/pkg/domain"
)

// Session is one mounted form instance.
type Session struct {
	InstanceID domain.InstanceID
	Form       FormName
	MountedAt  time.Time
	ExpiresAt  time.Time
	State      *FormState

	inFlight atomic.Bool
}

func NewSession(id domain.InstanceID, form FormName, role Role, mountedAt time.Time, ttl time.Duration) *Session {
	return &Session{
		InstanceID: id,
		Form:       form,
		MountedAt:  mountedAt,
		ExpiresAt:  mountedAt.Add(ttl),
		State:      NewFormState(role),
	}
}

// TryBegin claims the single dispatch slot. It returns false while another
// submission of this instance is pending.
func (s *Session) TryBegin() bool {
	return s.inFlight.CompareAndSwap(false, true)
}

// End releases the slot claimed by TryBegin.
func (s *Session) End() {
	s.inFlight.Store(false)
}

func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

package session

import (
	"time"

	"sessioncore/identity"
)

// Validator is the pure accept/reject decision for a session record and its
// metadata. Accepting a session stamps its activity record so that a session
// being checked (e.g. on startup) is not punished for the check itself.
type Validator struct {
	store   Store
	timeout time.Duration
}

// NewValidator creates a Validator over the given metadata store.
// A zero timeout means InactivityTimeout.
func NewValidator(store Store, timeout time.Duration) *Validator {
	if timeout == 0 {
		timeout = InactivityTimeout
	}
	return &Validator{store: store, timeout: timeout}
}

// Validate returns nil if the session is usable at instant now, ErrExpired if
// its expiry has passed, and ErrInactive if the owning identity has been idle
// too long or has no metadata record (absence fails closed). On acceptance it
// advances LastActive to now as a side effect.
//
// Expiry is checked before inactivity: an expired session is rejected
// regardless of how recently its owner was active.
func (v *Validator) Validate(record *identity.Session, now time.Time) error {
	if record == nil {
		return ErrInactive
	}
	if now.After(record.ExpiresAt) {
		return ErrExpired
	}
	meta, ok := v.store.Get(record.UserID)
	if !ok {
		return ErrInactive
	}
	if IsInactive(meta, now, v.timeout) {
		return ErrInactive
	}
	v.store.Touch(record.UserID, now)
	return nil
}

// Valid is the boolean form of Validate.
func (v *Validator) Valid(record *identity.Session, now time.Time) bool {
	return v.Validate(record, now) == nil
}

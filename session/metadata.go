// Package session holds the metadata store and validation logic that decide
// whether a previously established login is still usable.
package session

import (
	"errors"
	"time"
)

const (
	// InactivityTimeout is the maximum allowed gap between user-interaction
	// signals before a session is treated as unusable.
	InactivityTimeout = 30 * time.Minute

	// metadataBucket is the storage bucket holding one record per identity id.
	metadataBucket = "session_metadata"

	metadataKeyPrefix = "session_"
)

var (
	// ErrExpired indicates the session's expiry instant has passed.
	ErrExpired = errors.New("session expired")
	// ErrInactive indicates the identity has been idle longer than
	// InactivityTimeout, or has no metadata record at all (fail closed).
	ErrInactive = errors.New("session inactive")
)

// Metadata is the per-identity activity record. It exists for an identity id
// exactly while that identity has an accepted session.
type Metadata struct {
	UserID         string         `json:"user_id"`
	LastActive     time.Time      `json:"last_active"`
	UserAgent      string         `json:"user_agent,omitempty"`
	DeviceInfo     string         `json:"device_info,omitempty"`
	Email          string         `json:"email,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
}

// MetadataKey derives the deterministic storage key for an identity id.
func MetadataKey(userID string) string {
	return metadataKeyPrefix + userID
}

// IsInactive reports whether the metadata's last activity is longer ago than
// timeout. The boundary is exclusive: exactly timeout ago is still active.
func IsInactive(meta Metadata, now time.Time, timeout time.Duration) bool {
	return now.Sub(meta.LastActive) > timeout
}

// Store is the narrow persistence surface for metadata records. Every
// operation fails soft: storage denial degrades to "not found" / no-op
// rather than an error, because a login must never hard-crash on storage.
type Store interface {
	// Get returns the metadata for an identity id, or false if absent or
	// unreadable.
	Get(userID string) (Metadata, bool)
	// Put creates or replaces the metadata record.
	Put(meta Metadata)
	// Touch advances LastActive to now for an existing record. It never
	// moves LastActive backwards and never creates a record: a stale stamp
	// arriving after termination must not resurrect the entry.
	Touch(userID string, now time.Time)
	// Delete removes the record. Safe to call when absent.
	Delete(userID string)
}

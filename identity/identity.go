// Package identity defines the contract the session core consumes from an
// identity provider: session retrieval, change notifications, credential
// refresh, and the thin sign-in/up/out request operations.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials indicates a sign-in attempt with a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists indicates a sign-up attempt for an already registered email.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound indicates no account exists for the given email or id.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoSession indicates an operation that needs an established session was
	// called without one.
	ErrNoSession = errors.New("no active session")
	// ErrRefreshFailed wraps transport or credential errors from a refresh
	// attempt. Refresh failures are transient: the session stays alive until
	// the next validation pass decides otherwise.
	ErrRefreshFailed = errors.New("session refresh failed")
	// ErrNotSupported indicates the provider does not implement the requested
	// account operation (e.g. sign-up against a hosted issuer that manages
	// accounts itself).
	ErrNotSupported = errors.New("operation not supported by provider")
)

// Role is a user's coarse authorization level.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User is the profile attached to an authenticated identity.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     Role   `json:"role"`
}

// Session is the opaque credential issued by the provider, paired with its
// expiry instant and owning identity. The core only reads it; the provider
// owns its lifecycle.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EventKind classifies a session-change notification.
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
	EventRefreshed EventKind = "refreshed"
	EventUpdated   EventKind = "updated"
)

// Event is a push notification emitted by a provider when its session changes.
// Session is nil for EventSignedOut.
type Event struct {
	Kind    EventKind
	Session *Session
}

// SignOutScope selects how far a sign-out reaches.
type SignOutScope string

const (
	// SignOutLocal terminates only the session held by this process.
	SignOutLocal SignOutScope = "local"
	// SignOutGlobal asks the provider to revoke the identity's sessions everywhere.
	SignOutGlobal SignOutScope = "global"
)

// Provider is the identity collaborator. Implementations must be safe for
// concurrent use; event callbacks may be invoked from any goroutine.
type Provider interface {
	// GetSession returns the currently established session, or nil if none.
	GetSession(ctx context.Context) (*Session, error)

	// OnSessionChange registers a callback for sign-in/out/refresh/update
	// events and returns a cancel function that unregisters it. Cancel is
	// idempotent.
	OnSessionChange(fn func(Event)) (cancel func())

	// Refresh exchanges the current credential for a renewed one.
	Refresh(ctx context.Context) (*Session, error)

	// GetUser fetches the profile for an identity id.
	GetUser(ctx context.Context, id string) (*User, error)

	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, profile map[string]string) (*Session, error)
	SignOut(ctx context.Context, scope SignOutScope) error
	ResetPassword(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, newPassword string) error
}

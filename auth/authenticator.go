// Package auth is the top-level session state holder: it merges identity
// provider events, validator decisions and consumer intents into one
// coherent snapshot, and owns the arming and teardown of the activity
// tracker and refresh scheduler.
package auth

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"sessioncore/activity"
	"sessioncore/identity"
	"sessioncore/refresh"
	"sessioncore/session"
)

// State is the authenticator's externally observable lifecycle phase.
// Inactivity is not a state of its own: an idle session fails validation
// and routes straight back to StateUnauthenticated.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateValid           State = "valid"
)

// Snapshot is the externally visible auth state. IsAdmin is always derived
// from User.Role, never stored independently.
type Snapshot struct {
	User      *identity.User    `json:"user"`
	Session   *identity.Session `json:"session"`
	IsLoading bool              `json:"is_loading"`
	IsAdmin   bool              `json:"is_admin"`
}

// Update is one notification to snapshot subscribers. RefreshErr carries a
// transient refresh failure the user should see; the snapshot itself is
// unchanged in that case.
type Update struct {
	Snapshot   Snapshot `json:"snapshot"`
	RefreshErr string   `json:"refresh_err,omitempty"`
}

const sweepInterval = 5 * time.Minute

// Authenticator is the session state machine. Construct with New, wire with
// Start, release with Close.
type Authenticator struct {
	provider  identity.Provider
	metadata  session.Store
	validator *session.Validator
	bus       *activity.Bus
	tracker   *activity.Tracker
	scheduler *refresh.Scheduler
	audit     *auditLogger
	now       func() time.Time
	userAgent string

	mu             sync.Mutex
	state          State
	snap           Snapshot
	cancelProvider func()
	sweeping       bool

	subMu     sync.Mutex
	nextSubID int
	subs      map[int]chan Update

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the structured logger for session lifecycle events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		a.audit = newAuditLogger(logger)
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// WithUserAgent sets the user-agent string recorded on metadata records.
func WithUserAgent(ua string) Option {
	return func(a *Authenticator) {
		a.userAgent = ua
	}
}

// WithInactivityTimeout overrides session.InactivityTimeout.
func WithInactivityTimeout(timeout time.Duration) Option {
	return func(a *Authenticator) {
		a.validator = session.NewValidator(a.metadata, timeout)
	}
}

// New creates an Authenticator in StateUnauthenticated.
func New(provider identity.Provider, metadata session.Store, bus *activity.Bus, opts ...Option) *Authenticator {
	a := &Authenticator{
		provider: provider,
		metadata: metadata,
		bus:      bus,
		now:      time.Now,
		state:    StateUnauthenticated,
		subs:     make(map[int]chan Update),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.validator == nil {
		a.validator = session.NewValidator(metadata, 0)
	}
	a.tracker = activity.NewTracker(metadata, activity.WithClock(func() time.Time { return a.now() }))
	a.scheduler = refresh.NewScheduler(provider.Refresh, nil, a.handleRefreshError)
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Start subscribes to provider events and, if the provider already holds a
// session (e.g. one that survived a restart), runs it through validation.
func (a *Authenticator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.cancelProvider == nil {
		a.cancelProvider = a.provider.OnSessionChange(a.handleEvent)
	}
	a.mu.Unlock()

	rec, err := a.provider.GetSession(ctx)
	if err != nil {
		return err
	}
	if rec != nil {
		// Resuming: metadata must already exist or validation fails closed.
		a.accept(ctx, rec, false)
	}

	a.mu.Lock()
	if !a.sweeping {
		a.sweeping = true
		go a.sweepLoop()
	}
	a.mu.Unlock()
	return nil
}

// Close releases the provider subscription, tears down any active session
// state and stops background work. Idempotent.
func (a *Authenticator) Close() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
	a.mu.Lock()
	cancel := a.cancelProvider
	a.cancelProvider = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.teardown("closed")
}

// CurrentState returns the current lifecycle phase.
func (a *Authenticator) CurrentState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Snapshot returns a copy of the externally visible auth state.
func (a *Authenticator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copySnapshot(a.snap)
}

func copySnapshot(s Snapshot) Snapshot {
	out := Snapshot{IsLoading: s.IsLoading, IsAdmin: s.IsAdmin}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Session != nil {
		sess := *s.Session
		out.Session = &sess
	}
	return out
}

// Subscribe returns a channel of snapshot updates and an idempotent cancel.
// Slow consumers miss intermediate updates rather than blocking the core.
func (a *Authenticator) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 8)
	a.subMu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subs[id] = ch
	a.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			close(ch)
			a.subMu.Unlock()
		})
	}
}

func (a *Authenticator) publish(u Update) {
	a.subMu.Lock()
	for _, ch := range a.subs {
		select {
		case ch <- u:
		default:
		}
	}
	a.subMu.Unlock()
}

func (a *Authenticator) publishSnapshot() {
	a.publish(Update{Snapshot: a.Snapshot()})
}

// SignIn authenticates against the provider. The resulting session flows in
// through the provider's event stream, so on return the snapshot is already
// populated (or the error explains why not).
func (a *Authenticator) SignIn(ctx context.Context, email, password string) error {
	a.setLoading(true)
	_, err := a.provider.SignIn(ctx, email, password)
	if err != nil {
		a.setLoading(false)
		a.audit.logReason(AuditSignInFailed, "", err.Error())
		return err
	}
	return nil
}

// SignUp registers a new account and signs it in.
func (a *Authenticator) SignUp(ctx context.Context, email, password string, profile map[string]string) error {
	a.setLoading(true)
	_, err := a.provider.SignUp(ctx, email, password, profile)
	if err != nil {
		a.setLoading(false)
		a.audit.logReason(AuditSignUpFailed, "", err.Error())
		return err
	}
	return nil
}

// SignOut terminates the session with the provider and locally. Local
// teardown happens even when the provider call fails: a sign-out must never
// leave the core armed.
func (a *Authenticator) SignOut(ctx context.Context) error {
	err := a.provider.SignOut(ctx, identity.SignOutLocal)
	a.teardown("signed_out")
	return err
}

// ResetPassword forwards to the provider.
func (a *Authenticator) ResetPassword(ctx context.Context, email string) error {
	return a.provider.ResetPassword(ctx, email)
}

// UpdatePassword forwards to the provider.
func (a *Authenticator) UpdatePassword(ctx context.Context, newPassword string) error {
	return a.provider.UpdatePassword(ctx, newPassword)
}

// RequestRefresh triggers a guarded refresh attempt outside the scheduler's
// timer (manual action, tab refocus). Shares the scheduler's minimum-interval
// guard so external triggers and the timer never pile up.
func (a *Authenticator) RequestRefresh(ctx context.Context) {
	a.scheduler.Attempt(ctx)
}

// ReportVisibility forwards a visibility transition to the tracker. Only
// the foreground edge stamps activity; nothing is re-fetched or reloaded
// and no snapshot update is published.
func (a *Authenticator) ReportVisibility(visible bool) {
	a.tracker.SetVisible(visible)
}

// Revalidate runs a validation pass over the current session. An accepted
// pass stamps activity (checking a session must not count against it); a
// rejected pass tears everything down. Returns whether a valid session
// remains.
func (a *Authenticator) Revalidate(ctx context.Context) bool {
	a.mu.Lock()
	if a.state != StateValid {
		a.mu.Unlock()
		return false
	}
	rec := a.snap.Session
	a.mu.Unlock()

	if err := a.validator.Validate(rec, a.now()); err != nil {
		a.audit.logReason(AuditSessionInvalidated, rec.UserID, err.Error())
		a.teardown(err.Error())
		return false
	}
	a.audit.log(AuditSessionValidated, rec.UserID)
	return true
}

func (a *Authenticator) setLoading(loading bool) {
	a.mu.Lock()
	changed := a.snap.IsLoading != loading
	a.snap.IsLoading = loading
	if loading && a.state == StateUnauthenticated {
		a.state = StateAuthenticating
	}
	if !loading && a.state == StateAuthenticating {
		a.state = StateUnauthenticated
	}
	a.mu.Unlock()
	if changed {
		a.publishSnapshot()
	}
}

func (a *Authenticator) handleEvent(e identity.Event) {
	switch e.Kind {
	case identity.EventSignedIn:
		a.accept(context.Background(), e.Session, true)
	case identity.EventRefreshed, identity.EventUpdated:
		a.replaceSession(e.Session)
	case identity.EventSignedOut:
		a.teardown("signed_out")
	}
}

// accept runs a raw session through validation and, on success, atomically
// arms the tracker, starts the scheduler and populates the snapshot. On
// rejection everything is torn down.
func (a *Authenticator) accept(ctx context.Context, rec *identity.Session, initialize bool) {
	if rec == nil {
		return
	}
	now := a.now()

	if initialize {
		meta, ok := a.metadata.Get(rec.UserID)
		if !ok {
			meta = session.Metadata{UserID: rec.UserID}
			a.audit.log(AuditSessionCreated, rec.UserID)
		}
		// Signing in is itself user activity: a stale stamp left over from
		// an idle prior session must not get a fresh credential rejected.
		meta.LastActive = now
		meta.UserAgent = a.userAgent
		a.metadata.Put(meta)
	}

	if err := a.validator.Validate(rec, now); err != nil {
		a.audit.logReason(AuditSessionInvalidated, rec.UserID, err.Error())
		a.teardown(err.Error())
		return
	}

	user, err := a.provider.GetUser(ctx, rec.UserID)
	if err != nil {
		// Profile fetch failure degrades to an id-only user; the session
		// itself has already been accepted.
		user = &identity.User{ID: rec.UserID}
	}

	if meta, ok := a.metadata.Get(rec.UserID); ok && meta.Email != user.Email {
		meta.Email = user.Email
		a.metadata.Put(meta)
	}

	a.mu.Lock()
	a.tracker.Arm(a.bus, rec.UserID)
	a.scheduler.Start()
	a.state = StateValid
	a.snap = Snapshot{
		User:      user,
		Session:   rec,
		IsLoading: false,
		IsAdmin:   user.Role == identity.RoleAdmin,
	}
	a.mu.Unlock()

	a.publishSnapshot()
	a.audit.log(AuditSessionValidated, rec.UserID)
}

// replaceSession swaps the credential in place after a successful refresh.
// No state transition, no re-arming: only the session field and the
// activity stamp move.
func (a *Authenticator) replaceSession(rec *identity.Session) {
	if rec == nil {
		return
	}
	a.mu.Lock()
	if a.state != StateValid || a.snap.Session == nil || a.snap.Session.UserID != rec.UserID {
		a.mu.Unlock()
		return
	}
	a.snap.Session = rec
	a.mu.Unlock()

	a.metadata.Touch(rec.UserID, a.now())
	a.publishSnapshot()
	a.audit.log(AuditSessionRefreshed, rec.UserID)
}

// teardown disarms the tracker, stops the scheduler, deletes the metadata
// record and resets the snapshot. Idempotent, and safe against listeners
// firing mid-teardown: the tracker refuses to stamp once disarmed and the
// store refuses to resurrect a deleted record.
func (a *Authenticator) teardown(reason string) {
	a.mu.Lock()
	var userID string
	if a.snap.Session != nil {
		userID = a.snap.Session.UserID
	}
	already := a.state == StateUnauthenticated && a.snap.Session == nil && !a.snap.IsLoading
	a.state = StateUnauthenticated
	a.snap = Snapshot{}
	a.mu.Unlock()

	a.tracker.Disarm()
	a.scheduler.Stop()
	if userID != "" {
		a.metadata.Delete(userID)
		a.audit.logReason(AuditSessionTerminated, userID, reason)
	}
	if !already {
		a.publishSnapshot()
	}
}

// handleRefreshError surfaces a transient refresh failure without touching
// the session: only the next validation pass may terminate it.
func (a *Authenticator) handleRefreshError(err error) {
	a.mu.Lock()
	var userID string
	if a.snap.Session != nil {
		userID = a.snap.Session.UserID
	}
	a.mu.Unlock()

	a.audit.logReason(AuditRefreshFailed, userID, err.Error())
	a.publish(Update{Snapshot: a.Snapshot(), RefreshErr: err.Error()})
}

// sweepLoop periodically deletes metadata records whose identity no longer
// has an accepted session, and revalidates the current one.
func (a *Authenticator) sweepLoop() {
	lister, ok := a.metadata.(interface{ List() []string })
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.Revalidate(context.Background())
			if !ok {
				continue
			}
			a.mu.Lock()
			var current string
			if a.snap.Session != nil {
				current = a.snap.Session.UserID
			}
			a.mu.Unlock()
			for _, id := range lister.List() {
				if id != current {
					a.metadata.Delete(id)
				}
			}
		}
	}
}

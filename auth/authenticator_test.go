package auth

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessioncore/activity"
	"sessioncore/identity"
	"sessioncore/session"
	"sessioncore/storage/memory"
)

// fakeProvider is a scriptable identity.Provider.
type fakeProvider struct {
	mu         sync.Mutex
	current    *identity.Session
	user       *identity.User
	nextSubID  int
	subs       map[int]func(identity.Event)
	refreshErr error
	tokenSeq   int
	expiry     time.Duration
	now        func() time.Time
}

func newFakeProvider(now func() time.Time) *fakeProvider {
	return &fakeProvider{
		user:   &identity.User{ID: "u1", Email: "u1@example.com", Role: identity.RoleAdmin},
		subs:   make(map[int]func(identity.Event)),
		expiry: time.Hour,
		now:    now,
	}
}

func (f *fakeProvider) emit(e identity.Event) {
	f.mu.Lock()
	fns := make([]func(identity.Event), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

func (f *fakeProvider) newSession() *identity.Session {
	f.tokenSeq++
	return &identity.Session{
		Token:     "tok-" + string(rune('a'+f.tokenSeq)),
		UserID:    f.user.ID,
		ExpiresAt: f.now().Add(f.expiry),
	}
}

func (f *fakeProvider) GetSession(context.Context) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil, nil
	}
	copied := *f.current
	return &copied, nil
}

func (f *fakeProvider) OnSessionChange(fn func(identity.Event)) func() {
	f.mu.Lock()
	id := f.nextSubID
	f.nextSubID++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeProvider) Refresh(context.Context) (*identity.Session, error) {
	f.mu.Lock()
	if f.refreshErr != nil {
		err := f.refreshErr
		f.mu.Unlock()
		return nil, err
	}
	sess := f.newSession()
	f.current = sess
	f.mu.Unlock()
	f.emit(identity.Event{Kind: identity.EventRefreshed, Session: sess})
	return sess, nil
}

func (f *fakeProvider) GetUser(_ context.Context, id string) (*identity.User, error) {
	if id != f.user.ID {
		return nil, identity.ErrUserNotFound
	}
	copied := *f.user
	return &copied, nil
}

func (f *fakeProvider) SignIn(_ context.Context, email, password string) (*identity.Session, error) {
	if password != "good password" {
		return nil, identity.ErrInvalidCredentials
	}
	f.mu.Lock()
	sess := f.newSession()
	f.current = sess
	f.mu.Unlock()
	f.emit(identity.Event{Kind: identity.EventSignedIn, Session: sess})
	return sess, nil
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password string, _ map[string]string) (*identity.Session, error) {
	return f.SignIn(ctx, email, "good password")
}

func (f *fakeProvider) SignOut(context.Context, identity.SignOutScope) error {
	f.mu.Lock()
	f.current = nil
	f.mu.Unlock()
	f.emit(identity.Event{Kind: identity.EventSignedOut})
	return nil
}

func (f *fakeProvider) ResetPassword(context.Context, string) error  { return nil }
func (f *fakeProvider) UpdatePassword(context.Context, string) error { return nil }

var _ identity.Provider = (*fakeProvider)(nil)

type fixture struct {
	auth     *Authenticator
	provider *fakeProvider
	store    *session.MetadataStore
	bus      *activity.Bus
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Now().UTC()
	clock := &now
	store := session.NewMetadataStore(memory.NewRepository())
	bus := activity.NewBus()
	provider := newFakeProvider(func() time.Time { return *clock })

	a := New(provider, store, bus,
		WithClock(func() time.Time { return *clock }),
		WithUserAgent("sessiond-test/1.0"),
	)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Close)

	return &fixture{auth: a, provider: provider, store: store, bus: bus, clock: clock}
}

func (fx *fixture) signIn(t *testing.T) {
	t.Helper()
	require.NoError(t, fx.auth.SignIn(context.Background(), "u1@example.com", "good password"))
}

func (fx *fixture) advance(d time.Duration) {
	*fx.clock = fx.clock.Add(d)
}

func TestSignInPopulatesSnapshotAndArms(t *testing.T) {
	fx := newFixture(t)
	fx.signIn(t)

	assert.Equal(t, StateValid, fx.auth.CurrentState())

	snap := fx.auth.Snapshot()
	require.NotNil(t, snap.User)
	require.NotNil(t, snap.Session)
	assert.Equal(t, "u1", snap.User.ID)
	assert.True(t, snap.IsAdmin)
	assert.False(t, snap.IsLoading)

	// Tracker armed: one listener per signal class.
	for _, kind := range activity.Signals {
		assert.Equal(t, 1, fx.bus.SubscriberCount(kind))
	}

	meta, ok := fx.store.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "u1@example.com", meta.Email)
	assert.Equal(t, "sessiond-test/1.0", meta.UserAgent)
}

func TestSignInFailureResetsLoading(t *testing.T) {
	fx := newFixture(t)

	err := fx.auth.SignIn(context.Background(), "u1@example.com", "bad password")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	assert.Equal(t, StateUnauthenticated, fx.auth.CurrentState())
	assert.False(t, fx.auth.Snapshot().IsLoading)
}

func TestIsAdminDerivedFromRole(t *testing.T) {
	fx := newFixture(t)
	fx.provider.user.Role = identity.RoleMember
	fx.signIn(t)

	assert.False(t, fx.auth.Snapshot().IsAdmin)
}

func TestSignOutTearsDown(t *testing.T) {
	fx := newFixture(t)
	fx.signIn(t)

	require.NoError(t, fx.auth.SignOut(context.Background()))

	assert.Equal(t, StateUnauthenticated, fx.auth.CurrentState())
	snap := fx.auth.Snapshot()
	assert.Nil(t, snap.User)
	assert.Nil(t, snap.Session)
	assert.False(t, snap.IsAdmin)

	_, ok := fx.store.Get("u1")
	assert.False(t, ok)
	for _, kind := range activity.Signals {
		assert.Zero(t, fx.bus.SubscriberCount(kind))
	}

	// Teardown is idempotent.
	require.NoError(t, fx.auth.SignOut(context.Background()))
}

func TestIdleSessionRejectedOnRevalidate(t *testing.T) {
	// Accepted at t0, no activity, validation pass at t0+31m.
	fx := newFixture(t)
	fx.signIn(t)

	fx.advance(31 * time.Minute)
	assert.False(t, fx.auth.Revalidate(context.Background()))

	assert.Equal(t, StateUnauthenticated, fx.auth.CurrentState())
	assert.Nil(t, fx.auth.Snapshot().Session)
	_, ok := fx.store.Get("u1")
	assert.False(t, ok)
}

func TestActivityExtendsSession(t *testing.T) {
	// Activity at t0+29m keeps a validation pass at t0+31m green.
	fx := newFixture(t)
	fx.signIn(t)

	fx.advance(29 * time.Minute)
	fx.bus.Publish(activity.SignalKeyPress)

	fx.advance(2 * time.Minute)
	assert.True(t, fx.auth.Revalidate(context.Background()))
	assert.Equal(t, StateValid, fx.auth.CurrentState())
}

func TestExpiredSessionRejectedDespiteActivity(t *testing.T) {
	fx := newFixture(t)
	fx.provider.expiry = 10 * time.Minute
	fx.signIn(t)

	fx.advance(5 * time.Minute)
	fx.bus.Publish(activity.SignalClick)

	fx.advance(6 * time.Minute)
	assert.False(t, fx.auth.Revalidate(context.Background()))
	assert.Equal(t, StateUnauthenticated, fx.auth.CurrentState())
}

func TestRevalidateStampsActivity(t *testing.T) {
	fx := newFixture(t)
	fx.signIn(t)

	fx.advance(20 * time.Minute)
	require.True(t, fx.auth.Revalidate(context.Background()))

	meta, ok := fx.store.Get("u1")
	require.True(t, ok)
	assert.WithinDuration(t, *fx.clock, meta.LastActive, time.Millisecond)
}

func TestRefreshReplacesSessionInPlace(t *testing.T) {
	fx := newFixture(t)
	fx.signIn(t)
	before := fx.auth.Snapshot()

	fx.advance(time.Minute)
	fx.auth.RequestRefresh(context.Background())

	after := fx.auth.Snapshot()
	assert.Equal(t, StateValid, fx.auth.CurrentState())
	assert.NotEqual(t, before.Session.Token, after.Session.Token)
	assert.Equal(t, before.User, after.User)

	meta, ok := fx.store.Get("u1")
	require.True(t, ok)
	assert.WithinDuration(t, *fx.clock, meta.LastActive, time.Millisecond)
}

func TestRefreshFailureIsTransient(t *testing.T) {
	fx := newFixture(t)
	fx.signIn(t)

	updates, cancel := fx.auth.Subscribe()
	defer cancel()

	fx.provider.refreshErr = errors.New("upstream down")
	fx.auth.RequestRefresh(context.Background())

	select {
	case u := <-updates:
		assert.Equal(t, "upstream down", u.RefreshErr)
		assert.NotNil(t, u.Snapshot.Session, "session survives a transient failure")
	case <-time.After(time.Second):
		t.Fatal("expected a refresh error update")
	}
	assert.Equal(t, StateValid, fx.auth.CurrentState())
}

func TestVisibilityStampsWithoutSnapshotChange(t *testing.T) {
	fx := newFixture(t)
	fx.signIn(t)

	updates, cancel := fx.auth.Subscribe()
	defer cancel()

	fx.advance(10 * time.Minute)
	fx.auth.ReportVisibility(false)
	fx.auth.ReportVisibility(true)

	meta, ok := fx.store.Get("u1")
	require.True(t, ok)
	assert.WithinDuration(t, *fx.clock, meta.LastActive, time.Millisecond)

	select {
	case u := <-updates:
		t.Fatalf("visibility must not publish snapshot updates, got %+v", u)
	default:
	}
	assert.Equal(t, StateValid, fx.auth.CurrentState())
}

func TestSubscribePublishesOnTransitions(t *testing.T) {
	fx := newFixture(t)
	updates, cancel := fx.auth.Subscribe()
	defer cancel()

	fx.signIn(t)

	var sawValid bool
	for done := false; !done; {
		select {
		case u := <-updates:
			if u.Snapshot.Session != nil {
				sawValid = true
				done = true
			}
		case <-time.After(time.Second):
			done = true
		}
	}
	assert.True(t, sawValid)

	cancel()
	cancel() // idempotent
}

func TestCloseIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	fx.signIn(t)

	fx.auth.Close()
	fx.auth.Close()

	assert.Equal(t, StateUnauthenticated, fx.auth.CurrentState())
	for _, kind := range activity.Signals {
		assert.Zero(t, fx.bus.SubscriberCount(kind))
	}
}

func TestStartResumesPersistedSession(t *testing.T) {
	now := time.Now().UTC()
	clock := &now
	store := session.NewMetadataStore(memory.NewRepository())
	bus := activity.NewBus()
	provider := newFakeProvider(func() time.Time { return *clock })
	provider.current = provider.newSession()
	store.Put(session.Metadata{UserID: "u1", LastActive: now.Add(-5 * time.Minute)})

	a := New(provider, store, bus, WithClock(func() time.Time { return *clock }))
	require.NoError(t, a.Start(context.Background()))
	defer a.Close()

	assert.Equal(t, StateValid, a.CurrentState())
	require.NotNil(t, a.Snapshot().Session)
}

func TestSignInAfterIdleGap(t *testing.T) {
	fx := newFixture(t)
	fx.signIn(t)

	// Go idle past the timeout without any validation pass catching it,
	// then authenticate again. The stale stamp must not shadow the fresh
	// sign-in: signing in is itself activity.
	fx.advance(31 * time.Minute)
	fx.signIn(t)

	assert.Equal(t, StateValid, fx.auth.CurrentState())
	require.NotNil(t, fx.auth.Snapshot().Session)

	meta, ok := fx.store.Get("u1")
	require.True(t, ok)
	assert.WithinDuration(t, *fx.clock, meta.LastActive, time.Millisecond)
}

func TestStartTwiceSpawnsOneSweeper(t *testing.T) {
	fx := newFixture(t)

	before := runtime.NumGoroutine()
	for i := 0; i < 5; i++ {
		require.NoError(t, fx.auth.Start(context.Background()))
	}
	// A leaked sweeper per Start would show up as five extra goroutines.
	assert.Less(t, runtime.NumGoroutine()-before, 5)
}

func TestStartRejectsStaleSession(t *testing.T) {
	// A surviving record without metadata fails closed.
	now := time.Now().UTC()
	clock := &now
	store := session.NewMetadataStore(memory.NewRepository())
	provider := newFakeProvider(func() time.Time { return *clock })
	provider.current = provider.newSession()

	a := New(provider, store, activity.NewBus(), WithClock(func() time.Time { return *clock }))
	require.NoError(t, a.Start(context.Background()))
	defer a.Close()

	assert.Equal(t, StateUnauthenticated, a.CurrentState())
	assert.Nil(t, a.Snapshot().Session)
}

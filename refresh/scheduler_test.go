package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessioncore/identity"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestScheduler(refresh func(ctx context.Context) (*identity.Session, error), onSuccess func(*identity.Session), onError func(error)) (*Scheduler, *fakeClock) {
	s := NewScheduler(refresh, onSuccess, onError)
	clock := &fakeClock{t: time.Now()}
	s.now = clock.now
	return s, clock
}

func TestGuardSkipsSecondAttempt(t *testing.T) {
	calls := 0
	s, clock := newTestScheduler(func(context.Context) (*identity.Session, error) {
		calls++
		return &identity.Session{Token: "new"}, nil
	}, nil, nil)

	assert.True(t, s.Attempt(context.Background()))
	clock.advance(10 * time.Second)
	assert.False(t, s.Attempt(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestGuardReopensAfterMinInterval(t *testing.T) {
	calls := 0
	s, clock := newTestScheduler(func(context.Context) (*identity.Session, error) {
		calls++
		return &identity.Session{Token: "new"}, nil
	}, nil, nil)

	s.Attempt(context.Background())
	clock.advance(MinInterval)
	assert.True(t, s.Attempt(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestFailureStillArmsGuard(t *testing.T) {
	calls := 0
	var surfaced error
	s, clock := newTestScheduler(func(context.Context) (*identity.Session, error) {
		calls++
		return nil, errors.New("upstream down")
	}, nil, func(err error) { surfaced = err })

	s.Attempt(context.Background())
	require.Error(t, surfaced)

	clock.advance(10 * time.Second)
	s.Attempt(context.Background())
	assert.Equal(t, 1, calls, "failed attempt must still arm the guard")
}

func TestSuccessDeliversRenewedSession(t *testing.T) {
	var got *identity.Session
	s, _ := newTestScheduler(func(context.Context) (*identity.Session, error) {
		return &identity.Session{Token: "renewed", UserID: "u1"}, nil
	}, func(sess *identity.Session) { got = sess }, nil)

	s.Attempt(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, "renewed", got.Token)
}

func TestStartStopIdempotent(t *testing.T) {
	s, _ := newTestScheduler(func(context.Context) (*identity.Session, error) {
		return &identity.Session{}, nil
	}, nil, nil)

	s.Start()
	s.Start()
	assert.True(t, s.Running())

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())

	// Stop before any Start is safe too.
	fresh, _ := newTestScheduler(func(context.Context) (*identity.Session, error) { return nil, nil }, nil, nil)
	fresh.Stop()
}

func TestStartAfterStop(t *testing.T) {
	s, _ := newTestScheduler(func(context.Context) (*identity.Session, error) {
		return &identity.Session{}, nil
	}, nil, nil)

	s.Start()
	s.Stop()
	s.Start()
	assert.True(t, s.Running())
	s.Stop()
}

// Package refresh periodically renews the session credential through the
// identity provider, guarded against piling on top of externally triggered
// refreshes.
package refresh

import (
	"context"
	"sync"
	"time"

	"sessioncore/identity"
)

const (
	// Period is the interval between scheduled refresh attempts.
	Period = 10 * time.Minute
	// MinInterval is the minimum gap between any two refresh attempts,
	// scheduled or externally triggered.
	MinInterval = 30 * time.Second
)

// Scheduler drives the recurring credential refresh. Start and Stop are
// idempotent; Attempt may also be called directly (tab refocus, manual
// action) and shares the same minimum-interval guard as the timer.
type Scheduler struct {
	refresh   func(ctx context.Context) (*identity.Session, error)
	onSuccess func(*identity.Session)
	onError   func(error)

	period      time.Duration
	minInterval time.Duration
	now         func() time.Time

	mu          sync.Mutex
	lastAttempt time.Time
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewScheduler creates a stopped Scheduler. refresh performs the provider
// call; onSuccess receives each renewed session; onError receives transient
// failures. Nil callbacks are allowed.
func NewScheduler(refresh func(ctx context.Context) (*identity.Session, error), onSuccess func(*identity.Session), onError func(error)) *Scheduler {
	return &Scheduler{
		refresh:     refresh,
		onSuccess:   onSuccess,
		onError:     onError,
		period:      Period,
		minInterval: MinInterval,
		now:         time.Now,
	}
}

// Start begins the recurring timer. Calling Start while running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh

	s.wg.Add(1)
	go s.loop(stopCh)
}

// Stop clears the timer and waits for any in-flight tick to return.
// Safe to call repeatedly and when never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	s.wg.Wait()
}

// Running reports whether the timer is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

func (s *Scheduler) loop(stopCh chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.Attempt(context.Background())
		}
	}
}

// Attempt runs one guarded refresh. If less than MinInterval has elapsed
// since the previous attempt (successful or not), the call is skipped and
// Attempt reports false. The guard window opens at attempt time, not at
// completion, so a slow provider call cannot admit a second concurrent one.
func (s *Scheduler) Attempt(ctx context.Context) bool {
	s.mu.Lock()
	now := s.now()
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < s.minInterval {
		s.mu.Unlock()
		return false
	}
	s.lastAttempt = now
	s.mu.Unlock()

	renewed, err := s.refresh(ctx)
	if err != nil {
		if s.onError != nil {
			s.onError(err)
		}
		return true
	}
	if s.onSuccess != nil {
		s.onSuccess(renewed)
	}
	return true
}

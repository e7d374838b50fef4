// Package csrf issues and checks same-client double-submit tokens for
// state-changing form submissions. Tokens are scoped to one client scope
// (one browser tab's worth of state) and live only in process memory.
package csrf

import (
	"crypto/subtle"
	"errors"
	"sync"

	"sessioncore/internal/uuid"
)

// ErrMismatch indicates the candidate token was absent or unequal to the
// stored token. The triggering submission must be rejected before any
// state-changing call.
var ErrMismatch = errors.New("csrf token mismatch")

// Service holds at most one live token per client scope. Issuing overwrites
// any previous token for that scope.
//
// Tokens are not enforced as single-use here: callers that need single-use
// semantics must re-issue after each submission.
type Service struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewService creates an empty CSRF token service.
func NewService() *Service {
	return &Service{tokens: make(map[string]string)}
}

// Issue generates a fresh token for the scope, replacing any previous one.
func (s *Service) Issue(scope string) string {
	token := uuid.New()
	s.mu.Lock()
	s.tokens[scope] = token
	s.mu.Unlock()
	return token
}

// Check compares candidate against the stored token for the scope.
// A missing stored token always fails.
func (s *Service) Check(scope, candidate string) bool {
	s.mu.RLock()
	token, ok := s.tokens[scope]
	s.mu.RUnlock()
	if !ok || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1
}

// Clear drops the token for the scope. Safe to call when none exists.
func (s *Service) Clear(scope string) {
	s.mu.Lock()
	delete(s.tokens, scope)
	s.mu.Unlock()
}

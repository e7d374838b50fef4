// Package local is a self-contained identity provider: argon2id-hashed
// accounts in a storage.Repository and HS256 JWT session credentials. It
// exists so the session core runs end-to-end without a hosted backend.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"sessioncore/identity"
	"sessioncore/internal/util"
	"sessioncore/internal/uuid"
	"sessioncore/storage"
)

const (
	defaultTokenTTL = time.Hour
	resetTokenTTL   = 15 * time.Minute
)

// Provider implements identity.Provider against local storage.
type Provider struct {
	repo       storage.Repository
	signingKey *memguard.Enclave
	tokenTTL   time.Duration
	now        func() time.Time

	mu        sync.Mutex
	current   *identity.Session
	nextSubID int
	subs      map[int]func(identity.Event)

	resetMu   sync.Mutex
	resets    map[string]resetGrant
	resetSink func(email, token string)
}

type resetGrant struct {
	tokenKey  []byte
	salt      []byte
	params    util.Argon2idParams
	expiresAt time.Time
}

var _ identity.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithTokenTTL sets the lifetime of issued session credentials.
func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.tokenTTL = ttl
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider creates a Provider over the given repository. signingKey is
// the HS256 key for session tokens; it is copied into a memguard enclave
// and the caller's slice is wiped.
func NewProvider(repo storage.Repository, signingKey []byte, opts ...Option) *Provider {
	p := &Provider{
		repo:       repo,
		signingKey: memguard.NewEnclave(signingKey),
		tokenTTL:   defaultTokenTTL,
		now:        time.Now,
		subs:       make(map[int]func(identity.Event)),
		resets:     make(map[string]resetGrant),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetSession returns a copy of the currently established session, or nil.
func (p *Provider) GetSession(ctx context.Context) (*identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, nil
	}
	copied := *p.current
	return &copied, nil
}

// OnSessionChange registers fn for session events. The returned cancel is
// idempotent.
func (p *Provider) OnSessionChange(fn func(identity.Event)) (cancel func()) {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) emit(event identity.Event) {
	p.mu.Lock()
	fns := make([]func(identity.Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

func (p *Provider) setSession(sess *identity.Session, kind identity.EventKind) {
	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()
	p.emit(identity.Event{Kind: kind, Session: sess})
}

// SignIn verifies the email/password pair and establishes a new session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := p.loadUser(email)
	if err != nil {
		// Indistinguishable from a wrong password on purpose.
		return nil, identity.ErrInvalidCredentials
	}
	if !rec.checkPassword(password) {
		return nil, identity.ErrInvalidCredentials
	}

	sess, err := p.newSession(rec)
	if err != nil {
		return nil, err
	}
	p.setSession(sess, identity.EventSignedIn)
	return sess, nil
}

// SignUp registers a new account and signs it in. The first registered
// account becomes the admin.
func (p *Provider) SignUp(ctx context.Context, email, password string, profile map[string]string) (*identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := p.loadUser(email); err == nil {
		return nil, identity.ErrUserExists
	}

	role := identity.RoleMember
	if emails, err := p.repo.List(usersBucket); err == nil && len(emails) == 0 {
		role = identity.RoleAdmin
	}

	rec := &userRecord{
		ID:        uuid.New(),
		Email:     util.NormalizeEmail(email),
		FullName:  profile["full_name"],
		Role:      role,
		CreatedAt: p.now().UTC(),
	}
	if err := rec.setPassword(password); err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	if err := p.saveUser(rec); err != nil {
		return nil, err
	}

	sess, err := p.newSession(rec)
	if err != nil {
		return nil, err
	}
	p.setSession(sess, identity.EventSignedIn)
	return sess, nil
}

// SignOut terminates the current session. The local provider has no other
// devices, so the global scope behaves like the local one.
func (p *Provider) SignOut(ctx context.Context, scope identity.SignOutScope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.setSession(nil, identity.EventSignedOut)
	return nil
}

// Refresh issues a renewed credential for the current session's identity.
func (p *Provider) Refresh(ctx context.Context) (*identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrRefreshFailed, err)
	}
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil {
		return nil, identity.ErrNoSession
	}
	rec, err := p.findUserByID(current.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrRefreshFailed, err)
	}
	sess, err := p.newSession(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrRefreshFailed, err)
	}
	p.setSession(sess, identity.EventRefreshed)
	return sess, nil
}

// GetUser fetches the profile for an identity id.
func (p *Provider) GetUser(ctx context.Context, id string) (*identity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := p.findUserByID(id)
	if err != nil {
		return nil, err
	}
	return rec.user(), nil
}

// ResetPassword opens a short-lived reset grant for the account and returns
// the one-time token through delivery (see ResetTokenSink). Unknown emails
// succeed silently so the endpoint cannot be used to probe for accounts.
func (p *Provider) ResetPassword(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := p.loadUser(email)
	if err != nil {
		return nil
	}

	token := uuid.New()
	salt, err := util.RandomBytes(16)
	if err != nil {
		return err
	}
	params := util.DefaultArgon2idParams()
	key := util.DeriveArgon2idKey(token, salt, params)

	p.resetMu.Lock()
	p.resets[rec.Email] = resetGrant{
		tokenKey:  key,
		salt:      salt,
		params:    params,
		expiresAt: p.now().Add(resetTokenTTL),
	}
	sink := p.resetSink
	p.resetMu.Unlock()

	if sink != nil {
		sink(rec.Email, token)
	}
	return nil
}

// SetResetTokenSink installs the delivery function for reset tokens (mail,
// console). Install before serving.
func (p *Provider) SetResetTokenSink(sink func(email, token string)) {
	p.resetMu.Lock()
	p.resetSink = sink
	p.resetMu.Unlock()
}

// CompletePasswordReset consumes a reset grant and sets the new password.
func (p *Provider) CompletePasswordReset(ctx context.Context, email, token, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized := util.NormalizeEmail(email)

	p.resetMu.Lock()
	grant, ok := p.resets[normalized]
	p.resetMu.Unlock()
	if !ok || p.now().After(grant.expiresAt) {
		return identity.ErrInvalidCredentials
	}
	if !util.CompareArgon2idKey(token, grant.salt, grant.params, grant.tokenKey) {
		return identity.ErrInvalidCredentials
	}

	rec, err := p.loadUser(normalized)
	if err != nil {
		return err
	}
	if err := rec.setPassword(newPassword); err != nil {
		return err
	}
	if err := p.saveUser(rec); err != nil {
		return err
	}

	p.resetMu.Lock()
	delete(p.resets, normalized)
	p.resetMu.Unlock()
	return nil
}

// UpdatePassword changes the password of the currently signed-in identity.
func (p *Provider) UpdatePassword(ctx context.Context, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil {
		return identity.ErrNoSession
	}
	rec, err := p.findUserByID(current.UserID)
	if err != nil {
		return err
	}
	if err := rec.setPassword(newPassword); err != nil {
		return err
	}
	return p.saveUser(rec)
}

func (p *Provider) newSession(rec *userRecord) (*identity.Session, error) {
	expiresAt := p.now().Add(p.tokenTTL)
	token, err := p.issueToken(rec, expiresAt)
	if err != nil {
		return nil, err
	}
	return &identity.Session{
		Token:     token,
		UserID:    rec.ID,
		ExpiresAt: expiresAt,
	}, nil
}

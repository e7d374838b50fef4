// Package oidc adapts a hosted OIDC issuer to the identity.Provider
// contract. The issuer's wire protocol stays its own business; this adapter
// only maps tokens and claims onto the core's session and user types.
//
// Sign-in uses the resource-owner password grant, which fits a headless
// session agent; account management (sign-up, password changes) belongs to
// the issuer and is reported as unsupported.
package oidc

import (
	"context"
	"fmt"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"sessioncore/identity"
)

// Config carries the issuer connection parameters.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	// Scopes beyond openid/email/profile, e.g. "offline_access" for issuers
	// that gate refresh tokens behind it.
	ExtraScopes []string
	// AdminRoleClaim is the claim checked for the admin role, defaulting to
	// "role".
	AdminRoleClaim string
}

// Provider implements identity.Provider against a hosted OIDC issuer.
type Provider struct {
	issuer *gooidc.Provider
	oauth  oauth2.Config
	claim  string
	now    func() time.Time

	mu        sync.Mutex
	token     *oauth2.Token
	user      *identity.User
	nextSubID int
	subs      map[int]func(identity.Event)
}

var _ identity.Provider = (*Provider)(nil)

// NewProvider discovers the issuer and returns a connected Provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	issuer, err := gooidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering issuer %s: %w", cfg.IssuerURL, err)
	}
	claim := cfg.AdminRoleClaim
	if claim == "" {
		claim = "role"
	}
	return &Provider{
		issuer: issuer,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     issuer.Endpoint(),
			Scopes:       append([]string{gooidc.ScopeOpenID, "email", "profile"}, cfg.ExtraScopes...),
		},
		claim: claim,
		now:   time.Now,
		subs:  make(map[int]func(identity.Event)),
	}, nil
}

func (p *Provider) GetSession(ctx context.Context) (*identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionLocked(), nil
}

func (p *Provider) sessionLocked() *identity.Session {
	if p.token == nil || p.user == nil {
		return nil
	}
	return &identity.Session{
		Token:     p.token.AccessToken,
		UserID:    p.user.ID,
		ExpiresAt: p.token.Expiry,
	}
}

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

func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	token, err := p.oauth.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, identity.ErrInvalidCredentials
	}
	user, err := p.fetchUser(ctx, token)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.token = token
	p.user = user
	sess := p.sessionLocked()
	p.mu.Unlock()

	p.emit(identity.Event{Kind: identity.EventSignedIn, Session: sess})
	return sess, nil
}

func (p *Provider) Refresh(ctx context.Context) (*identity.Session, error) {
	p.mu.Lock()
	current := p.token
	p.mu.Unlock()
	if current == nil {
		return nil, identity.ErrNoSession
	}

	// Expire the copy so the token source performs a real refresh rather
	// than handing the cached access token back.
	stale := *current
	stale.Expiry = time.Unix(1, 0)
	renewed, err := p.oauth.TokenSource(ctx, &stale).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrRefreshFailed, err)
	}

	p.mu.Lock()
	p.token = renewed
	sess := p.sessionLocked()
	p.mu.Unlock()

	p.emit(identity.Event{Kind: identity.EventRefreshed, Session: sess})
	return sess, nil
}

func (p *Provider) SignOut(ctx context.Context, scope identity.SignOutScope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Global revocation is issuer-specific; the adapter drops its local
	// credential either way and the issuer's own timeouts do the rest.
	p.mu.Lock()
	p.token = nil
	p.user = nil
	p.mu.Unlock()

	p.emit(identity.Event{Kind: identity.EventSignedOut})
	return nil
}

func (p *Provider) GetUser(ctx context.Context, id string) (*identity.User, error) {
	p.mu.Lock()
	user := p.user
	p.mu.Unlock()
	if user == nil || user.ID != id {
		return nil, identity.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (p *Provider) SignUp(ctx context.Context, email, password string, profile map[string]string) (*identity.Session, error) {
	return nil, identity.ErrNotSupported
}

func (p *Provider) ResetPassword(ctx context.Context, email string) error {
	return identity.ErrNotSupported
}

func (p *Provider) UpdatePassword(ctx context.Context, newPassword string) error {
	return identity.ErrNotSupported
}

func (p *Provider) fetchUser(ctx context.Context, token *oauth2.Token) (*identity.User, error) {
	info, err := p.issuer.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}
	var claims map[string]any
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding userinfo claims: %w", err)
	}

	user := &identity.User{
		ID:    info.Subject,
		Email: info.Email,
		Role:  identity.RoleMember,
	}
	if name, ok := claims["name"].(string); ok {
		user.FullName = name
	}
	if role, ok := claims[p.claim].(string); ok && role == string(identity.RoleAdmin) {
		user.Role = identity.RoleAdmin
	}
	return user, nil
}

// internal/provider/local/provider.go
package local

import (
	"context"
	"errors"
	"sync"
	"time"

	"kalpla-auth/internal/domain/auth"
	evtypes "kalpla-auth/internal/domain/events"
	xerrors "kalpla-auth/internal/pkg/errors"
	"kalpla-auth/internal/pkg/jwt"
	"kalpla-auth/internal/pkg/ratelimit"

	gojwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// CodePurpose tells a CodeSink why a verification code was issued
type CodePurpose string

const (
	CodeSignUp        CodePurpose = "sign_up"
	CodeSignIn        CodePurpose = "sign_in"
	CodePasswordReset CodePurpose = "password_reset"
)

// CodeSink delivers verification codes; destination is an email or phone
type CodeSink func(purpose CodePurpose, destination, code string)

// Publisher receives the lifecycle events the provider emits
type Publisher interface {
	Publish(ctx context.Context, ev evtypes.Event)
}

// AttemptLimiter counts attempts per subject; see ratelimit.Limiter
type AttemptLimiter interface {
	Allow(ctx context.Context, scope, subject string, rule ratelimit.Rule) (bool, int64, error)
	Reset(ctx context.Context, scope, subject string) error
}

const (
	defaultCodeTTL = 15 * time.Minute
	// refresh lifetime without "remember me"
	shortRefreshTTL = 24 * time.Hour
)

type Option func(*Provider)

func WithCodeSink(sink CodeSink) Option {
	return func(p *Provider) { p.sink = sink }
}

func WithLimiter(limiter AttemptLimiter) Option {
	return func(p *Provider) { p.limiter = limiter }
}

// WithClock drives code expiry and token validity from now
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func WithCodeTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.codeTTL = ttl }
}

type session struct {
	userID   string
	access   string
	id       string
	refresh  string
	remember bool
}

// challenge is a sign-in waiting on ConfirmSignIn
type challenge struct {
	userID   string
	step     auth.NextStep
	code     verificationCode
	remember bool
}

// Provider is an in-process identity provider. It keeps its user pool in
// memory, signs RS256 tokens and publishes the same lifecycle events a
// hosted provider would. A single Provider models one device: it holds at
// most one signed-in session.
type Provider struct {
	tokens  *jwt.Manager
	events  Publisher
	sink    CodeSink
	limiter AttemptLimiter
	logger  *zap.Logger
	now     func() time.Time
	codeTTL time.Duration

	mu         sync.Mutex
	users      map[string]*user // by id
	usernames  map[string]string
	signUp     map[string]verificationCode // by user id
	reset      map[string]verificationCode // by user id
	pending    *challenge
	redirectTo auth.SignInProvider
	current    *session
}

func New(tokens *jwt.Manager, events Publisher, logger *zap.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Provider{
		tokens:    tokens,
		events:    events,
		logger:    logger,
		now:       time.Now,
		codeTTL:   defaultCodeTTL,
		users:     make(map[string]*user),
		usernames: make(map[string]string),
		signUp:    make(map[string]verificationCode),
		reset:     make(map[string]verificationCode),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.tokens.WithClock(p.now)

	return p
}

// GetCurrentUser returns the signed-in principal or xerrors.ErrNoPrincipal
func (p *Provider) GetCurrentUser(ctx context.Context) (*auth.Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil, xerrors.ErrNoPrincipal
	}
	u, ok := p.users[p.current.userID]
	if !ok {
		return nil, xerrors.ErrNoPrincipal
	}
	return u.principal(), nil
}

// FetchSession returns the live tokens. An expired access token is
// refreshed first; a refresh that fails ends the session and emits
// tokenRefresh_failure.
func (p *Provider) FetchSession(ctx context.Context) (*auth.ProviderTokens, error) {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return nil, nil
	}

	_, err := p.tokens.Verifier.VerifyAccessToken(p.current.access)
	if err == nil {
		out := p.current.providerTokens()
		p.mu.Unlock()
		return out, nil
	}
	if !errors.Is(err, gojwt.ErrTokenExpired) {
		p.mu.Unlock()
		return nil, xerrors.NewProviderError(xerrors.CodeNotAuthorized, "Access token is invalid.")
	}

	userID := p.current.userID
	refreshed, refreshErr := p.refreshLocked()
	var out *auth.ProviderTokens
	if refreshErr == nil {
		out = refreshed.providerTokens()
	}
	p.mu.Unlock()

	data := map[string]interface{}{"userId": userID}
	if refreshErr != nil {
		p.logger.Warn("token refresh failed", zap.String("user_id", userID), zap.Error(refreshErr))
		p.publish(ctx, evtypes.EventTokenRefreshFailure, data)
		return nil, nil
	}

	p.logger.Debug("tokens refreshed", zap.String("user_id", userID))
	p.publish(ctx, evtypes.EventTokenRefresh, data)
	return out, nil
}

// refreshLocked mints new access and id tokens from the refresh token, or
// ends the session when the refresh token is no longer valid
func (p *Provider) refreshLocked() (*session, error) {
	s := p.current

	claims, err := p.tokens.Verifier.VerifyRefreshToken(s.refresh)
	if err != nil || claims.Subject != s.userID {
		p.current = nil
		if err == nil {
			err = errors.New("refresh token subject mismatch")
		}
		return nil, err
	}

	u, ok := p.users[s.userID]
	if !ok {
		p.current = nil
		return nil, errors.New("user no longer exists")
	}

	next, err := p.issueLocked(u, s.remember, s.refresh)
	if err != nil {
		p.current = nil
		return nil, err
	}
	p.current = next
	return next, nil
}

// SignOut ends the local session. signedOut is emitted even when nobody was
// signed in, like a hosted provider clearing its storage.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	var userID string
	if p.current != nil {
		userID = p.current.userID
	}
	p.current = nil
	p.pending = nil
	p.redirectTo = ""
	p.mu.Unlock()

	p.publish(ctx, evtypes.EventSignedOut, map[string]interface{}{"userId": userID})
	return nil
}

// startSessionLocked issues tokens for u and makes it the current session
func (p *Provider) startSessionLocked(u *user, remember bool) error {
	s, err := p.issueLocked(u, remember, "")
	if err != nil {
		return xerrors.NewProviderError(xerrors.CodeInternalError, "Failed to issue tokens.")
	}
	p.current = s
	p.pending = nil
	return nil
}

// issueLocked mints access and id tokens, and a refresh token unless one
// is being reused
func (p *Provider) issueLocked(u *user, remember bool, refresh string) (*session, error) {
	access, _, err := p.tokens.Generator.Generate(u.id, u.username, u.email, jwt.UseAccess, p.tokens.Generator.Ttl, nil)
	if err != nil {
		return nil, err
	}
	idToken, err := p.tokens.Generator.GenerateIDToken(u.id, u.email, u.attributes())
	if err != nil {
		return nil, err
	}

	if refresh == "" {
		ttl := shortRefreshTTL
		if remember {
			ttl = p.tokens.Generator.RefreshTtl
		}
		refresh, _, err = p.tokens.Generator.Generate(u.id, "", "", jwt.UseRefresh, ttl, nil)
		if err != nil {
			return nil, err
		}
	}

	return &session{
		userID:   u.id,
		access:   access,
		id:       idToken,
		refresh:  refresh,
		remember: remember,
	}, nil
}

func (s *session) providerTokens() *auth.ProviderTokens {
	return &auth.ProviderTokens{
		AccessToken:  s.access,
		RefreshToken: s.refresh,
		IDToken:      s.id,
	}
}

// publish must be called without p.mu held; handlers call back into the provider
func (p *Provider) publish(ctx context.Context, kind evtypes.EventType, data map[string]interface{}) {
	if p.events == nil {
		return
	}
	p.events.Publish(ctx, evtypes.NewEvent(kind, data))
}

// allow consults the attempt limiter. Limiter outages fail open.
func (p *Provider) allow(ctx context.Context, scope, subject string, rule ratelimit.Rule) error {
	if p.limiter == nil {
		return nil
	}

	ok, _, err := p.limiter.Allow(ctx, scope, subject, rule)
	if err != nil {
		p.logger.Warn("attempt limiter unavailable", zap.String("scope", scope), zap.Error(err))
		return nil
	}
	if !ok {
		return xerrors.NewProviderError(xerrors.CodeLimitExceeded, "Attempt limit exceeded, please try after some time.")
	}
	return nil
}

func (p *Provider) resetAttempts(ctx context.Context, scope, subject string) {
	if p.limiter == nil {
		return
	}
	if err := p.limiter.Reset(ctx, scope, subject); err != nil {
		p.logger.Warn("failed to reset attempt counter", zap.String("scope", scope), zap.Error(err))
	}
}

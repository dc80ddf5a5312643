// internal/service/auth/coordinator.go
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"kalpla-auth/internal/domain/auth"
	evtypes "kalpla-auth/internal/domain/events"
	xerrors "kalpla-auth/internal/pkg/errors"
	"kalpla-auth/internal/pkg/jwt"
	rolesvc "kalpla-auth/internal/service/role"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// IdentityProvider is the external authentication backend. Implementations
// report "nobody signed in" from GetCurrentUser as xerrors.ErrNoPrincipal
// (or a nil principal) and "no tokens" from FetchSession as nil tokens.
type IdentityProvider interface {
	SignIn(ctx context.Context, username, password string, opts auth.SignInOptions) (*auth.SignInResult, error)
	ConfirmSignIn(ctx context.Context, challengeResponse string) (*auth.SignInResult, error)
	SignUp(ctx context.Context, username, password string, attrs map[string]string) (*auth.SignUpResult, error)
	ConfirmSignUp(ctx context.Context, username, code string) error
	ResendSignUpCode(ctx context.Context, username string) error
	SignOut(ctx context.Context) error
	GetCurrentUser(ctx context.Context) (*auth.Principal, error)
	FetchSession(ctx context.Context) (*auth.ProviderTokens, error)
	ResetPassword(ctx context.Context, username string) error
	ConfirmResetPassword(ctx context.Context, username, code, newPassword string) error
	SignInWithRedirect(ctx context.Context, provider auth.SignInProvider) error
}

// EventSource delivers identity provider lifecycle events
type EventSource interface {
	Subscribe(kind evtypes.EventType, handler evtypes.Handler) func()
}

// RoleResolver attaches role and membership metadata to a principal
type RoleResolver interface {
	Resolve(ctx context.Context, email, identityID string) auth.RoleInfo
	UpdateRole(ctx context.Context, identityID string, role auth.Role, membership auth.MembershipType) error
}

type Option func(*Coordinator)

// WithClock overrides the wall clock used for session validity
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator is the single source of truth for who is signed in. It owns
// the cached snapshot and tokens, wraps every provider call, and fans state
// changes out to listeners.
//
// Concurrent sign-ins are not serialized: the last write to the cache wins.
type Coordinator struct {
	provider IdentityProvider
	roles    RoleResolver
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	user   *auth.UserSnapshot
	tokens *auth.SessionTokens
	// epoch advances on every local clear so results fetched before a
	// forced sign-out are not written back into the cache
	epoch uint64

	listenersMu  sync.RWMutex
	listeners    []listener
	nextListener uint64

	unsubscribe []func()
}

// NewCoordinator wires the coordinator and subscribes it to the four
// lifecycle events of the provider.
func NewCoordinator(provider IdentityProvider, events EventSource, roles RoleResolver, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		provider: provider,
		roles:    roles,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if events != nil {
		c.unsubscribe = []func(){
			events.Subscribe(evtypes.EventSignedIn, c.onSignedIn),
			events.Subscribe(evtypes.EventSignedOut, c.onSignedOut),
			events.Subscribe(evtypes.EventTokenRefresh, c.onTokenRefresh),
			events.Subscribe(evtypes.EventTokenRefreshFailure, c.onTokenRefreshFailure),
		}
	}

	return c
}

// Close detaches the coordinator from the lifecycle event source
func (c *Coordinator) Close() {
	for _, unsubscribe := range c.unsubscribe {
		unsubscribe()
	}
	c.unsubscribe = nil
}

// ========== Queries ==========

// GetCurrentUser asks the provider for the active principal and builds a
// fresh snapshot. Nobody signed in is (nil, nil), not an error.
func (c *Coordinator) GetCurrentUser(ctx context.Context) (*auth.UserSnapshot, error) {
	epoch := c.currentEpoch()

	principal, err := c.provider.GetCurrentUser(ctx)
	if errors.Is(err, xerrors.ErrNoPrincipal) || (err == nil && principal == nil) {
		c.storeUser(epoch, nil)
		return nil, nil
	}
	if err != nil {
		return nil, c.fail("get current user", err)
	}

	if _, err := c.GetSession(ctx); err != nil {
		c.logger.Warn("session query failed while building user snapshot",
			zap.String("identity_id", principal.UserID), zap.Error(err))
	}

	user := c.buildSnapshot(ctx, principal)
	if !c.storeUser(epoch, user) {
		c.logger.Info("discarding user snapshot fetched before sign-out",
			zap.String("identity_id", principal.UserID))
		return nil, nil
	}

	return copyUser(user), nil
}

// GetSession asks the provider for live tokens. No tokens is (nil, nil).
func (c *Coordinator) GetSession(ctx context.Context) (*auth.SessionTokens, error) {
	epoch := c.currentEpoch()

	raw, err := c.provider.FetchSession(ctx)
	if err != nil {
		return nil, c.fail("fetch session", err)
	}
	if raw == nil || raw.AccessToken == "" {
		c.storeTokens(epoch, nil)
		return nil, nil
	}

	exp, err := jwt.ExpiryFromToken(raw.AccessToken)
	if err != nil {
		c.logger.Warn("provider returned an access token without a readable expiry", zap.Error(err))
		c.storeTokens(epoch, nil)
		return nil, nil
	}

	tokens := &auth.SessionTokens{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		IDToken:      raw.IDToken,
		ExpiresAt:    exp,
	}
	if !c.storeTokens(epoch, tokens) {
		return nil, nil
	}

	t := *tokens
	return &t, nil
}

// GetCurrentUserSync returns the cached snapshot without contacting the provider
func (c *Coordinator) GetCurrentUserSync() *auth.UserSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyUser(c.user)
}

// IsSessionValid reports whether cached tokens exist and have not expired
func (c *Coordinator) IsSessionValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.tokens == nil {
		return false
	}
	return !c.tokens.Stale(c.now())
}

// ========== Role administration ==========

// UpdateUserRole overrides the current user's role and membership, replaces
// the snapshot and notifies listeners.
func (c *Coordinator) UpdateUserRole(ctx context.Context, role auth.Role, membership auth.MembershipType) error {
	epoch := c.currentEpoch()
	current := c.GetCurrentUserSync()
	if current == nil {
		return xerrors.NewAuthError(xerrors.KindNotAuthorized, "You need to be signed in to change a role.")
	}

	if err := c.roles.UpdateRole(ctx, current.ID, role, membership); err != nil {
		if errors.Is(err, rolesvc.ErrInvalidRole) {
			return &xerrors.AuthError{
				Kind:    xerrors.KindInvalidInput,
				Message: "Choose a valid role and membership tier.",
				Cause:   err,
			}
		}
		c.logger.Error("failed to update role", zap.String("identity_id", current.ID), zap.Error(err))
		return &xerrors.AuthError{
			Kind:    xerrors.KindServiceUnavailable,
			Message: "The role could not be saved. Please try again later.",
			Cause:   err,
		}
	}

	next := copyUser(current)
	next.ApplyRole(auth.RoleInfo{
		Role:               role,
		MembershipType:     membership,
		SubscriptionStatus: auth.SubscriptionActive,
	})

	if !c.storeUser(epoch, next) {
		return xerrors.NewAuthError(xerrors.KindNotAuthorized, "You were signed out before the role change was applied.")
	}

	c.notify(copyUser(next))
	return nil
}

// ========== Lifecycle events ==========

func (c *Coordinator) onSignedIn(ctx context.Context, ev evtypes.Event) {
	c.resync(ctx, ev)
}

func (c *Coordinator) onTokenRefresh(ctx context.Context, ev evtypes.Event) {
	c.resync(ctx, ev)
}

func (c *Coordinator) onSignedOut(ctx context.Context, ev evtypes.Event) {
	if c.clearLocal() {
		c.notify(nil)
	}
}

// onTokenRefreshFailure forces a sign-out: a token that can no longer be
// refreshed must not be presented as valid.
func (c *Coordinator) onTokenRefreshFailure(ctx context.Context, ev evtypes.Event) {
	c.logger.Warn("token refresh failed, signing out", zap.String("event_id", ev.ID))
	if err := c.SignOut(ctx); err != nil {
		c.logger.Warn("provider sign-out after refresh failure did not complete", zap.Error(err))
	}
}

func (c *Coordinator) resync(ctx context.Context, ev evtypes.Event) {
	user, err := c.GetCurrentUser(ctx)
	if err != nil {
		c.logger.Error("failed to resync user after lifecycle event",
			zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	c.notify(user)
}

// ========== Cache ==========

func (c *Coordinator) currentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// storeUser writes user unless a clear happened since epoch was read
func (c *Coordinator) storeUser(epoch uint64, user *auth.UserSnapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return false
	}
	c.user = user
	return true
}

func (c *Coordinator) storeTokens(epoch uint64, tokens *auth.SessionTokens) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return false
	}
	c.tokens = tokens
	return true
}

// clearLocal drops the cached snapshot and tokens and reports whether
// anything was cached
func (c *Coordinator) clearLocal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	had := c.user != nil || c.tokens != nil
	c.user = nil
	c.tokens = nil
	c.epoch++
	return had
}

func (c *Coordinator) buildSnapshot(ctx context.Context, p *auth.Principal) *auth.UserSnapshot {
	email := p.Attr(auth.AttrEmail)
	if email == "" && strings.Contains(p.Username, "@") {
		email = p.Username
	}

	name := p.Attr(auth.AttrName)
	if name == "" {
		name = displayNameFallback(email, p.Attr(auth.AttrPhoneNumber))
	}

	provider := p.Provider
	if provider == "" {
		provider = auth.ProviderEmail
	}

	user := &auth.UserSnapshot{
		ID:              p.UserID,
		Email:           email,
		Name:            name,
		PhoneNumber:     p.Attr(auth.AttrPhoneNumber),
		IsEmailVerified: strings.EqualFold(p.Attr(auth.AttrEmailVerified), "true"),
		Provider:        provider,
		MFAEnabled:      p.MFAEnabled,
		AvatarURL:       p.Attr(auth.AttrPicture),
	}
	user.ApplyRole(c.roles.Resolve(ctx, email, p.UserID))

	return user
}

func displayNameFallback(email, phone string) string {
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	if phone != "" {
		return phone
	}
	return "User"
}

func copyUser(u *auth.UserSnapshot) *auth.UserSnapshot {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// fail normalizes a provider error at the coordinator boundary
func (c *Coordinator) fail(op string, err error) error {
	authErr := xerrors.Normalize(err)
	c.logger.Warn("auth operation failed",
		zap.String("op", op),
		zap.String("kind", string(authErr.Kind)),
		zap.String("reason", string(authErr.Reason)),
		zap.Error(err),
	)
	return authErr
}

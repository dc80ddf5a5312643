// internal/service/role/resolver.go
package role

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"kalpla-auth/internal/domain/auth"

	"go.uber.org/zap"
)

// DefaultSuperAdminEmail is the address that always resolves to Admin
const DefaultSuperAdminEmail = "founder@kalpla.com"

// Store is the persistent role cache, scoped to the local client
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Resolver maps an identity to its role, membership tier and subscription
// status. A cached resolution always wins over the email rules, so an
// administrative override is never clobbered on the next sign-in.
//
// The email rules are plain substring matching. They decide what the UI
// shows, they are not an authorization boundary.
type Resolver struct {
	store           Store
	superAdminEmail string
	logger          *zap.Logger
}

func NewResolver(store Store, superAdminEmail string, logger *zap.Logger) *Resolver {
	if superAdminEmail == "" {
		superAdminEmail = DefaultSuperAdminEmail
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:           store,
		superAdminEmail: strings.ToLower(strings.TrimSpace(superAdminEmail)),
		logger:          logger,
	}
}

// Resolve returns the cached RoleInfo for identityID, deriving and persisting
// one from email on first sight. A failed read degrades to derivation for
// this lookup only; nothing is written, so a stored override survives.
func (r *Resolver) Resolve(ctx context.Context, email, identityID string) auth.RoleInfo {
	key := cacheKey(identityID)

	raw, found, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn("role cache read failed, deriving from email without caching",
			zap.String("identity_id", identityID), zap.Error(err))
		return r.DeriveFromEmail(email)
	}
	if found {
		var info auth.RoleInfo
		if err := json.Unmarshal([]byte(raw), &info); err == nil && info.Role != "" {
			return info
		}
		r.logger.Warn("discarding unreadable role cache entry", zap.String("identity_id", identityID))
	}

	info := r.DeriveFromEmail(email)
	if err := r.persist(ctx, key, info); err != nil {
		r.logger.Warn("role cache write failed",
			zap.String("identity_id", identityID), zap.Error(err))
	}
	return info
}

// DeriveFromEmail applies the ordered email rules; the first match wins
func (r *Resolver) DeriveFromEmail(email string) auth.RoleInfo {
	e := strings.ToLower(strings.TrimSpace(email))

	switch {
	case e == r.superAdminEmail:
		return newRoleInfo(auth.RoleAdmin, auth.MembershipAdmin)
	case strings.Contains(e, "admin@"):
		return newRoleInfo(auth.RoleAdmin, auth.MembershipAdmin)
	case strings.Contains(e, "instructor@"), strings.Contains(e, "mentor@"):
		return newRoleInfo(auth.RoleMentor, auth.MembershipInstructor)
	case strings.Contains(e, "premium@"):
		return newRoleInfo(auth.RoleStudent, auth.MembershipPremium)
	default:
		return newRoleInfo(auth.RoleStudent, auth.MembershipBasic)
	}
}

// ErrInvalidRole marks UpdateRole input that names no known identity, role
// or membership tier. Any other UpdateRole error is a store failure.
var ErrInvalidRole = errors.New("invalid role assignment")

// UpdateRole replaces any cached resolution for identityID
func (r *Resolver) UpdateRole(ctx context.Context, identityID string, role auth.Role, membership auth.MembershipType) error {
	if identityID == "" {
		return fmt.Errorf("%w: identity id is required", ErrInvalidRole)
	}
	if _, err := ParseRole(string(role)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}
	if _, err := ParseMembershipType(string(membership)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}

	if err := r.persist(ctx, cacheKey(identityID), newRoleInfo(role, membership)); err != nil {
		return fmt.Errorf("failed to store role for %s: %w", identityID, err)
	}

	r.logger.Info("role updated",
		zap.String("identity_id", identityID),
		zap.String("role", string(role)),
		zap.String("membership", string(membership)),
	)
	return nil
}

func (r *Resolver) persist(ctx context.Context, key string, info auth.RoleInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal role info: %w", err)
	}
	return r.store.Set(ctx, key, string(data))
}

func newRoleInfo(role auth.Role, membership auth.MembershipType) auth.RoleInfo {
	return auth.RoleInfo{
		Role:               role,
		MembershipType:     membership,
		SubscriptionStatus: auth.SubscriptionActive,
	}
}

func cacheKey(identityID string) string {
	return fmt.Sprintf("user_role:%s", identityID)
}

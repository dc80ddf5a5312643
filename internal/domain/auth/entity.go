// internal/domain/auth/entity.go
package auth

import "time"

// Role is the coarse permission tier used for UI gating
type Role string

const (
	RoleStudent Role = "Student"
	RoleMentor  Role = "Mentor"
	RoleAdmin   Role = "Admin"
)

// MembershipType is the monetization tier, correlated with but not equal to Role
type MembershipType string

const (
	MembershipBasic      MembershipType = "basic"
	MembershipPremium    MembershipType = "premium"
	MembershipAdmin      MembershipType = "admin"
	MembershipInstructor MembershipType = "instructor"
)

type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
	SubscriptionTrial   SubscriptionStatus = "trial"
)

// SignInProvider records how the principal authenticated
type SignInProvider string

const (
	ProviderEmail    SignInProvider = "email"
	ProviderGoogle   SignInProvider = "google"
	ProviderGitHub   SignInProvider = "github"
	ProviderLinkedIn SignInProvider = "linkedin"
)

// SocialProviders lists the redirect-based providers accepted by social sign-in
var SocialProviders = []SignInProvider{ProviderGoogle, ProviderGitHub, ProviderLinkedIn}

// IsSocial reports whether p signs in through a hosted redirect
func (p SignInProvider) IsSocial() bool {
	for _, s := range SocialProviders {
		if p == s {
			return true
		}
	}
	return false
}

// UserSnapshot is the authenticated principal as known to the application.
// Role, MembershipType and SubscriptionStatus always come from a single RoleInfo.
type UserSnapshot struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email"`
	Name               string             `json:"name"`
	PhoneNumber        string             `json:"phone_number,omitempty"`
	Role               Role               `json:"role"`
	MembershipType     MembershipType     `json:"membership_type"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	IsEmailVerified    bool               `json:"is_email_verified"`
	Provider           SignInProvider     `json:"provider"`
	MFAEnabled         bool               `json:"mfa_enabled"`
	AvatarURL          string             `json:"avatar_url,omitempty"`
}

// ApplyRole copies a resolution onto the snapshot as one unit
func (u *UserSnapshot) ApplyRole(info RoleInfo) {
	u.Role = info.Role
	u.MembershipType = info.MembershipType
	u.SubscriptionStatus = info.SubscriptionStatus
}

// RoleInfo is the result of a role/membership resolution
type RoleInfo struct {
	Role               Role               `json:"role"`
	MembershipType     MembershipType     `json:"membershipType"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
}

// SessionTokens is the credential triple used against the identity provider.
// ExpiresAt is epoch seconds taken from the access token's exp claim.
type SessionTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Stale reports whether the tokens are expired at now
func (t *SessionTokens) Stale(now time.Time) bool {
	return now.Unix() >= t.ExpiresAt
}

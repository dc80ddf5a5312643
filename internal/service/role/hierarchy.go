package role

import (
	"fmt"
	"strings"

	"kalpla-auth/internal/domain/auth"
)

var roleRank = map[auth.Role]int{
	auth.RoleStudent: 1,
	auth.RoleMentor:  2,
	auth.RoleAdmin:   3,
}

// HasRole reports whether actual satisfies required; higher roles satisfy lower checks
func HasRole(actual, required auth.Role) bool {
	a, ok := roleRank[actual]
	if !ok {
		return false
	}
	req, ok := roleRank[required]
	if !ok {
		return false
	}
	return a >= req
}

// HasPremiumAccess is true for every tier except basic
func HasPremiumAccess(membership auth.MembershipType) bool {
	switch membership {
	case auth.MembershipPremium, auth.MembershipAdmin, auth.MembershipInstructor:
		return true
	default:
		return false
	}
}

// ParseRole accepts a role name in any case
func ParseRole(s string) (auth.Role, error) {
	for r := range roleRank {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ParseMembershipType accepts a membership tier in any case
func ParseMembershipType(s string) (auth.MembershipType, error) {
	switch m := auth.MembershipType(strings.ToLower(strings.TrimSpace(s))); m {
	case auth.MembershipBasic, auth.MembershipPremium, auth.MembershipAdmin, auth.MembershipInstructor:
		return m, nil
	default:
		return "", fmt.Errorf("unknown membership type %q", s)
	}
}

package domain

import (
	"strings"
	"time"
)

// Role is the marketplace role carried by a session.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Session is the authenticated identity held by the client for the current
// login. It is owned exclusively by the auth session; every other component
// works with a read-only snapshot.
type Session struct {
	SubjectID   string    `json:"subject_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	AccessToken string    `json:"-"`
	TokenExpiry time.Time `json:"token_expiry"`
}

// IsAdmin reports whether the session belongs to a back-office user.
func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// Expired reports whether the token expiry, when known, has passed.
// A zero expiry means the token did not carry one and is treated as live.
func (s *Session) Expired(now time.Time) bool {
	return !s.TokenExpiry.IsZero() && now.After(s.TokenExpiry)
}

// RoleFromClaims derives the session role from a token's roles collection.
// The backend emits role names with inconsistent casing, so the scan is
// case-insensitive: any entry equal to "admin" grants RoleAdmin. Missing or
// empty collections default to RoleUser.
func RoleFromClaims(roles []string) Role {
	for _, r := range roles {
		if strings.EqualFold(r, "admin") {
			return RoleAdmin
		}
	}
	return RoleUser
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleFromClaims(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  Role
	}{
		{"upper admin among others", []string{"user", "ADMIN"}, RoleAdmin},
		{"lower admin", []string{"admin"}, RoleAdmin},
		{"mixed case admin", []string{"AdMiN"}, RoleAdmin},
		{"plain user", []string{"user"}, RoleUser},
		{"no roles", nil, RoleUser},
		{"empty slice", []string{}, RoleUser},
		{"unrelated roles", []string{"moderator", "seller"}, RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleFromClaims(tt.roles))
		})
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()

	s := &Session{TokenExpiry: now.Add(-time.Minute)}
	assert.True(t, s.Expired(now))

	s = &Session{TokenExpiry: now.Add(time.Minute)}
	assert.False(t, s.Expired(now))

	// No expiry claim: treated as live.
	s = &Session{}
	assert.False(t, s.Expired(now))
}

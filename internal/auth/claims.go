package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mattheo4427/eventy-core/internal/domain"
	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
)

// DecodeSession turns an access token into a session identity.
//
// The parse is unverified: the client holds no signing keys, and every
// protected call is re-verified by the backend anyway. What matters here is
// extracting a consistent identity, never crashing on a hostile or mangled
// token, and defaulting the role to USER when the roles claim is missing.
func DecodeSession(accessToken string) (*domain.Session, error) {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrTokenDecode, err)
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", apperrors.ErrTokenDecode)
	}

	displayName, _ := claims["name"].(string)
	if displayName == "" {
		// The IdP does not always populate a display name; the username is
		// the agreed fallback.
		displayName, _ = claims["preferred_username"].(string)
	}

	email, _ := claims["email"].(string)

	var expiry time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiry = exp.Time
	}

	return &domain.Session{
		SubjectID:   subject,
		DisplayName: displayName,
		Email:       email,
		Role:        domain.RoleFromClaims(rolesFromClaims(claims)),
		AccessToken: accessToken,
		TokenExpiry: expiry,
	}, nil
}

// rolesFromClaims extracts the roles collection, tolerating both a string
// array and a single string. Anything else counts as no roles.
func rolesFromClaims(claims jwt.MapClaims) []string {
	switch v := claims["roles"].(type) {
	case []any:
		roles := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	case string:
		return []string{v}
	default:
		return nil
	}
}

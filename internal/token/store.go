// Package token persists the bearer token across process restarts.
package token

import "context"

// Store is the secure persistence contract for the access token.
//
// Load signals a missing token with apperrors.ErrTokenAbsent, never a panic
// or a nil-token success. Any underlying storage fault (corruption,
// permissions) surfaces as apperrors.ErrStorageUnavailable; callers treat
// both as "absent" so a broken keystore can never block startup.
type Store interface {
	Save(ctx context.Context, token string) error
	Load(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

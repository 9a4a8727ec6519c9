package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"

	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
)

// FileStore keeps the token in a single file, encrypted at rest with
// XChaCha20-Poly1305. It stands in for the platform secure keystore on
// headless deployments.
type FileStore struct {
	path string
	key  []byte
}

// NewFileStore creates a file-backed token store. The secret is stretched to
// a 256-bit key; the file is created with owner-only permissions on first
// save.
func NewFileStore(path, secret string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("token store path is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("token store secret is required")
	}

	key := sha256.Sum256([]byte(secret))
	return &FileStore{
		path: path,
		key:  key[:],
	}, nil
}

// Save encrypts and persists the token. The write goes through a temp file
// and a rename so a crash cannot leave a half-written token behind.
func (s *FileStore) Save(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return apperrors.StorageUnavailable(err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return apperrors.StorageUnavailable(err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(token), nil)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return apperrors.StorageUnavailable(err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return apperrors.StorageUnavailable(err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return apperrors.StorageUnavailable(err)
	}

	return nil
}

// Load reads and decrypts the stored token. A missing file is reported as
// ErrTokenAbsent; an unreadable or undecryptable file as ErrStorageUnavailable.
func (s *FileStore) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.ErrTokenAbsent
		}
		return "", apperrors.StorageUnavailable(err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", apperrors.StorageUnavailable(err)
	}

	if len(sealed) < aead.NonceSize() {
		return "", apperrors.StorageUnavailable(fmt.Errorf("token file truncated: %d bytes", len(sealed)))
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", apperrors.StorageUnavailable(fmt.Errorf("token file corrupt: %w", err))
	}

	return string(plain), nil
}

// Clear removes the token file. Clearing an absent token is a no-op.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mattheo4427/eventy-core/internal/domain"
	"github.com/Mattheo4427/eventy-core/internal/token"
	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// stubAuthorizer resolves the authorization step without a browser.
type stubAuthorizer struct {
	code  string
	state string // "" means echo the request's state back
	err   error
}

func (a *stubAuthorizer) Authorize(ctx context.Context, authURL string) (string, string, error) {
	if a.err != nil {
		return "", "", a.err
	}
	state := a.state
	if state == "" {
		u, err := url.Parse(authURL)
		if err != nil {
			return "", "", err
		}
		state = u.Query().Get("state")
	}
	return a.code, state, nil
}

// tokenEndpoint serves a minimal OAuth2 token endpoint handing out the given
// access token, recording the form parameters it received.
func tokenEndpoint(t *testing.T, accessToken string, gotForm *map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if gotForm != nil {
			form := make(map[string]string)
			for k := range r.PostForm {
				form[k] = r.PostForm.Get(k)
			}
			*gotForm = form
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": accessToken,
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
}

func newTestService(t *testing.T, tokenURL string, store token.Store, authorizer Authorizer) *Service {
	t.Helper()
	return NewService(Config{
		AuthURL:     "https://idp.example.com/authorize",
		TokenURL:    tokenURL,
		ClientID:    "eventy-client",
		RedirectURI: "http://127.0.0.1:8974/callback",
		Scopes:      []string{"openid", "profile"},
	}, store, authorizer, discardLogger())
}

func validToken(t *testing.T) string {
	t.Helper()
	return mintToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"name":  "Mattheo",
		"email": "mat@example.com",
		"roles": []any{"user"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
}

func TestLogin_Success(t *testing.T) {
	var gotForm map[string]string
	idp := tokenEndpoint(t, validToken(t), &gotForm)
	defer idp.Close()

	store := token.NewMemoryStore()
	svc := newTestService(t, idp.URL, store, &stubAuthorizer{code: "authcode-1"})

	var published []*domain.Session
	svc.Subscribe(func(s *domain.Session) { published = append(published, s) })

	sess, err := svc.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.SubjectID)

	// PKCE verifier travelled with the exchange.
	assert.Equal(t, "authorization_code", gotForm["grant_type"])
	assert.Equal(t, "authcode-1", gotForm["code"])
	assert.NotEmpty(t, gotForm["code_verifier"])

	// Session persisted and published.
	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
	require.Len(t, published, 1)
	assert.Equal(t, "user-1", published[0].SubjectID)

	current, ok := svc.Current()
	require.True(t, ok)
	assert.Equal(t, "user-1", current.SubjectID)
}

func TestLogin_FreshVerifierPerAttempt(t *testing.T) {
	var firstForm, secondForm map[string]string

	idp := tokenEndpoint(t, validToken(t), &firstForm)
	svc := newTestService(t, idp.URL, token.NewMemoryStore(), &stubAuthorizer{code: "c1"})
	_, err := svc.Login(context.Background())
	require.NoError(t, err)
	idp.Close()

	idp2 := tokenEndpoint(t, validToken(t), &secondForm)
	defer idp2.Close()
	svc2 := newTestService(t, idp2.URL, token.NewMemoryStore(), &stubAuthorizer{code: "c2"})
	_, err = svc2.Login(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, firstForm["code_verifier"])
	assert.NotEmpty(t, secondForm["code_verifier"])
	assert.NotEqual(t, firstForm["code_verifier"], secondForm["code_verifier"])
}

func TestLogin_StateMismatch(t *testing.T) {
	idp := tokenEndpoint(t, validToken(t), nil)
	defer idp.Close()

	svc := newTestService(t, idp.URL, token.NewMemoryStore(), &stubAuthorizer{code: "c1", state: "forged"})

	_, err := svc.Login(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrAuthStateMismatch)

	_, ok := svc.Current()
	assert.False(t, ok)
}

func TestLogin_Cancelled(t *testing.T) {
	svc := newTestService(t, "http://unused", token.NewMemoryStore(), &stubAuthorizer{
		err: apperrors.ErrAuthCancelled,
	})

	_, err := svc.Login(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrAuthCancelled)

	_, ok := svc.Current()
	assert.False(t, ok)
}

func TestLogin_ProviderError(t *testing.T) {
	svc := newTestService(t, "http://unused", token.NewMemoryStore(), &stubAuthorizer{
		err: apperrors.AuthProvider("access_denied"),
	})

	_, err := svc.Login(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrAuthProviderError)
	assert.Contains(t, err.Error(), "access_denied")
}

func TestLogin_ExchangeNetworkFailureDistinctFromDecode(t *testing.T) {
	dead := httptest.NewServer(nil)
	dead.Close()

	svc := newTestService(t, dead.URL, token.NewMemoryStore(), &stubAuthorizer{code: "c1"})

	_, err := svc.Login(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrTokenDecode)

	var ce *apperrors.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, apperrors.KindNetwork, ce.Kind)
}

func TestLogin_DecodeFailureAfterExchange(t *testing.T) {
	idp := tokenEndpoint(t, "not-a-jwt", nil)
	defer idp.Close()

	svc := newTestService(t, idp.URL, token.NewMemoryStore(), &stubAuthorizer{code: "c1"})

	_, err := svc.Login(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrTokenDecode)

	_, ok := svc.Current()
	assert.False(t, ok)
}

func TestRestore_Success(t *testing.T) {
	store := token.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), validToken(t)))

	svc := newTestService(t, "http://unused", store, &stubAuthorizer{})
	assert.True(t, svc.Loading())

	svc.Restore(context.Background())

	assert.False(t, svc.Loading())
	current, ok := svc.Current()
	require.True(t, ok)
	assert.Equal(t, "user-1", current.SubjectID)
}

func TestRestore_MalformedTokenClearsStorage(t *testing.T) {
	store := token.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "garbage"))

	svc := newTestService(t, "http://unused", store, &stubAuthorizer{})
	svc.Restore(context.Background())

	assert.False(t, svc.Loading())
	_, ok := svc.Current()
	assert.False(t, ok)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrTokenAbsent)
}

func TestRestore_ExpiredTokenClearsStorage(t *testing.T) {
	store := token.NewMemoryStore()
	expired := mintToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	require.NoError(t, store.Save(context.Background(), expired))

	svc := newTestService(t, "http://unused", store, &stubAuthorizer{})
	svc.Restore(context.Background())

	_, ok := svc.Current()
	assert.False(t, ok)
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrTokenAbsent)
}

func TestRestore_StorageUnavailableStartsLoggedOut(t *testing.T) {
	svc := newTestService(t, "http://unused", failingStore{}, &stubAuthorizer{})

	svc.Restore(context.Background())

	assert.False(t, svc.Loading(), "a broken keystore must not block startup")
	_, ok := svc.Current()
	assert.False(t, ok)
}

type failingStore struct{}

func (failingStore) Save(ctx context.Context, tok string) error { return errStorage() }
func (failingStore) Load(ctx context.Context) (string, error)   { return "", errStorage() }
func (failingStore) Clear(ctx context.Context) error            { return errStorage() }

func errStorage() error {
	return apperrors.StorageUnavailable(errors.New("keystore offline"))
}

func TestLogout_Idempotent(t *testing.T) {
	idp := tokenEndpoint(t, validToken(t), nil)
	defer idp.Close()

	store := token.NewMemoryStore()
	svc := newTestService(t, idp.URL, store, &stubAuthorizer{code: "c1"})

	_, err := svc.Login(context.Background())
	require.NoError(t, err)

	var publishCount int
	svc.Subscribe(func(s *domain.Session) {
		if s == nil {
			publishCount++
		}
	})

	for i := 0; i < 3; i++ {
		svc.Logout(context.Background())
		_, ok := svc.Current()
		assert.False(t, ok)
	}

	assert.Equal(t, 1, publishCount, "repeated logout must not republish")
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrTokenAbsent)
}

func TestInvalidationHook_ForcesLogout(t *testing.T) {
	idp := tokenEndpoint(t, validToken(t), nil)
	defer idp.Close()

	store := token.NewMemoryStore()
	svc := newTestService(t, idp.URL, store, &stubAuthorizer{code: "c1"})

	_, err := svc.Login(context.Background())
	require.NoError(t, err)

	svc.InvalidationHook()()

	_, ok := svc.Current()
	assert.False(t, ok)
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrTokenAbsent)
}

package auth

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
)

// driveCallback stands in for the browser: it follows the authorization URL
// by immediately hitting the loopback callback with the given parameters.
func driveCallback(t *testing.T, b *BrowserAuthorizer, params url.Values) func(string) error {
	t.Helper()
	return func(authURL string) error {
		go func() {
			cb := b.RedirectURI() + "?" + params.Encode()
			// The callback server starts just before the browser opens;
			// retry briefly in case this goroutine wins the race.
			for i := 0; i < 50; i++ {
				resp, err := http.Get(cb)
				if err == nil {
					resp.Body.Close()
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		}()
		return nil
	}
}

func TestBrowserAuthorizer_DeliversCodeAndState(t *testing.T) {
	b := NewBrowserAuthorizer("127.0.0.1:18974", discardLogger())
	b.open = driveCallback(t, b, url.Values{
		"code":  {"authcode-1"},
		"state": {"state-1"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	code, state, err := b.Authorize(ctx, "https://idp.example.com/authorize?state=state-1")
	require.NoError(t, err)
	assert.Equal(t, "authcode-1", code)
	assert.Equal(t, "state-1", state)
}

func TestBrowserAuthorizer_ProviderError(t *testing.T) {
	b := NewBrowserAuthorizer("127.0.0.1:18975", discardLogger())
	b.open = driveCallback(t, b, url.Values{
		"error":             {"access_denied"},
		"error_description": {"user said no"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := b.Authorize(ctx, "https://idp.example.com/authorize")
	assert.ErrorIs(t, err, apperrors.ErrAuthProviderError)
	assert.Contains(t, err.Error(), "user said no")
}

func TestBrowserAuthorizer_CancelResolvesWithAuthCancelled(t *testing.T) {
	b := NewBrowserAuthorizer("127.0.0.1:18976", discardLogger())
	b.open = func(string) error { return nil } // browser opens, user walks away

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, _, err := b.Authorize(ctx, "https://idp.example.com/authorize")
	assert.ErrorIs(t, err, apperrors.ErrAuthCancelled)
}

func TestBrowserAuthorizer_RedirectURI(t *testing.T) {
	b := NewBrowserAuthorizer("127.0.0.1:8974", discardLogger())
	assert.Equal(t, "http://127.0.0.1:8974/callback", b.RedirectURI())
}

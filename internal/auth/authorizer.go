package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
)

// Authorizer is the external authorization interface: it presents authURL to
// the user and waits for the provider's redirect callback. Implementations
// must resolve with apperrors.ErrAuthCancelled when the user walks away
// (context cancellation) instead of hanging forever.
type Authorizer interface {
	Authorize(ctx context.Context, authURL string) (code, state string, err error)
}

// callbackResult carries the parsed redirect parameters.
type callbackResult struct {
	code  string
	state string
	err   error
}

// BrowserAuthorizer opens the system browser and runs a loopback HTTP server
// to catch the provider's redirect.
type BrowserAuthorizer struct {
	addr   string
	open   func(url string) error
	logger *slog.Logger
}

// NewBrowserAuthorizer creates an authorizer listening on the loopback
// address the redirect URI points at, e.g. "127.0.0.1:8974".
func NewBrowserAuthorizer(addr string, logger *slog.Logger) *BrowserAuthorizer {
	return &BrowserAuthorizer{
		addr:   addr,
		open:   openBrowser,
		logger: logger,
	}
}

// RedirectURI returns the redirect URI the loopback server answers on.
func (b *BrowserAuthorizer) RedirectURI() string {
	return "http://" + b.addr + "/callback"
}

// Authorize opens the browser at authURL and waits for exactly one redirect
// callback. Cancelling ctx (user gave up) resolves with ErrAuthCancelled.
func (b *BrowserAuthorizer) Authorize(ctx context.Context, authURL string) (string, string, error) {
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return "", "", fmt.Errorf("listen on callback address %s: %w", b.addr, err)
	}

	results := make(chan callbackResult, 1)

	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()

		if provErr := q.Get("error"); provErr != "" {
			msg := q.Get("error_description")
			if msg == "" {
				msg = provErr
			}
			writeCallbackPage(w, "Sign-in failed. You can close this window.")
			select {
			case results <- callbackResult{err: apperrors.AuthProvider(msg)}:
			default:
			}
			return
		}

		writeCallbackPage(w, "Signed in. You can close this window.")
		select {
		case results <- callbackResult{code: q.Get("code"), state: q.Get("state")}:
		default:
		}
	})

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			b.logger.Error("callback server error", slog.String("error", serveErr.Error()))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := b.open(authURL); err != nil {
		return "", "", fmt.Errorf("open authorization interface: %w", err)
	}

	select {
	case res := <-results:
		if res.err != nil {
			return "", "", res.err
		}
		return res.code, res.state, nil
	case <-ctx.Done():
		return "", "", fmt.Errorf("%w: %w", apperrors.ErrAuthCancelled, ctx.Err())
	}
}

func writeCallbackPage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html><html><body><p>%s</p></body></html>", message)
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// Package auth owns the session lifecycle: the OAuth2 code-with-PKCE login,
// restore from persisted storage, and logout. Every other component receives
// read-only session snapshots through Current or Subscribe.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/Mattheo4427/eventy-core/internal/domain"
	"github.com/Mattheo4427/eventy-core/internal/token"
	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
)

// Config holds the identity provider endpoints and client registration.
type Config struct {
	AuthURL     string
	TokenURL    string
	ClientID    string
	RedirectURI string
	Scopes      []string
}

// Service is the single owner of the Session. All mutation happens here;
// the API client only reads a token copy and signals invalidation back.
type Service struct {
	oauth      oauth2.Config
	store      token.Store
	authorizer Authorizer
	logger     *slog.Logger

	mu          sync.Mutex
	current     *domain.Session
	subscribers []func(*domain.Session)

	loading  bool
	loadOnce sync.Once
}

// NewService creates the auth service. The session starts absent and
// Loading reports true until Restore has run once.
func NewService(cfg Config, store token.Store, authorizer Authorizer, logger *slog.Logger) *Service {
	return &Service{
		oauth: oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		store:      store,
		authorizer: authorizer,
		logger:     logger,
		loading:    true,
	}
}

// Login runs the authorization-code-with-PKCE flow. A fresh verifier and
// state nonce are generated per attempt and discarded afterwards, success or
// not; a verifier is never reused across attempts.
func (s *Service) Login(ctx context.Context) (*domain.Session, error) {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	authURL := s.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	code, returnedState, err := s.authorizer.Authorize(ctx, authURL)
	if err != nil {
		if errors.Is(err, apperrors.ErrAuthCancelled) || errors.Is(err, apperrors.ErrAuthProviderError) {
			return nil, err
		}
		return nil, fmt.Errorf("authorization interface: %w", err)
	}

	if returnedState != state {
		s.logger.WarnContext(ctx, "authorization state mismatch, discarding attempt")
		return nil, fmt.Errorf("%w: callback state does not match request", apperrors.ErrAuthStateMismatch)
	}

	tok, err := s.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, apperrors.RequestFailed(apperrors.KindNetwork, "token code exchange", err)
	}

	sess, err := DecodeSession(tok.AccessToken)
	if err != nil {
		// The exchange worked but the token is unusable. Fatal to this
		// attempt, not to the process.
		s.logger.ErrorContext(ctx, "token from successful exchange failed to decode",
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if err := s.store.Save(ctx, tok.AccessToken); err != nil {
		// A broken keystore costs us restore-after-restart, nothing more.
		s.logger.WarnContext(ctx, "failed to persist token",
			slog.String("error", err.Error()),
		)
	}

	s.publish(sess)

	s.logger.InfoContext(ctx, "login complete",
		slog.String("subject_id", sess.SubjectID),
		slog.String("role", string(sess.Role)),
	)

	return s.snapshot(), nil
}

// Restore rebuilds the session from persisted storage at process start. It
// always completes: a missing, unreadable, malformed, or expired token all
// resolve to an absent session, and Loading flips to false exactly once
// whatever the outcome.
func (s *Service) Restore(ctx context.Context) {
	defer s.loadOnce.Do(func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	})

	accessToken, err := s.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, apperrors.ErrTokenAbsent) {
			s.logger.WarnContext(ctx, "token storage unavailable, starting logged out",
				slog.String("error", err.Error()),
			)
		}
		return
	}

	sess, err := DecodeSession(accessToken)
	if err != nil {
		s.logger.WarnContext(ctx, "persisted token is malformed, clearing it",
			slog.String("error", err.Error()),
		)
		s.clearStore(ctx)
		return
	}

	if sess.Expired(time.Now()) {
		s.logger.InfoContext(ctx, "persisted token expired, clearing it",
			slog.String("subject_id", sess.SubjectID),
		)
		s.clearStore(ctx)
		return
	}

	s.publish(sess)

	s.logger.InfoContext(ctx, "session restored",
		slog.String("subject_id", sess.SubjectID),
	)
}

// Logout clears the in-memory session and the persisted token. Calling it
// while already logged out is a no-op.
func (s *Service) Logout(ctx context.Context) {
	s.clearStore(ctx)

	s.mu.Lock()
	wasLoggedIn := s.current != nil
	s.mu.Unlock()

	if !wasLoggedIn {
		return
	}

	s.publish(nil)
	s.logger.InfoContext(ctx, "logged out")
}

// InvalidationHook returns the callback the API client fires when the
// backend rejects the credentials. It forces a full logout, keeping this
// service the single authority on session teardown.
func (s *Service) InvalidationHook() func() {
	return func() {
		s.Logout(context.Background())
	}
}

// Current returns a read-only snapshot of the session, or false when logged out.
func (s *Service) Current() (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.Session{}, false
	}
	return *s.current, true
}

// Loading reports whether the initial Restore has not yet completed.
func (s *Service) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe registers fn to run on every session change. A nil session
// means logged out. Callbacks run synchronously on the goroutine that
// triggered the change.
func (s *Service) Subscribe(fn func(*domain.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// snapshot returns a pointer to a copy of the current session, or nil.
func (s *Service) snapshot() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

func (s *Service) publish(sess *domain.Session) {
	s.mu.Lock()
	s.current = sess
	subscribers := make([]func(*domain.Session), len(s.subscribers))
	copy(subscribers, s.subscribers)
	var snapshot *domain.Session
	if sess != nil {
		cp := *sess
		snapshot = &cp
	}
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}
}

func (s *Service) clearStore(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to clear token storage",
			slog.String("error", err.Error()),
		)
	}
}

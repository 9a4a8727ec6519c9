// Package app wires the client core together: token storage, the auth
// session, the API client, the poll watchers, favorites, and the purchase
// flow, plus the admin HTTP endpoint exposing health and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Mattheo4427/eventy-core/internal/api"
	"github.com/Mattheo4427/eventy-core/internal/auth"
	"github.com/Mattheo4427/eventy-core/internal/config"
	"github.com/Mattheo4427/eventy-core/internal/domain"
	"github.com/Mattheo4427/eventy-core/internal/favorite"
	"github.com/Mattheo4427/eventy-core/internal/poll"
	"github.com/Mattheo4427/eventy-core/internal/purchase"
	"github.com/Mattheo4427/eventy-core/internal/token"
	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
	"github.com/Mattheo4427/eventy-core/pkg/health"
	"github.com/Mattheo4427/eventy-core/pkg/httpclient"
	"github.com/Mattheo4427/eventy-core/pkg/middleware"
)

// App owns every long-lived component of the agent.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	rdb           *redis.Client
	apiClient     *api.Client
	authService   *auth.Service
	messages      *poll.Messages
	notifications *poll.Notifications
	orchestrator  *purchase.Orchestrator
	httpServer    *http.Server

	mu           sync.Mutex
	baseCtx      context.Context
	convWatcher  *poll.Poller[[]domain.Conversation]
	notifWatcher *poll.Poller[[]domain.Notification]
	favorites    *favorite.Reconciler
}

// NewApp creates the application with all dependencies wired. The sheet
// provider is injected by the embedding binary; a headless agent passes
// purchase.UnsupportedSheet.
func NewApp(cfg *config.Config, logger *slog.Logger, sheet purchase.SheetProvider) (*App, error) {
	a := &App{
		cfg:     cfg,
		logger:  logger,
		baseCtx: context.Background(),
	}

	store, err := a.newTokenStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	// One transport for all marketplace traffic, behind a breaker so a
	// dead backend does not keep burning poll fetches.
	base := httpclient.New(httpclient.DefaultConfig())
	breaker := httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("marketplace"), logger)
	a.apiClient = api.New(cfg.APIBaseURL, breaker, logger,
		api.WithRateLimit(cfg.APIRateRPS, cfg.APIRateBurst))

	authorizer := auth.NewBrowserAuthorizer(cfg.CallbackAddr, logger)
	a.authService = auth.NewService(auth.Config{
		AuthURL:     cfg.AuthURL,
		TokenURL:    cfg.TokenURL,
		ClientID:    cfg.ClientID,
		RedirectURI: authorizer.RedirectURI(),
		Scopes:      cfg.Scopes,
	}, store, authorizer, logger)

	// Rejected credentials force a logout; the logout propagates back to
	// the session subscribers, which tears the watchers down.
	a.apiClient.OnSessionInvalidated(a.authService.InvalidationHook())
	a.authService.Subscribe(a.onSessionChange)

	a.messages = poll.NewMessages(a.apiClient, logger)
	a.notifications = poll.NewNotifications(a.apiClient, logger)
	a.orchestrator = purchase.New(a.apiClient, sheet, cfg.MerchantName, logger)

	healthHandler := health.NewHandler()
	healthHandler.Register("session", func(ctx context.Context) error {
		if a.authService.Loading() {
			return errors.New("session restore in progress")
		}
		return nil
	})
	healthHandler.Register("token_store", func(ctx context.Context) error {
		if _, err := store.Load(ctx); errors.Is(err, apperrors.ErrStorageUnavailable) {
			return err
		}
		return nil
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      a.newRouter(healthHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

func (a *App) newTokenStore(cfg *config.Config, logger *slog.Logger) (token.Store, error) {
	switch cfg.TokenStore {
	case "file":
		path := cfg.TokenPath
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("resolve token path: %w", err)
			}
			path = filepath.Join(dir, "eventy", "token.bin")
		}
		return token.NewFileStore(path, cfg.TokenSecret)

	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		return token.NewRedisStore(a.rdb, cfg.DeviceID, cfg.TokenTTL())

	case "memory":
		return token.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

func (a *App) newRouter(healthHandler *health.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestLogging(a.logger))
	r.Use(middleware.PrometheusMetrics())

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, []string{"127.0.0.0/8"}, a.logger)

	return r
}

// onSessionChange reacts to every session transition: sign-in hands the
// token to the API client and starts the watchers, sign-out (including a
// forced one after an invalidation) tears them down again.
func (a *App) onSessionChange(sess *domain.Session) {
	if sess == nil {
		a.apiClient.ClearToken()
		a.stopWatchers()
		a.logger.Info("session ended, watchers stopped")
		return
	}

	a.apiClient.SetToken(sess.AccessToken)
	a.startWatchers(sess.SubjectID)
	a.logger.Info("session established",
		slog.String("subject_id", sess.SubjectID),
		slog.String("role", string(sess.Role)),
	)
}

func (a *App) startWatchers(subjectID string) {
	a.stopWatchers()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.convWatcher = a.messages.NewWatcher(a.cfg.MessagePollInterval(),
		func(conversations []domain.Conversation, sig poll.Signal) {
			a.logger.Info("new messages",
				slog.Int("unread", sig.Unseen),
				slog.String("conversation_id", sig.ItemID))
		}, nil)
	a.notifWatcher = a.notifications.NewWatcher(a.cfg.NotificationPollInterval(),
		func(notifications []domain.Notification, sig poll.Signal) {
			a.logger.Info("new notifications",
				slog.Int("unread", sig.Unseen),
				slog.String("notification_id", sig.ItemID))
		})
	a.convWatcher.Start(a.baseCtx)
	a.notifWatcher.Start(a.baseCtx)

	a.favorites = favorite.New(a.apiClient, subjectID, a.logger)
	baseCtx := a.baseCtx
	go func(r *favorite.Reconciler) {
		ctx, cancel := context.WithTimeout(baseCtx, 30*time.Second)
		defer cancel()
		if err := r.Load(ctx); err != nil {
			a.logger.Warn("favorites seed failed", slog.String("error", err.Error()))
		}
	}(a.favorites)
}

func (a *App) stopWatchers() {
	a.mu.Lock()
	conv, notif := a.convWatcher, a.notifWatcher
	a.convWatcher, a.notifWatcher = nil, nil
	a.favorites = nil
	a.mu.Unlock()

	if conv != nil {
		conv.Stop()
	}
	if notif != nil {
		notif.Stop()
	}
}

// Auth exposes the session service to the embedding binary.
func (a *App) Auth() *auth.Service { return a.authService }

// Purchases exposes the purchase orchestrator.
func (a *App) Purchases() *purchase.Orchestrator { return a.orchestrator }

// Messages exposes the messaging client.
func (a *App) Messages() *poll.Messages { return a.messages }

// Notifications exposes the notifications client.
func (a *App) Notifications() *poll.Notifications { return a.notifications }

// Favorites returns the reconciler for the signed-in user, or nil when
// logged out.
func (a *App) Favorites() *favorite.Reconciler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.favorites
}

// Run restores any persisted session, starts the admin HTTP server, and
// blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.baseCtx = ctx
	a.mu.Unlock()

	a.authService.Restore(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting admin HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	a.stopWatchers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return nil
}

// Package favorite keeps the user's favorite events in sync with the
// backend using optimistic local updates: a toggle flips the local state
// immediately and reconciles with the server in the same call, rolling
// back if the server refuses.
package favorite

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Mattheo4427/eventy-core/internal/api"
	"github.com/Mattheo4427/eventy-core/internal/domain"
	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
)

var togglesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eventy_favorite_toggles_total",
	Help: "Favorite toggle reconciliation outcomes.",
}, []string{"result"})

type favoriteRequest struct {
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
}

// Reconciler owns the local favorite set for one signed-in user. Toggles
// for the same event are serialized so rapid taps cannot interleave their
// server calls; toggles for different events proceed independently.
type Reconciler struct {
	api    *api.Client
	userID string
	logger *slog.Logger

	mu        sync.Mutex
	favorites map[string]bool
	keys      map[string]*sync.Mutex
	onChange  []func(eventID string, favorited bool)
}

// New creates a Reconciler for the given user with an empty local set.
func New(apiClient *api.Client, userID string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		api:       apiClient,
		userID:    userID,
		logger:    logger,
		favorites: make(map[string]bool),
		keys:      make(map[string]*sync.Mutex),
	}
}

// OnChange registers a callback fired whenever an event's favorite state
// changes, including the rollback after a failed reconciliation.
func (r *Reconciler) OnChange(fn func(eventID string, favorited bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Load replaces the local set with the server's view. Called once after
// sign-in and again whenever a full refresh is wanted.
func (r *Reconciler) Load(ctx context.Context) error {
	var relations []domain.FavoriteRelation
	path := fmt.Sprintf("/favorites/user/%s", r.userID)
	if err := r.api.DoJSON(ctx, http.MethodGet, path, nil, &relations); err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}

	fresh := make(map[string]bool, len(relations))
	for _, rel := range relations {
		fresh[rel.EventID] = true
	}

	r.mu.Lock()
	r.favorites = fresh
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "favorites loaded", slog.Int("count", len(fresh)))
	return nil
}

// IsFavorite reports the current local state for an event.
func (r *Reconciler) IsFavorite(eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.favorites[eventID]
}

// Favorites returns the favorited event ids in stable order.
func (r *Reconciler) Favorites() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.favorites))
	for id := range r.favorites {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Toggle flips the favorite state of an event. The local flip happens
// before the server call so the UI reflects the tap instantly; a server
// refusal rolls the flip back and reports a reconcile failure carrying
// the reverted state. The returned bool is the state the event ended in.
func (r *Reconciler) Toggle(ctx context.Context, eventID string) (bool, error) {
	key := r.keyLock(eventID)
	key.Lock()
	defer key.Unlock()

	r.mu.Lock()
	was := r.favorites[eventID]
	target := !was
	r.applyLocked(eventID, target)
	callbacks := r.callbacksLocked()
	r.mu.Unlock()
	notify(callbacks, eventID, target)

	if err := r.push(ctx, eventID, target); err != nil {
		r.mu.Lock()
		r.applyLocked(eventID, was)
		callbacks = r.callbacksLocked()
		r.mu.Unlock()
		notify(callbacks, eventID, was)

		togglesTotal.WithLabelValues("rolled_back").Inc()
		r.logger.WarnContext(ctx, "favorite toggle rolled back",
			slog.String("event_id", eventID),
			slog.Bool("reverted_to", was),
			slog.String("error", err.Error()))
		return was, apperrors.ReconcileFailed(eventID, err)
	}

	togglesTotal.WithLabelValues("confirmed").Inc()
	return target, nil
}

// push reconciles one flip with the server. The backend's favorite
// endpoints are idempotent from this client's point of view: favoriting
// something already favorited and unfavoriting something already gone
// both count as success.
func (r *Reconciler) push(ctx context.Context, eventID string, favorited bool) error {
	if favorited {
		err := r.api.DoJSON(ctx, http.MethodPost, "/favorites",
			favoriteRequest{UserID: r.userID, EventID: eventID}, nil)
		if api.StatusOf(err) == http.StatusConflict {
			return nil
		}
		return err
	}

	path := fmt.Sprintf("/favorites/user/%s/event/%s", r.userID, eventID)
	err := r.api.DoJSON(ctx, http.MethodDelete, path, nil, nil)
	if api.StatusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}

func (r *Reconciler) applyLocked(eventID string, favorited bool) {
	if favorited {
		r.favorites[eventID] = true
	} else {
		delete(r.favorites, eventID)
	}
}

func (r *Reconciler) callbacksLocked() []func(string, bool) {
	callbacks := make([]func(string, bool), len(r.onChange))
	copy(callbacks, r.onChange)
	return callbacks
}

func notify(callbacks []func(string, bool), eventID string, favorited bool) {
	for _, fn := range callbacks {
		fn(eventID, favorited)
	}
}

// keyLock returns the mutex serializing toggles of one event.
func (r *Reconciler) keyLock(eventID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.keys[eventID]; ok {
		return m
	}
	m := &sync.Mutex{}
	r.keys[eventID] = m
	return m
}

package poll

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mattheo4427/eventy-core/internal/api"
	"github.com/Mattheo4427/eventy-core/internal/domain"
)

// Notifications talks to the notification endpoints and builds the
// watcher for the notification bell.
type Notifications struct {
	api    *api.Client
	logger *slog.Logger
}

func NewNotifications(apiClient *api.Client, logger *slog.Logger) *Notifications {
	return &Notifications{api: apiClient, logger: logger}
}

// List returns the user's notifications, newest first as ordered by
// the backend.
func (n *Notifications) List(ctx context.Context) ([]domain.Notification, error) {
	var notifications []domain.Notification
	if err := n.api.DoJSON(ctx, http.MethodGet, "/notifications", nil, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkRead marks a single notification as read.
func (n *Notifications) MarkRead(ctx context.Context, notificationID string) error {
	path := fmt.Sprintf("/notifications/%s/read", notificationID)
	return n.api.DoJSON(ctx, http.MethodPost, path, nil, nil)
}

// NotificationSignal digests the list into the unread count plus the
// newest unread notification.
func NotificationSignal(notifications []domain.Notification) Signal {
	sig := Signal{}
	var latest time.Time
	for _, nt := range notifications {
		if nt.Read {
			continue
		}
		sig.Unseen++
		if sig.ItemID == "" || nt.CreatedAt.After(latest) {
			latest = nt.CreatedAt.Time
			sig.ItemID = nt.ID
		}
	}
	return sig
}

// NewWatcher builds the poller for the notification feed.
func (n *Notifications) NewWatcher(
	interval time.Duration,
	onNew func(notifications []domain.Notification, sig Signal),
) *Poller[[]domain.Notification] {
	return New(
		"notifications",
		interval,
		n.List,
		NotificationSignal,
		onNew,
		n.logger,
	)
}

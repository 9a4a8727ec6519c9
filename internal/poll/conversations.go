package poll

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mattheo4427/eventy-core/internal/api"
	"github.com/Mattheo4427/eventy-core/internal/domain"
	"github.com/Mattheo4427/eventy-core/pkg/validator"
)

// Messages talks to the messaging endpoints and builds the watcher
// that keeps the conversation list fresh.
type Messages struct {
	api    *api.Client
	logger *slog.Logger
}

func NewMessages(apiClient *api.Client, logger *slog.Logger) *Messages {
	return &Messages{api: apiClient, logger: logger}
}

// ListConversations returns every conversation the signed-in user is a
// party to, newest activity first as ordered by the backend.
func (m *Messages) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	if err := m.api.DoJSON(ctx, http.MethodGet, "/interactions/messages/conversations", nil, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// ListMessages returns the full message history of one conversation.
func (m *Messages) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var messages []domain.Message
	path := fmt.Sprintf("/interactions/messages/conversations/%s/messages", conversationID)
	if err := m.api.DoJSON(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
}

// Send posts a new message into a conversation and returns the stored
// message as the backend recorded it.
func (m *Messages) Send(ctx context.Context, conversationID, content string) (*domain.Message, error) {
	req := sendMessageRequest{Content: content}
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	var message domain.Message
	path := fmt.Sprintf("/interactions/messages/conversations/%s/messages", conversationID)
	if err := m.api.DoJSON(ctx, http.MethodPost, path, req, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// ConversationSignal digests a conversation list into the total unread
// count plus the conversation whose unread activity is most recent.
// Ties keep the backend's ordering, so the digest is stable across
// fetches that return the same data.
func ConversationSignal(conversations []domain.Conversation) Signal {
	sig := Signal{}
	var latest time.Time
	for _, c := range conversations {
		if c.UnreadCount == 0 {
			continue
		}
		sig.Unseen += c.UnreadCount
		if at := c.LastActivity(); sig.ItemID == "" || at.After(latest) {
			latest = at.Time
			sig.ItemID = c.ID
		}
	}
	return sig
}

// NewWatcher builds the poller for the conversation feed. focused
// reports whether a given conversation is open on screen; alerts for
// that conversation are suppressed while it is.
func (m *Messages) NewWatcher(
	interval time.Duration,
	onNew func(conversations []domain.Conversation, sig Signal),
	focused func(conversationID string) bool,
) *Poller[[]domain.Conversation] {
	opts := []Option[[]domain.Conversation]{}
	if focused != nil {
		opts = append(opts, WithFocus[[]domain.Conversation](focused))
	}
	return New(
		"conversations",
		interval,
		m.ListConversations,
		ConversationSignal,
		onNew,
		m.logger,
		opts...,
	)
}

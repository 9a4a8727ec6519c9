package poll

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mattheo4427/eventy-core/internal/api"
	"github.com/Mattheo4427/eventy-core/internal/domain"
	"github.com/Mattheo4427/eventy-core/pkg/httpclient"
)

func newMessagesClient(t *testing.T, handler http.Handler) (*Messages, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	apiClient := api.New(srv.URL, httpclient.New(httpclient.DefaultConfig()), testLogger())
	return NewMessages(apiClient, testLogger()), srv
}

func TestMessagesListConversations(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/interactions/messages/conversations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"c1","event_id":"e1","peer_id":"u2","peer_name":"Lena","unread_count":2,
			 "last_message":{"id":"m9","conversation_id":"c1","sender_id":"u2",
			 "content":"still available?","sent_at":"2026-03-01T12:00:00Z","read":false}}
		]`))
	})
	messages, _ := newMessagesClient(t, handler)

	conversations, err := messages.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, "Lena", conversations[0].PeerName)
	assert.Equal(t, 2, conversations[0].UnreadCount)
	assert.Equal(t, "still available?", conversations[0].LastMessage.Content)
}

func TestMessagesSend(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/interactions/messages/conversations/c1/messages", r.URL.Path)

		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "is the seat still free?", req.Content)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.Message{
			ID:             "m10",
			ConversationID: "c1",
			Content:        req.Content,
		})
	})
	messages, _ := newMessagesClient(t, handler)

	sent, err := messages.Send(context.Background(), "c1", "is the seat still free?")
	require.NoError(t, err)
	assert.Equal(t, "m10", sent.ID)
}

func TestMessagesSendRejectsInvalidContent(t *testing.T) {
	var hits int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})
	messages, _ := newMessagesClient(t, handler)

	_, err := messages.Send(context.Background(), "c1", "")
	assert.Error(t, err)

	_, err = messages.Send(context.Background(), "c1", strings.Repeat("x", 2001))
	assert.Error(t, err)

	assert.Zero(t, atomic.LoadInt32(&hits), "invalid messages never reach the backend")
}

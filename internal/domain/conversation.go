package domain

// Message is a single message inside a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	SentAt         Timestamp `json:"sent_at"`
	Read           bool      `json:"read"`
}

// Conversation is a buyer/seller message thread as listed by the backend.
type Conversation struct {
	ID          string   `json:"id"`
	EventID     string   `json:"event_id"`
	PeerID      string   `json:"peer_id"`
	PeerName    string   `json:"peer_name"`
	UnreadCount int      `json:"unread_count"`
	LastMessage *Message `json:"last_message,omitempty"`
}

// LastActivity returns the timestamp of the newest message, or the zero
// Timestamp when the conversation has none.
func (c *Conversation) LastActivity() Timestamp {
	if c.LastMessage == nil {
		return Timestamp{}
	}
	return c.LastMessage.SentAt
}

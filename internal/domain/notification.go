package domain

// Notification is a user-facing notification as listed by the backend.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt Timestamp `json:"created_at"`
}

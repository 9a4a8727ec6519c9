package domain

// FavoriteRelation marks an event as favorited by a user. It is created
// optimistically on user action and confirmed or rolled back once the
// backend responds.
type FavoriteRelation struct {
	UserID          string `json:"user_id"`
	EventID         string `json:"event_id"`
	ServerConfirmed bool   `json:"server_confirmed"`
}

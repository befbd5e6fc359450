package models

import "time"

// Session is one conversation thread. Only LastActivity changes after creation.
type Session struct {
	ID           string    `json:"id" db:"id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastActivity time.Time `json:"last_activity" db:"last_activity"`
}

// SessionSummary is a session row with the number of messages it owns.
type SessionSummary struct {
	Session
	MessageCount int `json:"message_count" db:"message_count"`
}

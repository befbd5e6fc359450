package models

import "time"

// Message captures one side of a chat turn. HTMLContent is set only on bot
// replies that carried a renderable fragment.
type Message struct {
	ID          string    `json:"id" db:"id"`
	SessionID   string    `json:"session_id" db:"session_id"`
	Content     string    `json:"content" db:"content"`
	IsUser      bool      `json:"is_user" db:"is_user"`
	HTMLContent *string   `json:"html_content" db:"html_content"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

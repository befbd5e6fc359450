package assistant

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chatbridge/internal/models"
	"chatbridge/internal/service/responder"
)

// ListMessages returns a session transcript in insertion order. Unknown
// sessions yield an empty slice.
func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.SelectContext(ctx, &messages, `
		SELECT id, session_id, content, is_user, html_content, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC, seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// History adapts ListMessages for responders that keep conversation context.
func (s *Service) History(ctx context.Context, sessionID string) ([]responder.HistoryTurn, error) {
	messages, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turns := make([]responder.HistoryTurn, len(messages))
	for i, msg := range messages {
		turns[i] = responder.HistoryTurn{Content: msg.Content, IsUser: msg.IsUser}
	}
	return turns, nil
}

// AppendMessage stores a new message. ID and CreatedAt are assigned here.
func (s *Service) AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	msg.ID = "msg-" + uuid.NewString()
	msg.CreatedAt = s.now()
	if msg.IsUser {
		msg.HTMLContent = nil
	}
	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO messages (id, session_id, content, is_user, html_content, created_at)
		VALUES (:id, :session_id, :content, :is_user, :html_content, :created_at)`, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

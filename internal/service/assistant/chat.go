package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"

	"chatbridge/internal/models"
	"chatbridge/internal/service/responder"
)

// TurnInput is one user message addressed to a session.
type TurnInput struct {
	ChatInput string `json:"chatInput"`
	SessionID string `json:"sessionId"`
}

// Validate rejects empty input or session ids. Whitespace counts as input.
func (in TurnInput) Validate() error {
	if in.ChatInput == "" || in.SessionID == "" {
		return ErrValidation
	}
	return nil
}

// TurnResult is what the client receives for a finished turn.
type TurnResult struct {
	Output    string  `json:"output"`
	HTMLCode  *string `json:"html_code"`
	MessageID string  `json:"messageId"`
}

// Chat records the user message, asks the responder for an answer and records
// it. When the responder fails the error phrase is stored as the bot message and
// returned alongside ErrUpstream.
func (s *Service) Chat(ctx context.Context, in TurnInput) (*TurnResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if s.responder == nil {
		return nil, errors.New("responder not configured")
	}

	if err := s.EnsureSession(ctx, in.SessionID); err != nil {
		log.Printf("chat turn %s: %v", in.SessionID, err)
	}
	if err := s.TouchSession(ctx, in.SessionID); err != nil {
		log.Printf("chat turn %s: %v", in.SessionID, err)
	}
	defer s.cache.invalidate(ctx)

	if _, err := s.AppendMessage(ctx, models.Message{
		SessionID: in.SessionID,
		Content:   in.ChatInput,
		IsUser:    true,
	}); err != nil {
		return nil, fmt.Errorf("%w: save user message: %w", ErrStorage, err)
	}

	reply, err := s.responder.Respond(ctx, responder.Request{ChatInput: in.ChatInput, SessionID: in.SessionID})
	if err != nil {
		log.Printf("chat turn %s: responder failed: %v", in.SessionID, err)
		result := &TurnResult{Output: s.errReply}
		saved, saveErr := s.AppendMessage(ctx, models.Message{
			SessionID: in.SessionID,
			Content:   s.errReply,
		})
		if saveErr != nil {
			log.Printf("chat turn %s: save error message: %v", in.SessionID, saveErr)
		} else {
			result.MessageID = saved.ID
		}
		return result, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	output := responder.Normalize(reply, s.fallback)
	saved, err := s.AppendMessage(ctx, models.Message{
		SessionID:   in.SessionID,
		Content:     output,
		HTMLContent: reply.HTML,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: save bot message: %w", ErrStorage, err)
	}
	return &TurnResult{Output: output, HTMLCode: reply.HTML, MessageID: saved.ID}, nil
}

package responder

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// Request is what a responder receives for one chat turn.
type Request struct {
	ChatInput string `json:"chatInput"`
	SessionID string `json:"sessionId"`
}

// Responder produces the bot side of a chat turn.
type Responder interface {
	Respond(ctx context.Context, req Request) (Reply, error)
}

// StatusError reports a non-2xx answer from the webhook.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("responder returned status %d", e.Code)
	}
	return fmt.Sprintf("responder returned status %d: %s", e.Code, e.Body)
}

var debugEnabled = strings.EqualFold(os.Getenv("CHATBRIDGE_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf(format, args...)
	}
}

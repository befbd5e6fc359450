package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatbridge/internal/config"
)

const maxReplyBytes = 4 << 20

// Webhook posts each turn to an external workflow endpoint.
type Webhook struct {
	url     string
	client  *http.Client
	timeout time.Duration
	retries int
	backoff time.Duration
}

// NewWebhook builds a webhook responder from the responder config.
func NewWebhook(cfg config.ResponderConfig) (*Webhook, error) {
	if cfg.WebhookURL == "" {
		return nil, errors.New("webhook url is required")
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Webhook{
		url:     cfg.WebhookURL,
		client:  &http.Client{},
		timeout: timeout,
		retries: retries,
		backoff: 500 * time.Millisecond,
	}, nil
}

// Respond sends {chatInput, sessionId} and decodes the answer. Transport
// failures and 5xx answers are retried; 4xx and malformed bodies are not.
func (w *Webhook) Respond(ctx context.Context, req Request) (Reply, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("encode webhook request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Reply{}, ctx.Err()
			case <-time.After(w.backoff):
			}
			debugLog("[responder] retry %d for session %s after: %v", attempt, req.SessionID, lastErr)
		}
		body, err := w.post(ctx, payload)
		if err == nil {
			debugLog("[responder] session %s raw reply: %s", req.SessionID, body)
			reply, err := Decode(body)
			if err != nil {
				return Reply{}, err
			}
			return reply, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}
	return Reply{}, lastErr
}

func (w *Webhook) post(ctx context.Context, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call webhook: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read webhook reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	return true
}

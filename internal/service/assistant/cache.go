package assistant

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"chatbridge/internal/models"
	"chatbridge/internal/redis"
)

const (
	sessionListPrefix     = "chatbridge:sessions:"
	sessionListGeneration = "chatbridge:sessions:gen"
	sessionDeletedChannel = "chatbridge:session-deleted"
)

// SessionCache keeps the session listing in redis between writes. A nil
// *SessionCache is valid and caches nothing.
//
// Listings are stored under a generation number that every write bumps, so
// a listing read from the database before a write can never be served after it.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache wraps client; a nil client yields a nil cache.
func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SessionCache{client: client, ttl: ttl}
}

func sessionListKey(gen int64) string {
	return sessionListPrefix + strconv.FormatInt(gen, 10)
}

// load returns the cached listing of the current generation. On a miss the
// generation is still returned so the caller can store what it reads; -1
// means nothing may be stored.
func (c *SessionCache) load(ctx context.Context) ([]models.SessionSummary, int64, bool) {
	if c == nil || c.client == nil {
		return nil, -1, false
	}
	gen, err := c.client.Generation(ctx, sessionListGeneration)
	if err != nil {
		log.Printf("session cache generation failed: %v", err)
		return nil, -1, false
	}
	sessions := []models.SessionSummary{}
	if err := c.client.GetJSON(ctx, sessionListKey(gen), &sessions); err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			log.Printf("session cache load failed: %v", err)
		}
		return nil, gen, false
	}
	return sessions, gen, true
}

func (c *SessionCache) store(ctx context.Context, gen int64, sessions []models.SessionSummary) {
	if c == nil || c.client == nil || gen < 0 {
		return
	}
	if err := c.client.SetJSON(ctx, sessionListKey(gen), sessions, c.ttl); err != nil {
		log.Printf("session cache store failed: %v", err)
	}
}

func (c *SessionCache) invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	// the turn context may already be gone; the bump still has to happen
	ctx = context.WithoutCancel(ctx)
	if _, err := c.client.Bump(ctx, sessionListGeneration); err != nil {
		log.Printf("session cache invalidate failed: %v", err)
	}
}

func (c *SessionCache) publishDeleted(ctx context.Context, sessionID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Publish(ctx, sessionDeletedChannel, sessionID); err != nil {
		log.Printf("publish session deletion failed: %v", err)
	}
}

// ListenDeleted calls handler for every session deleted by any instance until
// ctx is cancelled.
func (c *SessionCache) ListenDeleted(ctx context.Context, handler func(sessionID string)) {
	if c == nil || c.client == nil || handler == nil {
		return
	}
	pubsub, err := c.client.Subscribe(ctx, sessionDeletedChannel)
	if err != nil {
		log.Printf("listen for session deletions: %v", err)
		return
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Payload)
			}
		}
	}()
}

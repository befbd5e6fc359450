package assistant

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"chatbridge/internal/config"
	"chatbridge/internal/service/responder"
	"chatbridge/internal/storage"
)

type responderFunc func(ctx context.Context, req responder.Request) (responder.Reply, error)

func (f responderFunc) Respond(ctx context.Context, req responder.Request) (responder.Reply, error) {
	return f(ctx, req)
}

// replyJSON answers every turn with the given webhook body.
func replyJSON(t *testing.T, body string) responder.Responder {
	t.Helper()
	return responderFunc(func(ctx context.Context, req responder.Request) (responder.Reply, error) {
		return responder.Decode([]byte(body))
	})
}

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(t.TempDir(), "chat.db")},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, r responder.Responder) (*Service, *sqlx.DB) {
	t.Helper()
	db := openTestDB(t)
	svc, err := NewService(db, Options{Driver: "sqlite3", Responder: r})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db
}

// steppedClock returns strictly increasing timestamps one second apart.
func steppedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func countMessages(t *testing.T, db *sqlx.DB, sessionID string) int {
	t.Helper()
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}

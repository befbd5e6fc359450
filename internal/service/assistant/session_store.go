package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"chatbridge/internal/models"
)

const createSessionAttempts = 5

// CreateSession inserts a new empty session and returns the record.
func (s *Service) CreateSession(ctx context.Context) (*models.Session, error) {
	for attempt := 0; attempt < createSessionAttempts; attempt++ {
		now := s.now()
		session := &models.Session{ID: "sess-" + uuid.NewString(), CreatedAt: now, LastActivity: now}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, created_at, last_activity) VALUES (?, ?, ?)`,
			session.ID, session.CreatedAt, session.LastActivity,
		)
		if err == nil {
			s.cache.invalidate(ctx)
			return session, nil
		}
		if !isDuplicateKey(err) {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}
	return nil, errors.New("create session: could not allocate a unique id")
}

// ListSessions returns every session with its message count, most recently active first.
func (s *Service) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	cached, gen, ok := s.cache.load(ctx)
	if ok {
		return cached, nil
	}
	sessions := []models.SessionSummary{}
	err := s.db.SelectContext(ctx, &sessions, `
		SELECT s.id, s.created_at, s.last_activity,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id) AS message_count
		FROM sessions s
		ORDER BY s.last_activity DESC, s.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	s.cache.store(ctx, gen, sessions)
	return sessions, nil
}

// DeleteSession removes a session; its messages go with it through the foreign key.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	s.cache.invalidate(ctx)
	s.cache.publishDeleted(ctx, sessionID)
	if s.onDelete != nil {
		s.onDelete(sessionID)
	}
	return nil
}

// TouchSession bumps last_activity. Unknown ids are ignored.
func (s *Service) TouchSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = ? WHERE id = ?`, s.now(), sessionID,
	); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// EnsureSession creates the session row if it does not exist yet.
func (s *Service) EnsureSession(ctx context.Context, sessionID string) error {
	query := `INSERT OR IGNORE INTO sessions (id, created_at, last_activity) VALUES (?, ?, ?)`
	if s.driver == "mysql" {
		query = `INSERT IGNORE INTO sessions (id, created_at, last_activity) VALUES (?, ?, ?)`
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, query, sessionID, now, now)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("session %s created by first chat turn", sessionID)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

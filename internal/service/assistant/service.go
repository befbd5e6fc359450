package assistant

import (
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chatbridge/internal/config"
	"chatbridge/internal/service/responder"
	"chatbridge/internal/storage"
)

var (
	// ErrValidation marks a chat turn rejected before any write.
	ErrValidation = errors.New("chatInput and sessionId are required")
	// ErrUpstream marks a turn whose responder call failed; the error phrase was stored.
	ErrUpstream = errors.New("responder call failed")
	// ErrStorage marks a failed database write during a turn.
	ErrStorage = errors.New("storage failure")
	// ErrSessionNotFound is returned when deleting an unknown session.
	ErrSessionNotFound = errors.New("session not found")
)

// Options configures a Service. Zero values fall back to sqlite and the
// default reply phrases.
type Options struct {
	Driver        string
	Responder     responder.Responder
	Cache         *SessionCache
	FallbackReply string
	ErrorReply    string

	// OnSessionDeleted runs after a session row is removed.
	OnSessionDeleted func(sessionID string)
}

// Service owns session and message persistence and runs chat turns.
type Service struct {
	db        *sqlx.DB
	driver    string
	responder responder.Responder
	cache     *SessionCache
	fallback  string
	errReply  string
	onDelete  func(string)
	now       func() time.Time
}

// NewService builds a new assistant service.
func NewService(db *sqlx.DB, opts Options) (*Service, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	driver, err := storage.Driver(opts.Driver)
	if err != nil {
		return nil, err
	}
	if opts.FallbackReply == "" {
		opts.FallbackReply = config.DefaultFallbackReply
	}
	if opts.ErrorReply == "" {
		opts.ErrorReply = config.DefaultErrorReply
	}
	return &Service{
		db:        db,
		driver:    driver,
		responder: opts.Responder,
		cache:     opts.Cache,
		fallback:  opts.FallbackReply,
		errReply:  opts.ErrorReply,
		onDelete:  opts.OnSessionDeleted,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

// ErrorReply is the phrase stored and returned when a turn fails.
func (s *Service) ErrorReply() string {
	return s.errReply
}

package worker

import (
	"context"
	"errors"

	"chatbridge/internal/service/assistant"
)

var (
	// ErrDispatcherBusy is returned when the turn queue is full.
	ErrDispatcherBusy = errors.New("dispatcher queue full")
	// ErrDispatcherClosed is returned once shutdown has started.
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrTurnCancelled is delivered to turns dropped before they ran.
	ErrTurnCancelled = errors.New("turn cancelled")
)

type JobType int

const (
	Turn JobType = iota
	Stop
)

func (t JobType) String() string {
	switch t {
	case Turn:
		return "turn"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// TurnRunner executes one chat turn.
type TurnRunner interface {
	Chat(ctx context.Context, in assistant.TurnInput) (*assistant.TurnResult, error)
}

// Result is delivered exactly once per submitted turn.
type Result struct {
	Turn *assistant.TurnResult
	Err  error
}

type Job struct {
	Type JobType
	Turn *turnTask
}

type turnTask struct {
	seq      uint64 // submission order, starting at 1
	ctx      context.Context
	input    assistant.TurnInput
	resultCh chan Result
	finish   func()
}

func (t *turnTask) complete(res Result) {
	t.resultCh <- res
	t.finish()
}

func (job Job) sessionID() string {
	if job.Turn == nil {
		return ""
	}
	return job.Turn.input.SessionID
}

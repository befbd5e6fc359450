package worker

import (
	"fmt"
	"log"
	"runtime/debug"
)

type Worker struct {
	id         int
	pool       *jobChannelPool
	runner     TurnRunner
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool, runner TurnRunner) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		runner:     runner,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for {
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
			job := <-w.jobChannel
			switch job.Type {
			case Stop:
				w.pool.retire(w.jobChannel)
				debugLog("[worker-%d] stopped", w.id)
				return
			case Turn:
				w.handleTurn(job.Turn)
			}
		}
	}()
}

func (w *Worker) handleTurn(task *turnTask) {
	res := Result{}
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[worker-%d] turn for session %s panicked: %v\n%s", w.id, task.input.SessionID, r, debug.Stack())
				res = Result{Err: fmt.Errorf("turn panicked: %v", r)}
			}
		}()
		turn, err := w.runner.Chat(task.ctx, task.input)
		res = Result{Turn: turn, Err: err}
	}()
	task.complete(res)
}

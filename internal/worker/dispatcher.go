package worker

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"chatbridge/internal/service/assistant"
)

type sessionQueue struct {
	jobs     []Job
	enqueued bool
}

// Options sizes the dispatcher.
type Options struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

// Dispatcher runs chat turns on a bounded worker pool. Waiting turns are
// grouped per session and sessions are served round robin, so one busy
// session cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
	slots    chan struct{} // one per turn waiting for a worker

	submitMu  sync.Mutex // keeps jobQueue in seq order
	submitted atomic.Uint64

	mu        sync.Mutex
	queues    map[string]*sessionQueue
	ready     *list.List // session ids with waiting turns, in service order
	positions map[string]*list.Element

	// cancelled maps a session to the last seq submitted before it was
	// cancelled; turns up to it still in jobQueue are dropped on arrival
	cancelled    map[string]uint64
	lastEnqueued uint64

	closeMu  sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	quit     chan struct{}
	stopped  chan struct{}
}

func NewDispatcher(runner TurnRunner, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	pool := newJobChannelPool(opts.MinWorkers, opts.MaxWorkers, opts.IdleTimeout, runner)

	d := &Dispatcher{
		pool:      pool,
		jobQueue:  make(chan Job, opts.QueueSize),
		slots:     make(chan struct{}, opts.QueueSize),
		queues:    make(map[string]*sessionQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		cancelled: make(map[string]uint64),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	for i := 0; i < pool.min; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues a turn. The turn runs under a context detached from ctx, so
// the caller going away does not interrupt persistence. The returned channel
// receives exactly one Result.
func (d *Dispatcher) Submit(ctx context.Context, in assistant.TurnInput) (<-chan Result, error) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return nil, ErrDispatcherClosed
	}
	select {
	case d.slots <- struct{}{}:
	default:
		return nil, ErrDispatcherBusy
	}

	resultCh := make(chan Result, 1)
	d.inflight.Add(1)

	// a held slot guarantees room in jobQueue, so the send never blocks
	d.submitMu.Lock()
	job := Job{Type: Turn, Turn: &turnTask{
		seq:      d.submitted.Add(1),
		ctx:      context.WithoutCancel(ctx),
		input:    in,
		resultCh: resultCh,
		finish:   d.inflight.Done,
	}}
	d.jobQueue <- job
	d.submitMu.Unlock()
	return resultCh, nil
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case <-d.quit:
			d.cancelPending(ErrDispatcherClosed)
			return
		default:
		}
		// pull everything already submitted so the round robin sees every session
		d.drainQueue()
		if d.dispatchOne() {
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			d.cancelPending(ErrDispatcherClosed)
			return
		}
	}
}

func (d *Dispatcher) drainQueue() {
	for {
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		default:
			return
		}
	}
}

// CancelSession drops the turns of a session that are still waiting for a
// worker, including ones submitted but not yet picked up by the run loop.
// Running turns are not interrupted.
func (d *Dispatcher) CancelSession(sessionID string) {
	d.mu.Lock()
	if cutoff := d.submitted.Load(); cutoff > d.lastEnqueued {
		if d.cancelled == nil {
			d.cancelled = make(map[string]uint64)
		}
		d.cancelled[sessionID] = cutoff
	}
	q := d.queues[sessionID]
	delete(d.queues, sessionID)
	if elem, ok := d.positions[sessionID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, sessionID)
	}
	d.mu.Unlock()

	if q == nil {
		return
	}
	for _, job := range q.jobs {
		d.drop(job, ErrTurnCancelled)
	}
}

// Shutdown stops accepting turns and waits for in-flight ones until ctx ends.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return nil
	}
	d.closed = true
	d.closeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
	}
	close(d.quit)
	d.pool.close()
	<-d.stopped
	return err
}

func (d *Dispatcher) enqueueJob(job Job) {
	sessionID := job.sessionID()

	d.mu.Lock()
	if job.Turn != nil && job.Turn.seq > 0 {
		seq := job.Turn.seq
		d.lastEnqueued = seq
		cutoff, cancelled := d.cancelled[sessionID]
		// jobQueue is in seq order: no older turn can still arrive
		for id, c := range d.cancelled {
			if c <= seq {
				delete(d.cancelled, id)
			}
		}
		if cancelled && seq <= cutoff {
			d.mu.Unlock()
			d.drop(job, ErrTurnCancelled)
			return
		}
	}
	defer d.mu.Unlock()

	q := d.queues[sessionID]
	if q == nil {
		q = &sessionQueue{}
		d.queues[sessionID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[sessionID] = d.ready.PushBack(sessionID)
}

// dispatchOne hands the next turn of the front session to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	sessionID := elem.Value.(string)
	q := d.queues[sessionID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, sessionID)
		delete(d.queues, sessionID)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	if workerChan == nil {
		d.drop(job, ErrDispatcherClosed)
		return true
	}
	debugLog("[dispatcher] assign %s for session %s to worker-%d", job.Type, sessionID, d.pool.workerID(workerChan))
	<-d.slots
	workerChan <- job
	return true
}

func (d *Dispatcher) cancelPending(err error) {
	d.mu.Lock()
	queues := d.queues
	d.queues = make(map[string]*sessionQueue)
	d.ready.Init()
	d.positions = make(map[string]*list.Element)
	d.mu.Unlock()

	for _, q := range queues {
		for _, job := range q.jobs {
			d.drop(job, err)
		}
	}
	for {
		select {
		case job := <-d.jobQueue:
			d.drop(job, err)
		default:
			return
		}
	}
}

func (d *Dispatcher) drop(job Job, err error) {
	if job.Turn == nil {
		return
	}
	<-d.slots
	job.Turn.complete(Result{Err: err})
}

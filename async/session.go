// Package async layers a worker pool on top of a registry client so that
// evolution calls can run off the caller's goroutine. The client itself
// never starts goroutines; a Session is the one place they live, and the
// session owns their full lifecycle. Queue depth and worker count come
// from the client configuration (WithAsyncQueueSize, WithWorkerThreads).
package async

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/registry"
)

// ErrCancelled is the outcome of an operation withdrawn by Cancel before
// a worker picked it up. ErrWaitTimeout is returned by Wait when the
// deadline elapses first; the operation itself keeps running.
var (
	ErrCancelled   = errors.New("operation cancelled before dispatch")
	ErrWaitTimeout = errors.New("wait timed out")
)

const (
	statePending = iota
	stateRunning
	stateDone
	stateCancelled
)

// An Operation is one queued evolution call. It is created by SubmitEvolve
// and settles exactly once: either a worker runs it to completion or
// Cancel claims it first.
type Operation struct {
	id      uint32
	session *Session

	handle   core.Handle
	input    []float32
	steps    uint32
	mode     core.EvolveMode
	timeout  time.Duration
	callback func(*Operation)

	mu    sync.Mutex
	state int
	err   error
	done  chan struct{}
}

// ID returns the session-unique operation identifier.
func (o *Operation) ID() uint32 {
	return o.id
}

// Handle returns the instance the operation targets.
func (o *Operation) Handle() core.Handle {
	return o.handle
}

// Done reports whether the operation has settled.
func (o *Operation) Done() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Err returns the outcome: nil on success, the evolve error on failure,
// ErrCancelled after a won cancellation. While the operation is pending
// or running, Err returns nil; use Done to tell the cases apart.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.err
}

// Wait blocks until the operation settles or the timeout elapses. A zero
// or negative timeout waits indefinitely. On settlement Wait returns the
// outcome; on timeout it returns ErrWaitTimeout and leaves the operation
// untouched.
func (o *Operation) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		<-o.done
		return o.Err()
	}

	select {
	case <-o.done:
		return o.Err()
	case <-time.After(timeout):
		return ErrWaitTimeout
	}
}

// Cancel withdraws the operation if no worker has started it, and reports
// whether the cancellation won. Once a worker begins the provider call
// the operation can no longer be stopped.
func (o *Operation) Cancel() bool {
	o.mu.Lock()
	if o.state != statePending {
		o.mu.Unlock()
		return false
	}
	o.state = stateCancelled
	o.err = ErrCancelled
	cb := o.callback
	o.mu.Unlock()

	close(o.done)

	s := o.session
	s.mu.Lock()
	s.cancelled++
	s.mu.Unlock()

	if cb != nil {
		cb(o)
	}

	return true
}

func (o *Operation) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != statePending {
		return false
	}
	o.state = stateRunning

	return true
}

func (o *Operation) finish(err error) {
	o.mu.Lock()
	o.state = stateDone
	o.err = err
	cb := o.callback
	o.mu.Unlock()

	close(o.done)

	if cb != nil {
		cb(o)
	}
}

// Stats is a point-in-time snapshot of a session's queue and lifetime
// counters. Submitted equals Completed plus Cancelled plus the operations
// still queued or running.
type Stats struct {
	Submitted     uint64
	Completed     uint64
	Cancelled     uint64
	QueueDepth    int
	QueueCapacity int
	Workers       int
}

// A Session runs evolution calls on a fixed pool of workers fed by a
// bounded queue. All methods are safe for concurrent use.
type Session struct {
	client *registry.Client

	queue   chan *Operation
	workers int

	workerGroup sync.WaitGroup
	inFlight    sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	nextID    uint32
	submitted uint64
	completed uint64
	cancelled uint64
}

// NewSession starts a worker pool sized by the client configuration. The
// pool runs until Close.
func NewSession(client *registry.Client) *Session {
	s := &Session{
		client:  client,
		queue:   make(chan *Operation, client.AsyncQueueSize()),
		workers: client.WorkerThreads(),
	}

	s.workerGroup.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go s.worker()
	}

	return s
}

// SubmitEvolve queues one evolution call and returns without blocking.
// The input vector is copied, so the caller may reuse its buffer. A nil
// callback is allowed; a non-nil callback runs exactly once after the
// operation settles, on the worker goroutine (or on the goroutine that
// won Cancel). A full queue fails with ErrCapacity.
func (s *Session) SubmitEvolve(h core.Handle, input []float32, steps uint32,
	mode core.EvolveMode, timeout time.Duration,
	callback func(*Operation)) (*Operation, error) {
	if len(input) == 0 || steps == 0 {
		return nil, fmt.Errorf(
			"%w: async evolve requires input data and at least one step",
			core.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: session is closed", core.ErrNotInitialized)
	}

	s.nextID++
	op := &Operation{
		id:       s.nextID,
		session:  s,
		handle:   h,
		input:    append([]float32(nil), input...),
		steps:    steps,
		mode:     mode,
		timeout:  timeout,
		callback: callback,
		done:     make(chan struct{}),
	}

	// The in-flight count must cover the operation before a worker can
	// possibly finish it.
	s.inFlight.Add(1)
	select {
	case s.queue <- op:
	default:
		s.inFlight.Done()
		return nil, fmt.Errorf("%w: async queue full (%d operations pending)",
			core.ErrCapacity, cap(s.queue))
	}

	s.submitted++

	return op, nil
}

// Drain blocks until every operation submitted before the call has
// settled. The workers keep running; submissions racing with Drain are
// not waited for.
func (s *Session) Drain() {
	s.inFlight.Wait()
}

// Close rejects further submissions, lets the already queued operations
// run to completion, and stops the workers. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.workerGroup.Wait()

	return nil
}

// Stats returns a snapshot of the queue and lifetime counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Submitted:     s.submitted,
		Completed:     s.completed,
		Cancelled:     s.cancelled,
		QueueDepth:    len(s.queue),
		QueueCapacity: cap(s.queue),
		Workers:       s.workers,
	}
}

func (s *Session) worker() {
	defer s.workerGroup.Done()

	for op := range s.queue {
		s.run(op)
	}
}

// run executes one operation. Operations cancelled while queued are
// dropped here without touching the provider.
func (s *Session) run(op *Operation) {
	defer s.inFlight.Done()

	if !op.begin() {
		return
	}

	err := s.client.Evolve(op.handle, op.input, op.steps, op.mode, op.timeout)
	op.finish(err)

	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}

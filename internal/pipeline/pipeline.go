// Package pipeline provides the in-process message queue between log
// inputs and whatever consumes normalized messages.
//
// The queue does not inspect messages and owns no business logic: inputs
// submit, handlers receive, in order, on a single drain goroutine. It is
// safe for concurrent producers, though a single input submitting from
// one goroutine is the normal case.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kernlog/internal/logging"
)

var (
	// ErrAlreadyRunning is returned by Start when the queue is running.
	ErrAlreadyRunning = errors.New("queue already running")
	// ErrNotRunning is returned by Stop when the queue is not running.
	ErrNotRunning = errors.New("queue not running")
	// ErrQueueStopped is returned by Submit after shutdown has begun.
	ErrQueueStopped = errors.New("queue stopped")
)

// Submitter accepts normalized messages. It is the one interface inputs
// need to know about the downstream world.
type Submitter interface {
	Submit(Message) error
}

// Handler consumes a message delivered by the queue's drain loop.
type Handler func(Message)

// Input is a source of log messages. Run blocks until ctx is cancelled,
// the source reports a clean stop, or an unrecoverable error occurs.
// Implementations must observe ctx so shutdown is prompt.
type Input interface {
	Run(ctx context.Context, q Submitter) error
}

// InputFactory creates an Input from configuration parameters.
// Factories validate params, apply defaults, and return a fully
// constructed input or a descriptive error; they must not start
// goroutines or perform I/O beyond validation. The logger is optional
// and nil disables logging. Concrete factories live in their input
// packages; the queue only calls them.
type InputFactory func(id uuid.UUID, params map[string]string, logger *slog.Logger) (Input, error)

// Queue is a bounded channel with registered inputs and handlers.
//
// Lifecycle: register inputs and handlers, Start, Stop. Registration
// after Start is not supported. Stop is staged so no accepted message
// is lost: cancel inputs, wait for them, close the channel, wait for
// the drain loop.
type Queue struct {
	size   int
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	running  bool
	ch       chan Message
	handlers []Handler
	inputs   map[uuid.UUID]Input

	cancel  context.CancelFunc
	group   *errgroup.Group
	done    chan struct{}
	drainWg sync.WaitGroup
}

// New creates a queue with the given channel capacity.
func New(size int, logger *slog.Logger) *Queue {
	return &Queue{
		size:   size,
		logger: logging.Default(logger).With("component", "queue"),
		now:    time.Now,
		inputs: make(map[uuid.UUID]Input),
	}
}

// AddHandler registers a consumer. Call before Start.
func (q *Queue) AddHandler(h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, h)
}

// RegisterInput registers an input to be launched by Start.
func (q *Queue) RegisterInput(id uuid.UUID, in Input) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inputs[id] = in
}

// Start launches every registered input in its own goroutine plus the
// drain loop, then returns. An input error cancels the sibling inputs;
// the error surfaces from Stop.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.ch = make(chan Message, q.size)
	q.running = true

	q.logger.Info("starting queue", "inputs", len(q.inputs), "capacity", q.size)

	g, gctx := errgroup.WithContext(ctx)
	q.group = g
	for id, in := range q.inputs {
		id, in := id, in
		g.Go(func() error {
			err := in.Run(gctx, q)
			if err != nil {
				q.logger.Error("input failed", "id", id, "error", err)
			}
			return err
		})
	}

	done := make(chan struct{})
	q.done = done
	go func() {
		g.Wait()
		close(done)
	}()

	q.drainWg.Add(1)
	go func() {
		defer q.drainWg.Done()
		q.drain(q.ch)
	}()

	return nil
}

// Done returns a channel closed once every input has exited, whether
// cleanly or with an error. Callers with finite sources can use it to
// stop as soon as the sources run dry. Valid between Start and Stop.
func (q *Queue) Done() <-chan struct{} {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.done
}

// Stop shuts the queue down in stages and returns the first input
// error, if any. Ordered shutdown:
//  1. cancel input contexts, wait for inputs to exit
//  2. refuse further Submits, close the channel
//  3. wait for the drain loop to deliver what was accepted
func (q *Queue) Stop() error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return ErrNotRunning
	}
	cancel := q.cancel
	group := q.group
	ch := q.ch
	q.mu.Unlock()

	cancel()
	runErr := group.Wait()

	q.mu.Lock()
	q.running = false
	q.cancel = nil
	q.group = nil
	q.done = nil
	q.ch = nil
	q.mu.Unlock()

	close(ch)
	q.drainWg.Wait()

	q.logger.Info("queue stopped")
	return runErr
}

// Submit implements Submitter. A zero Timestamp is stamped with the
// current time; this is the only field the queue touches.
func (q *Queue) Submit(msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.running {
		return ErrQueueStopped
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = q.now()
	}
	q.ch <- msg
	return nil
}

// drain delivers messages to handlers until the channel is closed.
func (q *Queue) drain(ch <-chan Message) {
	for msg := range ch {
		for _, h := range q.handlers {
			h(msg)
		}
	}
}

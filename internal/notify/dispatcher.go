// Package notify delivers post-commit side effects off the request path.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/events"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"go.uber.org/zap"
)

const (
	defaultWorkers      = 4
	defaultQueueSize    = 256
	defaultJobTimeout   = 5 * time.Second
	jobKindEvent        = "event"
	jobKindInvalidation = "invalidate_sessions"
)

var (
	// ErrQueueFull is returned by InvalidateSessions when the job was dropped.
	ErrQueueFull = errors.New("notify queue full")
	// ErrDispatcherClosed is returned once Close has been called.
	ErrDispatcherClosed = errors.New("notify dispatcher closed")
)

// EventSink delivers one event to an external system.
type EventSink interface {
	Deliver(ctx context.Context, event events.Event) error
}

// SessionRevoker removes every session of a user from the session store.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, userID string) (int, error)
}

type job struct {
	kind   string
	userID string
	run    func(ctx context.Context) error
}

// Dispatcher runs event deliveries and session revocations on a fixed worker pool.
// Enqueueing never blocks; jobs are dropped with a warning when the queue is full.
type Dispatcher struct {
	logger     *zap.Logger
	sink       EventSink
	revoker    SessionRevoker
	jobTimeout time.Duration

	queue     chan job
	waitGroup sync.WaitGroup
	mutex     sync.RWMutex
	closed    bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	workers    int
	queueSize  int
	jobTimeout time.Duration
	revoker    SessionRevoker
}

// WithWorkers sets the number of delivery goroutines.
func WithWorkers(workers int) DispatcherOption {
	return func(config *dispatcherConfig) {
		if workers > 0 {
			config.workers = workers
		}
	}
}

// WithQueueSize bounds the number of pending jobs.
func WithQueueSize(size int) DispatcherOption {
	return func(config *dispatcherConfig) {
		if size > 0 {
			config.queueSize = size
		}
	}
}

// WithJobTimeout bounds each delivery.
func WithJobTimeout(timeout time.Duration) DispatcherOption {
	return func(config *dispatcherConfig) {
		if timeout > 0 {
			config.jobTimeout = timeout
		}
	}
}

// WithSessionRevoker enables InvalidateSessions.
func WithSessionRevoker(revoker SessionRevoker) DispatcherOption {
	return func(config *dispatcherConfig) {
		config.revoker = revoker
	}
}

// NewDispatcher starts the worker pool. Call Close to drain it.
func NewDispatcher(logger *zap.Logger, sink EventSink, options ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	config := dispatcherConfig{
		workers:    defaultWorkers,
		queueSize:  defaultQueueSize,
		jobTimeout: defaultJobTimeout,
	}
	for _, option := range options {
		option(&config)
	}
	if sink == nil {
		sink = NewLogSink(logger)
	}
	dispatcher := &Dispatcher{
		logger:     logger,
		sink:       sink,
		revoker:    config.revoker,
		jobTimeout: config.jobTimeout,
		queue:      make(chan job, config.queueSize),
	}
	for worker := 0; worker < config.workers; worker++ {
		dispatcher.waitGroup.Add(1)
		go dispatcher.work()
	}
	return dispatcher
}

// Publish implements events.Publisher.
func (dispatcher *Dispatcher) Publish(_ context.Context, event events.Event) {
	_ = dispatcher.enqueue(job{
		kind:   jobKindEvent,
		userID: event.UserID,
		run: func(ctx context.Context) error {
			return dispatcher.sink.Deliver(ctx, event)
		},
	})
}

// InvalidateSessions implements lifecycle.SessionInvalidator by queueing the revocation.
func (dispatcher *Dispatcher) InvalidateSessions(_ context.Context, userID ledger.UserID) error {
	if dispatcher.revoker == nil {
		return nil
	}
	return dispatcher.enqueue(job{
		kind:   jobKindInvalidation,
		userID: userID.String(),
		run: func(ctx context.Context) error {
			revoked, err := dispatcher.revoker.RevokeSessions(ctx, userID.String())
			if err == nil {
				dispatcher.logger.Debug("sessions revoked", zap.String("user_id", userID.String()), zap.Int("count", revoked))
			}
			return err
		},
	})
}

// Close stops accepting jobs and waits for queued ones to finish.
func (dispatcher *Dispatcher) Close() {
	dispatcher.mutex.Lock()
	if dispatcher.closed {
		dispatcher.mutex.Unlock()
		return
	}
	dispatcher.closed = true
	close(dispatcher.queue)
	dispatcher.mutex.Unlock()
	dispatcher.waitGroup.Wait()
}

func (dispatcher *Dispatcher) enqueue(pending job) error {
	dispatcher.mutex.RLock()
	defer dispatcher.mutex.RUnlock()
	if dispatcher.closed {
		dispatcher.logger.Warn("notify job dropped", zap.String("kind", pending.kind), zap.String("user_id", pending.userID), zap.Error(ErrDispatcherClosed))
		return ErrDispatcherClosed
	}
	select {
	case dispatcher.queue <- pending:
		return nil
	default:
		dispatcher.logger.Warn("notify job dropped", zap.String("kind", pending.kind), zap.String("user_id", pending.userID), zap.Error(ErrQueueFull))
		return ErrQueueFull
	}
}

func (dispatcher *Dispatcher) work() {
	defer dispatcher.waitGroup.Done()
	for pending := range dispatcher.queue {
		ctx, cancel := context.WithTimeout(context.Background(), dispatcher.jobTimeout)
		if err := pending.run(ctx); err != nil {
			dispatcher.logger.Warn("notify job failed", zap.String("kind", pending.kind), zap.String("user_id", pending.userID), zap.Error(err))
		}
		cancel()
	}
}

package runloop

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/reader-bridge/errors"
)

// Sender posts work onto a loop. Post never blocks and reports false if the
// loop no longer accepts work.
type Sender interface {
	Post(fn func()) bool
}

// Loop runs posted tasks one at a time, in posting order, on a single
// goroutine. State confined to a loop needs no locking as long as every
// access is made from a task.
type Loop struct {
	logger *zap.Logger
	wake   chan struct{}
	done   chan struct{}
	name   string
	queue  []func()
	mu     sync.Mutex
	closed bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report task panics.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithName names the loop in log output.
func WithName(name string) Option {
	return func(l *Loop) {
		l.name = name
	}
}

// New starts a loop goroutine.
func New(opts ...Option) *Loop {
	l := &Loop{
		logger: zap.NewNop(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		name:   "main",
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("loop", l.name))
	go l.run()
	return l
}

// Post enqueues fn. Safe to call from any goroutine, including the loop
// itself; fn always runs after Post returns.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish or ctx to end.
// It must not be called from a loop task: the task would wait on itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return errors.Closed("run loop " + l.name)
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync waits until every task posted before the call has run.
func (l *Loop) Sync(ctx context.Context) error {
	return l.Do(ctx, func() {})
}

// Close stops accepting work, runs what is already queued and waits for
// the loop goroutine to exit. Safe to call more than once.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	l.mu.Unlock()
	<-l.done
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
		}
	}()
	fn()
}

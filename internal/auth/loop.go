package auth

import (
	"context"
	"log/slog"
	"sync"
)

// loop runs tasks one at a time, in submission order, on a single goroutine.
// Submission never blocks, so tasks may submit further tasks.
type loop struct {
	log *slog.Logger

	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newLoop(log *slog.Logger) *loop {
	l := &loop{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// submit queues fn. It reports false once the loop is closed.
func (l *loop) submit(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.signal()
	return true
}

func (l *loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.tasks) == 0 {
			if l.closed {
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		l.exec(fn)
	}
}

func (l *loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("task panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

// idle reports whether nothing is queued. Only meaningful from a task.
func (l *loop) idle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) == 0
}

// flush waits until the loop has run out of work, including work queued by
// the tasks it ran while waiting.
func (l *loop) flush(ctx context.Context) error {
	for {
		res := make(chan bool, 1)
		if !l.submit(func() { res <- l.idle() }) {
			return ErrClosed
		}
		select {
		case idle := <-res:
			if idle {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// close stops accepting tasks, drains the queue and waits for the goroutine.
func (l *loop) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()
	<-l.done
}

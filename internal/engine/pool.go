package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
)

var (
	// ErrPoolClosed is returned after Close; callers treat it as unavailable.
	ErrPoolClosed = errors.New("engine pool closed")
	// ErrQueueFull is the backpressure signal when too many acquirers wait.
	ErrQueueFull = errors.New("engine pool queue full")
)

type PoolConfig struct {
	BinaryPath    string
	Size          int
	MaxQueueDepth int
	Options       Options
}

// Pool owns a fixed number of engine subprocesses. Each process serves one
// request at a time; excess acquirers queue FIFO up to MaxQueueDepth, beyond
// which Acquire fails fast with ErrQueueFull.
type Pool struct {
	binaryPath string
	capacity   int
	maxQueue   int
	opt        Options

	// Process creation and readiness checks go through these hooks so pool
	// semantics can be tested without an engine binary.
	spawn func(ctx context.Context) (*Session, error)
	ready func(ctx context.Context, s *Session) error

	mu      sync.Mutex
	total   int
	idle    []*Session
	waiters []chan *Session
	closed  bool
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}

	capacity := cfg.Size
	if capacity <= 0 {
		capacity = defaultPoolSize()
	}
	maxQueue := cfg.MaxQueueDepth
	if maxQueue <= 0 {
		maxQueue = 64
	}

	p := &Pool{
		binaryPath: cfg.BinaryPath,
		capacity:   capacity,
		maxQueue:   maxQueue,
		opt:        cfg.Options,
	}
	p.spawn = func(ctx context.Context) (*Session, error) {
		return NewSession(ctx, p.binaryPath, p.opt)
	}
	p.ready = func(ctx context.Context, s *Session) error {
		return s.EnsureReady(ctx)
	}
	return p, nil
}

func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if n := len(p.idle); n > 0 {
			session := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			if err := p.ready(ctx, session); err != nil {
				p.discard(session)
				continue
			}
			return session, nil
		}

		if p.total < p.capacity {
			p.total++
			p.mu.Unlock()
			session, err := p.spawn(ctx)
			if err != nil {
				p.decrement()
				return nil, err
			}
			return session, nil
		}

		if len(p.waiters) >= p.maxQueue {
			p.mu.Unlock()
			return nil, ErrQueueFull
		}
		ch := make(chan *Session, 1)
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			if session, delivered := p.abandonWaiter(ch); delivered && session != nil {
				p.Release(session, nil)
			}
			return nil, ctx.Err()
		case session := <-ch:
			// nil wakeups mean a slot was freed; loop back and create.
			if session == nil {
				continue
			}
			if err := p.ready(ctx, session); err != nil {
				p.discard(session)
				continue
			}
			return session, nil
		}
	}
}

// Release returns a session to the pool, handing it to the oldest waiter
// first. A non-nil err discards the process instead of reusing it.
func (p *Pool) Release(session *Session, err error) {
	if session == nil {
		return
	}
	if err != nil {
		p.discard(session)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = session.Close()
		return
	}
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		ch <- session
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, session)
	p.mu.Unlock()
}

func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}

	var errs []error
	for _, session := range idle {
		if err := session.Close(); err != nil {
			errs = append(errs, err)
		}
		p.decrement()
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Capacity reports the configured process count.
func (p *Pool) Capacity() int { return p.capacity }

// abandonWaiter removes ch from the queue. When the channel was already
// served it reports delivered=true along with whatever arrived (the buffered
// send happens under the pool lock, so the receive below cannot race).
func (p *Pool) abandonWaiter(ch chan *Session) (*Session, bool) {
	p.mu.Lock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return nil, false
		}
	}
	p.mu.Unlock()

	select {
	case session := <-ch:
		return session, true
	default:
		return nil, true
	}
}

func (p *Pool) discard(session *Session) {
	if session != nil {
		_ = session.Close()
	}
	p.decrement()
}

// decrement frees a process slot and wakes the oldest waiter so it can spawn
// a replacement.
func (p *Pool) decrement() {
	p.mu.Lock()
	if p.total > 0 {
		p.total--
	}
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		ch <- nil
	}
	p.mu.Unlock()
}

func defaultPoolSize() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}

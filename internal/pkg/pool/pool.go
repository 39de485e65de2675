package pool

import (
	"sync"

	"go.uber.org/zap"
)

// Pool is a fixed set of workers draining a bounded job queue.
// Submit never blocks: a full or closed pool refuses the job.
type Pool struct {
	mu     sync.RWMutex
	jobs   chan func()
	wg     sync.WaitGroup
	closed bool
	logger *zap.Logger
}

func New(workers, queue int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		jobs:   make(chan func(), queue),
		logger: logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for f := range p.jobs {
		if f != nil {
			p.run(f)
		}
	}
}

func (p *Pool) run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pool job panicked", zap.Any("panic", r))
		}
	}()
	f()
}

// Submit reports whether the job was accepted.
func (p *Pool) Submit(f func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- f:
		return true
	default:
		return false
	}
}

// Close stops accepting jobs; queued jobs still run.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.jobs)
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

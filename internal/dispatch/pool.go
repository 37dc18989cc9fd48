package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type PoolConfig struct {
	Workers     int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.MaxWorkers < c.Workers {
		c.MaxWorkers = c.Workers * 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = time.Minute
	}
	return c
}

// Pool runs tasks on a bounded set of goroutines. Core workers live for the
// pool's lifetime; when the queue is full extra workers are started up to
// MaxWorkers and exit after IdleTimeout. When both are exhausted the task
// runs on the submitting goroutine.
type Pool struct {
	cfg   PoolConfig
	tasks chan func()
	wg    sync.WaitGroup

	mu      sync.Mutex
	workers int
	closed  bool

	onCallerRuns func()
}

func NewPool(cfg PoolConfig, onCallerRuns func()) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:          cfg,
		tasks:        make(chan func(), cfg.QueueSize),
		onCallerRuns: onCallerRuns,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.workers++
		p.wg.Add(1)
		go p.coreWorker()
	}

	return p
}

// Submit never drops a task
func (p *Pool) Submit(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.runOnCaller(task)
		return
	}

	select {
	case p.tasks <- task:
		p.mu.Unlock()
		return
	default:
	}

	if p.workers < p.cfg.MaxWorkers {
		p.workers++
		p.wg.Add(1)
		p.mu.Unlock()
		go p.burstWorker(task)
		return
	}
	p.mu.Unlock()

	p.runOnCaller(task)
}

// Shutdown stops accepting work, drains the queue and waits for running
// tasks until ctx expires
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		slog.Warn("Dispatch pool shutdown timed out", "queued", len(p.tasks))
		return ctx.Err()
	}
}

func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

func (p *Pool) coreWorker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) burstWorker(first func()) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.workers--
		p.mu.Unlock()
	}()

	p.run(first)

	idle := time.NewTimer(p.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(task)
			idle.Reset(p.cfg.IdleTimeout)
		case <-idle.C:
			return
		}
	}
}

func (p *Pool) runOnCaller(task func()) {
	if p.onCallerRuns != nil {
		p.onCallerRuns()
	}
	p.run(task)
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatch task panicked", "panic", r)
		}
	}()
	task()
}

package crawler

import (
	"fmt"
	"log/slog"
	"sync"
)

// task is a unit of pool work. abort is called instead of run when the pool
// is shut down before the task started.
type task struct {
	run   func()
	abort func()
}

// workerPool runs tasks on a fixed number of goroutines.
//
// The queue is unbounded: workers submit follow-up work to the same or the
// other pool, and a bounded queue could fill up while every worker is
// blocked submitting.
type workerPool struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []task
	closed bool

	wg sync.WaitGroup
}

func newWorkerPool(name string, size int, logger *slog.Logger) *workerPool {
	p := &workerPool{
		name:   name,
		logger: logger,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := range size {
		p.wg.Add(1)
		go p.work(i)
	}
	return p
}

// submit queues t. It never blocks and returns ErrClosed after shutdown.
func (p *workerPool) submit(t task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("%s pool: %w", p.name, ErrClosed)
	}
	p.queue = append(p.queue, t)
	p.cond.Signal()
	return nil
}

// pending returns the number of queued tasks that have not started.
func (p *workerPool) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *workerPool) work(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = task{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.logger.Debug("worker picked task", "pool", p.name, "worker", id)
		t.run()
	}
}

// shutdown stops accepting tasks and aborts every queued task that has not
// started. Running tasks are left to finish.
func (p *workerPool) shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	queued := p.queue
	p.queue = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	if len(queued) > 0 {
		p.logger.Debug("aborting queued tasks", "pool", p.name, "count", len(queued))
	}
	for _, t := range queued {
		if t.abort != nil {
			t.abort()
		}
	}
}

// wait blocks until every worker has exited. Call shutdown first.
func (p *workerPool) wait() {
	p.wg.Wait()
}

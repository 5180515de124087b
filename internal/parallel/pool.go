// Package parallel provides the fixed-size worker pool used by the CPU
// processing path.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a fixed pool of worker goroutines sized to the CPU core count.
//
// Workers keep per-worker queues and steal from each other when idle,
// which balances load when some chunks decode slower than others.
//
// Pool is safe for concurrent use.
type Pool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool creates a pool with the given number of workers.
// Non-positive worker counts select GOMAXPROCS. Workers start immediately.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case task := <-own:
			if task != nil {
				task()
			}
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case task := <-own:
				if task != nil {
					task()
				}
			}
		}
	}
}

func (p *Pool) drain(queue chan func()) {
	for {
		select {
		case task := <-queue:
			if task != nil {
				task()
			}
		default:
			return
		}
	}
}

func (p *Pool) steal(self int) func() {
	for i := range p.queues {
		if i == self {
			continue
		}
		select {
		case task := <-p.queues[i]:
			return task
		default:
		}
	}
	return nil
}

// ForEachSpan splits [0, n) into one contiguous span per worker and runs
// fn(start, count) for each span in parallel, waiting for all spans to
// finish. Contiguous spans keep each worker's writes on disjoint cache
// lines of the output arrays.
//
// When the pool is closed, fn runs serially on the caller's goroutine so
// chunk processing still makes progress during shutdown.
func (p *Pool) ForEachSpan(n int, fn func(start, count int)) {
	if n <= 0 {
		return
	}
	if !p.running.Load() {
		fn(0, n)
		return
	}

	spans := p.workers
	if spans > n {
		spans = n
	}
	per := (n + spans - 1) / spans

	var wg sync.WaitGroup
	for s := 0; s < spans; s++ {
		start := s * per
		count := per
		if start+count > n {
			count = n - start
		}
		if count <= 0 {
			break
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			fn(start, count)
		}
		select {
		case p.queues[s%p.workers] <- task:
		case <-p.done:
			wg.Done()
			fn(start, count)
		}
	}
	wg.Wait()
}

// Submit queues a single task on the shortest queue.
// A closed pool runs the task inline.
func (p *Pool) Submit(fn func()) {
	if fn == nil {
		return
	}
	if !p.running.Load() {
		fn()
		return
	}

	best, bestLen := 0, len(p.queues[0])
	for i := 1; i < p.workers; i++ {
		if l := len(p.queues[i]); l < bestLen {
			best, bestLen = i, l
		}
	}
	select {
	case p.queues[best] <- fn:
	case <-p.done:
		fn()
	}
}

// Close stops accepting work, finishes queued tasks, and stops the
// workers. Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

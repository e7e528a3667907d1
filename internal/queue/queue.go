package queue

import (
	"log"
	"sync"
)

// Job is one unit of deferred work. Errc, when non-nil, receives the
// job's result so a caller can block on completion.
type Job struct {
	Fn   func() error
	Errc chan error
}

// Pool is a bounded worker pool. HTTP handlers and the event bridge both
// run through it so a burst of work degrades to queueing instead of
// unbounded goroutine growth.
type Pool struct {
	jobs       chan Job
	maxWorkers int
	wg         sync.WaitGroup
}

func NewPool(queueSize, maxWorkers int) *Pool {
	p := &Pool{
		jobs:       make(chan Job, queueSize),
		maxWorkers: maxWorkers,
	}
	p.start()
	return p
}

func (p *Pool) start() {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		err := job.Fn()
		if job.Errc != nil {
			job.Errc <- err
		} else if err != nil {
			log.Printf("queue worker %d: job failed: %v", id, err)
		}
	}
}

// Enqueue blocks while the queue is full.
func (p *Pool) Enqueue(job Job) {
	p.jobs <- job
}

// TryEnqueue never blocks; it reports whether the job was accepted.
func (p *Pool) TryEnqueue(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Depth reports jobs waiting in the queue, for the metrics gauge.
func (p *Pool) Depth() int {
	return len(p.jobs)
}

// Shutdown stops accepting jobs and waits for in-flight work.
func (p *Pool) Shutdown() {
	close(p.jobs)
	p.wg.Wait()
}

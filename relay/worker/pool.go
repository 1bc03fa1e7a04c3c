// Package worker provides an asynchronous worker pool for persisting
// stream transcripts and publishing completion events.
//
// The pool decouples storage and event publishing from the relay's HTTP
// hot path so a slow backend never stalls a live stream.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/brookhq/brook/pkg/eventstream"
	"github.com/brookhq/brook/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// Transcript to persist; may be nil when only an event is carried.
	Transcript *storage.Transcript

	// Event to publish; may be nil when only a transcript is carried.
	Event *eventstream.StreamCompletedEvent
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting transcripts.
	Driver storage.Driver

	// Publisher emits stream-completion events. Optional; nil disables
	// publishing.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the structured logger for pool diagnostics.
	Logger *slog.Logger
}

// Pool processes transcript jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		log:    c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the
// job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		if job.Transcript != nil {
			p.log.Debug("job queued", "stream_id", job.Transcript.ID)
		}
		return true
	default:
		p.log.Error("job not queued, queue full, job dropped")
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the relay HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker goroutine that continuously pulls jobs off
// the queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.log.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.log.Debug("worker stopped", "worker_id", id)
}

// processJob persists the transcript and publishes the completion event.
// Errors are logged and swallowed; the stream already terminated and
// nothing upstream can act on them.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if job.Transcript != nil && p.config.Driver != nil {
		if err := p.config.Driver.Save(ctx, job.Transcript); err != nil {
			p.log.Error("async transcript save failed",
				"stream_id", job.Transcript.ID,
				"error", err,
			)
		} else {
			p.log.Info("transcript stored",
				"stream_id", job.Transcript.ID,
				"token_count", job.Transcript.TokenCount,
			)
		}
	}

	if job.Event != nil && p.config.Publisher != nil {
		if err := p.config.Publisher.PublishStreamCompleted(ctx, job.Event); err != nil {
			p.log.Error("publishing stream event failed",
				"event_id", job.Event.EventID,
				"error", err,
			)
		}
	}
}

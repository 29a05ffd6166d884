// Package dispatch queues asynchronous analysis jobs, such as those arriving
// over MQTT, and delivers each finished report to a Sink. A single worker
// goroutine preserves submission order.
package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/clock"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/store"
)

var (
	// ErrClosed is returned by Submit after Close has been called.
	ErrClosed = errors.New("dispatch: dispatcher closed")
	// ErrQueueFull is returned when the job queue has no free slot.
	ErrQueueFull = errors.New("dispatch: queue full")
)

const (
	defaultQueueSize    = 64
	defaultCloseTimeout = 5 * time.Second
)

// Job is one queued analysis request.
type Job struct {
	ID      string
	Table   []int
	Metrics []analysis.Metric
	// ReplyTo is an optional transport-specific destination for the result.
	ReplyTo string
}

// Outcome is delivered to the Sink once a job has been processed.
type Outcome struct {
	Job      Job
	Sequence uint32
	Report   analysis.Report
	Err      error
}

// Sink consumes finished jobs. Implementations include the MQTT result
// publisher; test doubles record outcomes.
type Sink interface {
	Deliver(ctx context.Context, outcome Outcome) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, outcome Outcome) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock injects the clock used for job timing and the close timeout.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

// WithQueueSize sets the number of jobs that may wait for the worker.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithStore saves every successful report before it is delivered.
func WithStore(s store.Store) Option {
	return func(d *Dispatcher) {
		d.store = s
	}
}

// WithCloseTimeout bounds how long Close waits for queued jobs.
func WithCloseTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.closeTimeout = timeout
		}
	}
}

type queuedJob struct {
	job Job
	seq uint32
}

// Dispatcher runs queued jobs against an analysis.Service. All methods are
// safe for concurrent use.
type Dispatcher struct {
	service      analysis.Service
	sink         Sink
	store        store.Store
	clock        clock.Clock
	queueSize    int
	closeTimeout time.Duration

	mu       sync.Mutex
	closed   bool
	sequence uint32
	queue    chan queuedJob
	worker   sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// New starts a Dispatcher with its worker goroutine. Call Close to stop it.
func New(service analysis.Service, sink Sink, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		service:      service,
		sink:         sink,
		clock:        clock.RealClock{},
		queueSize:    defaultQueueSize,
		closeTimeout: defaultCloseTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.clock == nil {
		d.clock = clock.RealClock{}
	}

	d.queue = make(chan queuedJob, d.queueSize)
	d.worker.Add(1)
	go d.run()
	return d
}

// Submit enqueues job without blocking and returns its sequence number.
func (d *Dispatcher) Submit(job Job) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}

	seq := d.sequence + 1
	select {
	case d.queue <- queuedJob{job: job, seq: seq}:
		d.sequence = seq
		metrics.SetDispatchQueueDepth(len(d.queue))
		return seq, nil
	default:
		metrics.RecordDispatchJob("dropped", 0)
		return 0, ErrQueueFull
	}
}

// Pending reports the number of queued jobs not yet picked up.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting jobs and waits for the queue to drain, up to the
// close timeout. Jobs still running after the timeout see a cancelled
// context.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.worker.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("dispatch: all jobs processed")
	case <-d.clock.After(d.closeTimeout):
		log.Println("dispatch: timeout waiting for queued jobs")
	}
	d.cancel()
}

func (d *Dispatcher) run() {
	defer d.worker.Done()
	for item := range d.queue {
		metrics.SetDispatchQueueDepth(len(d.queue))
		d.process(item)
	}
}

func (d *Dispatcher) process(item queuedJob) {
	start := d.clock.Now()

	report, err := d.service.Analyze(d.ctx, item.job.Table, item.job.Metrics)
	if err == nil && d.store != nil {
		if saveErr := d.store.Save(d.ctx, report); saveErr != nil {
			log.Printf("dispatch: failed to store report %s: %v", report.ID, saveErr)
		}
	}

	outcome := Outcome{Job: item.job, Sequence: item.seq, Report: report, Err: err}
	if d.sink != nil {
		if sinkErr := d.sink.Deliver(d.ctx, outcome); sinkErr != nil {
			log.Printf("dispatch: failed to deliver job %d: %v", item.seq, sinkErr)
		}
	}

	metrics.RecordDispatchJob(analysis.StatusOf(err), clock.Since(d.clock, start))
	if err != nil && !analysis.IsInvalid(err) {
		log.Printf("dispatch: job %d failed: %v", item.seq, err)
	}
}

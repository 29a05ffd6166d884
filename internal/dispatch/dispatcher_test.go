package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/clock"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/sbox"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/store"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/testutil"
)

type stubService struct {
	started chan struct{}
	release chan struct{}
	err     error
}

func (s *stubService) Analyze(ctx context.Context, raw []int, selected []analysis.Metric) (analysis.Report, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return analysis.Report{}, ctx.Err()
		}
	}
	if s.err != nil {
		return analysis.Report{}, s.err
	}
	return analysis.Report{ID: fmt.Sprintf("r-%d", raw[0]), Table: raw, Metrics: selected}, nil
}

type recordingSink struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (s *recordingSink) Deliver(_ context.Context, o Outcome) error {
	s.mu.Lock()
	s.outcomes = append(s.outcomes, o)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) snapshot() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outcome(nil), s.outcomes...)
}

func waitStarted(t *testing.T, ch chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := testutil.WaitForCondition(ctx, func() (struct{}, bool) {
		select {
		case <-ch:
			return struct{}{}, true
		default:
			return struct{}{}, false
		}
	})
	if err != nil {
		t.Fatalf("timeout waiting for job to start: %v", err)
	}
}

func TestDispatcherProcessesInOrder(t *testing.T) {
	testutil.ResetRegistryForTest(t)
	sink := &recordingSink{}
	mem := store.NewMemoryStore(8)
	d := New(&stubService{}, sink, WithStore(mem))

	for i := 1; i <= 5; i++ {
		seq, err := d.Submit(Job{ID: fmt.Sprint(i), Table: []int{i}, ReplyTo: "replies"})
		if err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
		if seq != uint32(i) {
			t.Fatalf("sequence = %d, want %d", seq, i)
		}
	}
	d.Close()

	outcomes := sink.snapshot()
	if len(outcomes) != 5 {
		t.Fatalf("delivered %d outcomes, want 5", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Sequence != uint32(i+1) || o.Job.ReplyTo != "replies" || o.Err != nil {
			t.Fatalf("outcome %d = %+v", i, o)
		}
	}
	if _, err := mem.Get(context.Background(), "r-3"); err != nil {
		t.Fatalf("report not stored: %v", err)
	}
	if v := promtest.ToFloat64(metrics.DispatchJobs.WithLabelValues(analysis.StatusOK)); v != 5 {
		t.Fatalf("dispatch ok counter = %v", v)
	}
}

func TestDispatcherDeliversErrors(t *testing.T) {
	testutil.ResetRegistryForTest(t)
	sink := &recordingSink{}
	d := New(&stubService{err: sbox.ErrInvalidInput}, sink)

	if _, err := d.Submit(Job{Table: []int{1}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	d.Close()

	outcomes := sink.snapshot()
	if len(outcomes) != 1 || !errors.Is(outcomes[0].Err, sbox.ErrInvalidInput) {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if v := promtest.ToFloat64(metrics.DispatchJobs.WithLabelValues(analysis.StatusInvalid)); v != 1 {
		t.Fatalf("dispatch invalid counter = %v", v)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	testutil.ResetRegistryForTest(t)
	svc := &stubService{started: make(chan struct{}, 4), release: make(chan struct{})}
	d := New(svc, nil, WithQueueSize(1))

	if _, err := d.Submit(Job{Table: []int{1}}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	waitStarted(t, svc.started)

	if _, err := d.Submit(Job{Table: []int{2}}); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if d.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", d.Pending())
	}
	if _, err := d.Submit(Job{Table: []int{3}}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(svc.release)
	d.Close()

	if v := promtest.ToFloat64(metrics.DispatchJobs.WithLabelValues("dropped")); v != 1 {
		t.Fatalf("dropped counter = %v", v)
	}
}

func TestDispatcherSubmitAfterClose(t *testing.T) {
	testutil.ResetRegistryForTest(t)
	d := New(&stubService{}, nil)
	d.Close()
	d.Close()

	if _, err := d.Submit(Job{Table: []int{1}}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDispatcherCloseTimeoutCancelsRunningJob(t *testing.T) {
	testutil.ResetRegistryForTest(t)
	clk := clock.NewFakeClock()
	svc := &stubService{started: make(chan struct{}, 1), release: make(chan struct{})}
	sink := &recordingSink{}
	d := New(svc, sink, WithClock(clk), WithCloseTimeout(time.Second))

	if _, err := d.Submit(Job{Table: []int{7}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitStarted(t, svc.started)

	closed := make(chan error, 1)
	go func() {
		d.Close()
		closed <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := testutil.WaitForCondition(ctx, func() (int, bool) {
		n := clk.Waiters()
		return n, n > 0
	}); err != nil {
		t.Fatalf("Close never waited on the clock: %v", err)
	}
	clk.Fire()
	testutil.WaitForError(t, closed, "Close")

	if _, err := testutil.WaitForCondition(ctx, func() ([]Outcome, bool) {
		o := sink.snapshot()
		return o, len(o) == 1
	}); err != nil {
		t.Fatalf("cancelled job was not delivered: %v", err)
	}
	if o := sink.snapshot()[0]; !errors.Is(o.Err, context.Canceled) {
		t.Fatalf("outcome error = %v, want context.Canceled", o.Err)
	}
}

func TestSinkFunc(t *testing.T) {
	var got Outcome
	sink := SinkFunc(func(_ context.Context, o Outcome) error {
		got = o
		return nil
	})
	if err := sink.Deliver(context.Background(), Outcome{Sequence: 9}); err != nil {
		t.Fatal(err)
	}
	if got.Sequence != 9 {
		t.Fatalf("Sequence = %d", got.Sequence)
	}
}

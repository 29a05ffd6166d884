package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/clock"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/sbox"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/validation"
)

// Status labels recorded for each analysis.
const (
	StatusOK        = "ok"
	StatusInvalid   = "invalid"
	StatusCancelled = "cancelled"
	StatusError     = "error"
)

// Service runs analyses. *Analyzer computes locally; remote clients
// implement the same contract.
type Service interface {
	Analyze(ctx context.Context, raw []int, selected []Metric) (Report, error)
}

// ProgressFunc receives each metric as it finishes. Calls are serialised.
type ProgressFunc func(MetricResult)

// Analyzer runs selected metrics concurrently against one table.
type Analyzer struct {
	workers  int
	defaults []Metric
	timeout  time.Duration
	clock    clock.Clock
	newID    func() string
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWorkers sets the per-metric scan parallelism; n < 1 keeps the default
// of GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		a.workers = n
	}
}

// WithDefaultMetrics replaces the selection used for empty requests.
func WithDefaultMetrics(ms []Metric) Option {
	return func(a *Analyzer) {
		if len(ms) > 0 {
			a.defaults = ordered(ms)
		}
	}
}

// WithTimeout bounds every analysis; zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		a.timeout = d
	}
}

// WithClock replaces the clock used for timestamps and durations.
func WithClock(c clock.Clock) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithIDGenerator replaces the report ID source.
func WithIDGenerator(fn func() string) Option {
	return func(a *Analyzer) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// New constructs an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		defaults: append([]Metric(nil), DefaultMetrics...),
		clock:    clock.RealClock{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze normalises raw, runs the selected metrics (the defaults when
// selected is empty) and returns the assembled report. On cancellation or
// invalid input no report is produced.
func (a *Analyzer) Analyze(ctx context.Context, raw []int, selected []Metric) (Report, error) {
	return a.AnalyzeWithProgress(ctx, raw, selected, nil)
}

// AnalyzeWithProgress behaves like Analyze and additionally reports every
// finished metric to progress.
func (a *Analyzer) AnalyzeWithProgress(ctx context.Context, raw []int, selected []Metric, progress ProgressFunc) (Report, error) {
	start := a.clock.Now()
	report, err := a.analyze(ctx, raw, selected, progress)
	elapsed := clock.Since(a.clock, start)

	status := StatusOf(err)
	metrics.RecordAnalysis(status, elapsed)
	if err != nil {
		if status == StatusError {
			log.Printf("analysis: failed after %s: %v", elapsed, err)
		}
		return Report{}, err
	}

	report.DurationMS = clock.Milliseconds(elapsed)
	return report, nil
}

// Selection resolves the metrics a request will run.
func (a *Analyzer) Selection(selected []Metric) ([]Metric, error) {
	if len(selected) == 0 {
		return append([]Metric(nil), a.defaults...), nil
	}
	for _, m := range selected {
		if !m.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, string(m))
		}
	}
	return ordered(selected), nil
}

func (a *Analyzer) analyze(ctx context.Context, raw []int, selected []Metric, progress ProgressFunc) (Report, error) {
	selection, err := a.Selection(selected)
	if err != nil {
		return Report{}, err
	}

	table, err := sbox.NewTable(raw)
	if err != nil {
		return Report{}, err
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var opts []sbox.Option
	if a.workers > 0 {
		opts = append(opts, sbox.WithWorkers(a.workers))
	}

	var (
		mu      sync.Mutex
		results Results
	)
	group, groupCtx := errgroup.WithContext(ctx)
	for _, m := range selection {
		group.Go(func() error {
			began := a.clock.Now()
			result, err := compute(groupCtx, m, table, opts)
			if err != nil {
				return err
			}
			took := clock.Since(a.clock, began)
			result.DurationMS = clock.Milliseconds(took)
			metrics.RecordMetricComputation(string(m), took)

			mu.Lock()
			defer mu.Unlock()
			result.apply(&results)
			if progress != nil {
				progress(result)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Report{}, err
	}
	observe(results)

	return Report{
		ID:          a.newID(),
		CreatedAt:   a.clock.Now().UTC(),
		Metrics:     selection,
		InputLength: len(raw),
		Warnings:    normalizationWarnings(len(raw)),
		Table:       table.Ints(),
		Results:     results,
		Validation:  validation.Summarize(table),
	}, nil
}

func compute(ctx context.Context, m Metric, t sbox.Table, opts []sbox.Option) (MetricResult, error) {
	result := MetricResult{Metric: m}
	var err error
	switch m {
	case MetricLAP:
		result.Value, err = sbox.LAP(ctx, t, opts...)
	case MetricNonlinearity:
		result.Value, err = sbox.Nonlinearity(ctx, t, opts...)
	case MetricSAC:
		var (
			value  float64
			matrix sbox.SACMatrix
		)
		value, matrix, err = sbox.SAC(ctx, t, opts...)
		result.Value, result.Matrix = value, matrix.Rows()
	case MetricDAP:
		result.Value, err = sbox.DAP(ctx, t, opts...)
	case MetricDifferentialUniformity:
		result.Value, err = sbox.DifferentialUniformity(ctx, t, opts...)
	case MetricBICSAC:
		result.Value, err = sbox.BICSAC(ctx, t, opts...)
	case MetricBICNL:
		result.Value, err = sbox.BICNL(ctx, t, opts...)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownMetric, string(m))
	}
	return result, err
}

func observe(results Results) {
	if results.Nonlinearity != nil {
		metrics.ObserveNonlinearity(*results.Nonlinearity)
	}
	if results.LAP != nil {
		metrics.ObserveLAP(*results.LAP)
	}
	if results.DAP != nil {
		metrics.ObserveDAP(*results.DAP)
	}
}

func normalizationWarnings(length int) []string {
	switch {
	case length < sbox.Size:
		return []string{fmt.Sprintf("input padded from %d to %d entries", length, sbox.Size)}
	case length > sbox.Size:
		return []string{fmt.Sprintf("input truncated from %d to %d entries", length, sbox.Size)}
	default:
		return nil
	}
}

// StatusOf maps an analysis error to its status label.
func StatusOf(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, sbox.ErrInvalidInput), errors.Is(err, ErrUnknownMetric):
		return StatusInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusError
	}
}

// IsInvalid reports whether err was caused by the request rather than the
// analyzer.
func IsInvalid(err error) bool {
	return StatusOf(err) == StatusInvalid
}

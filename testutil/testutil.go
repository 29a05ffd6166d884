// Package testutil holds helpers shared by the analyzer's package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
)

var registryMu sync.Mutex

// ResetRegistryForTest points the metrics package at a fresh registry until
// the test ends. The swap is guarded by a package lock held for the whole
// test, so tests using it run one at a time.
func ResetRegistryForTest(t *testing.T) *prometheus.Registry {
	t.Helper()

	registryMu.Lock()

	reg := prometheus.NewRegistry()
	metrics.ResetForTesting(reg)

	t.Cleanup(func() {
		metrics.ResetForTesting(prometheus.DefaultRegisterer)
		registryMu.Unlock()
	})

	return reg
}

// WaitForCondition polls probe until it succeeds or ctx ends.
func WaitForCondition[T any](ctx context.Context, probe func() (T, bool)) (T, error) {
	var zero T
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		if val, ok := probe(); ok {
			return val, nil
		}

		runtime.Gosched()
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitForError returns the first value received on ch. It never times out;
// callers rely on the test deadline.
func WaitForError(t *testing.T, ch <-chan error, desc string) error {
	t.Helper()
	result, err := WaitForCondition(context.Background(), func() (error, bool) {
		select {
		case err := <-ch:
			return err, true
		default:
			return nil, false
		}
	})
	if err != nil {
		t.Fatalf("timeout waiting for %s: %v", desc, err)
	}
	return result
}

// WaitForValue polls read for up to two seconds until it returns want.
// Collectors updated after a response is written need this.
func WaitForValue(t *testing.T, desc string, read func() float64, want float64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := WaitForCondition(ctx, func() (float64, bool) {
		v := read()
		return v, v == want
	}); err != nil {
		t.Fatalf("%s: got %v, want %v", desc, read(), want)
	}
}

// WriteTableFile stores values as one comma-separated line under the test's
// temporary directory and returns the path.
func WriteTableFile(t *testing.T, name string, values []int) string {
	t.Helper()
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = strconv.Itoa(v)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.Join(cells, ",")+"\n"), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

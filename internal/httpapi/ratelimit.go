package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/clock"
)

// tokenBucket refills at a constant rate up to a burst capacity. It is safe
// for concurrent use.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	clock      clock.Clock
}

// newTokenBucket creates a full bucket refilling at rate tokens per second.
func newTokenBucket(rate float64, burst float64, clk clock.Clock) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = rate
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &tokenBucket{
		capacity:   burst,
		tokens:     burst,
		refillRate: rate,
		lastRefill: clk.Now(),
		clock:      clk,
	}
}

// Allow takes a token if one is available. Otherwise it reports how long
// until the next token, never less than a second.
func (b *tokenBucket) Allow() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed.Seconds()*b.refillRate)
		b.lastRefill = now
	}

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, 0
	}

	deficit := math.Max(0, 1.0-b.tokens)
	wait := time.Duration(deficit / b.refillRate * float64(time.Second))
	if wait < time.Second {
		wait = time.Second
	}
	return false, wait
}

func (s *Server) setRetryAfter(response http.ResponseWriter, wait time.Duration) {
	seconds := s.retryAfterSeconds
	if wait > 0 {
		if calc := int(math.Ceil(wait.Seconds())); calc > seconds {
			seconds = calc
		}
	}
	if seconds < 1 {
		seconds = defaultRetryAfterSeconds
	}
	response.Header().Set("Retry-After", strconv.Itoa(seconds))
}

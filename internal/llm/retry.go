package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"dreamspace-gateway/internal/metrics"
)

// StatusFunc receives human-readable progress messages.
type StatusFunc func(msg string)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts  int           // total attempts including the first (default: 3)
	InitialDelay time.Duration // wait before the second attempt (default: 2s)
	Multiplier   float64       // growth per transient failure (default: 2)
	MaxDelay     time.Duration // cap on the deterministic wait (default: 15s)
	MaxJitter    time.Duration // uniform jitter added on top (default: 1s)
	Cooldown     time.Duration // hint returned once attempts are exhausted (default: 60s)
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		Multiplier:   2,
		MaxDelay:     15 * time.Second,
		MaxJitter:    time.Second,
		Cooldown:     60 * time.Second,
	}
}

// WithDefaults fills unset fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxJitter < 0 {
		p.MaxJitter = 0
	}
	if p.Cooldown <= 0 {
		p.Cooldown = d.Cooldown
	}
	return p
}

// Executor runs an operation under a Policy, retrying only failures that
// Classify marks transient.
type Executor struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
	logger *zap.Logger
}

type ExecutorOption func(*Executor)

// WithSleeper replaces the wall-clock wait, e.g. with a recorder in tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

// WithJitter replaces the random jitter source.
func WithJitter(fn func(max time.Duration) time.Duration) ExecutorOption {
	return func(e *Executor) { e.jitter = fn }
}

// NewExecutor creates an executor. A zero Policy means DefaultPolicy.
func NewExecutor(policy Policy, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		policy: policy.WithDefaults(),
		sleep:  sleepContext,
		jitter: randomJitter,
		logger: logger.Named("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the effective policy.
func (e *Executor) Policy() Policy { return e.policy }

// Do runs fn until it succeeds, fails fatally or runs out of attempts.
//
// Before every retry onStatus is told which attempt is next and how long the
// wait is. Exhausted retries return a KindCapacityExceeded *Error; fatal
// failures return their classified *Error; cancellation of ctx returns
// ctx.Err().
func Do[T any](ctx context.Context, e *Executor, operation string, onStatus StatusFunc, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	p := e.policy

	var lastErr *Error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := computeBackoff(p, attempt)
			if lastErr != nil && lastErr.Cooldown > wait {
				wait = min(lastErr.Cooldown, p.MaxDelay)
			}
			wait += e.jitter(p.MaxJitter)

			e.notify(onStatus, fmt.Sprintf("High traffic detected. Retrying in %ds (attempt %d of %d)...",
				int(math.Ceil(wait.Seconds())), attempt+1, p.MaxAttempts))

			e.logger.Debug("backing off before retry",
				zap.String("operation", operation),
				zap.Duration("backoff", wait),
				zap.Int("next_attempt", attempt+1),
			)
			if err := e.sleep(ctx, wait); err != nil {
				return zero, err
			}
		}

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			metrics.RetryAttemptsTotal.WithLabelValues(operation, "success").Inc()
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		cerr := Classify(err)
		if !cerr.Retryable() {
			metrics.RetryAttemptsTotal.WithLabelValues(operation, "fatal").Inc()
			e.logger.Warn("generation failed",
				zap.String("operation", operation),
				zap.String("kind", string(cerr.Kind)),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			return zero, cerr
		}

		metrics.RetryAttemptsTotal.WithLabelValues(operation, "transient").Inc()
		e.logger.Info("transient generation failure",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Int("status", cerr.Status),
			zap.Error(err),
		)
		lastErr = cerr
	}

	e.logger.Warn("generation exhausted all retries",
		zap.String("operation", operation),
		zap.Int("attempts", p.MaxAttempts),
	)
	return zero, capacityExceeded(p.Cooldown, lastErr)
}

// notify runs the status callback synchronously; a panicking callback is
// logged and otherwise ignored.
func (e *Executor) notify(onStatus StatusFunc, msg string) {
	if onStatus == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("status callback panicked", zap.Any("panic", r))
		}
	}()
	onStatus(msg)
}

// computeBackoff is the deterministic wait before attempt (1-based retries):
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
// Jitter is added separately by the executor.
func computeBackoff(p Policy, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	// 2^30 is far past any cap
	exp := attempt - 1
	if exp > 30 {
		exp = 30
	}

	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(exp))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isTransientNetError determines whether a network error is worth retrying.
func isTransientNetError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	// connection refused while the upstream restarts, resets mid-body
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write" {
			return true
		}
	}

	// wrapped errors sometimes only survive as text
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
		"unexpected eof",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// parseRetryAfter extracts the retry delay from a Retry-After header, either
// delta-seconds or an HTTP date. Returns 0 if missing or invalid.
func parseRetryAfter(resp *http.Response, now time.Time) time.Duration {
	if resp == nil {
		return 0
	}

	retryAfter := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}

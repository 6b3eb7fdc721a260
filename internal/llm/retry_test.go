package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func (s *sleepRecorder) total() time.Duration {
	var sum time.Duration
	for _, d := range s.waits {
		sum += d
	}
	return sum
}

func newTestExecutor(t *testing.T, p Policy) (*Executor, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	e := NewExecutor(p, zaptest.NewLogger(t),
		WithSleeper(rec.sleep),
		WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
	return e, rec
}

var rateLimited = &UpstreamError{Status: http.StatusTooManyRequests, Message: "Resource has been exhausted"}

func TestComputeBackoffMonotoneAndCapped(t *testing.T) {
	p := DefaultPolicy()

	prev := time.Duration(0)
	for attempt := 1; attempt <= 40; attempt++ {
		d := computeBackoff(p, attempt)
		if d < prev {
			t.Fatalf("backoff decreased at attempt %d: %s < %s", attempt, d, prev)
		}
		if d > p.MaxDelay {
			t.Fatalf("backoff above cap at attempt %d: %s", attempt, d)
		}
		prev = d
	}

	if got := computeBackoff(p, 1); got != 2*time.Second {
		t.Fatalf("first retry should wait InitialDelay, got %s", got)
	}
	if got := computeBackoff(p, 3); got != 8*time.Second {
		t.Fatalf("third retry should wait 8s, got %s", got)
	}
	if got := computeBackoff(p, 10); got != p.MaxDelay {
		t.Fatalf("expected cap %s, got %s", p.MaxDelay, got)
	}
}

func TestJitterStaysWithinBound(t *testing.T) {
	for i := 0; i < 100; i++ {
		if j := randomJitter(time.Second); j < 0 || j >= time.Second {
			t.Fatalf("jitter out of range: %s", j)
		}
	}
	if randomJitter(0) != 0 {
		t.Fatalf("zero bound must give zero jitter")
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	e, rec := newTestExecutor(t, DefaultPolicy())

	calls := 0
	var statuses []string
	got, err := Do(context.Background(), e, OpRedesign, func(msg string) {
		statuses = append(statuses, msg)
	}, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", rateLimited
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("got %q after %d calls", got, calls)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 status messages, got %v", statuses)
	}
	if rec.total() != 6*time.Second {
		t.Fatalf("expected 2s+4s of backoff, got %v", rec.waits)
	}
}

func TestDoFatalIsNotRetried(t *testing.T) {
	fatal := []error{
		&UpstreamError{Status: http.StatusBadRequest, Message: "API key not valid"},
		&UpstreamError{Status: http.StatusBadRequest, Message: "bad payload"},
		&UpstreamError{Status: http.StatusNotFound, Message: "Requested entity was not found."},
		&UpstreamError{Status: http.StatusTooManyRequests, Message: "quota exceeded: requests per day"},
		malformed("no image", nil),
		errors.New("mystery"),
	}

	for _, ferr := range fatal {
		e, rec := newTestExecutor(t, DefaultPolicy())

		calls := 0
		_, err := Do(context.Background(), e, OpAdvice, nil, func(ctx context.Context) (int, error) {
			calls++
			return 0, ferr
		})
		if calls != 1 {
			t.Fatalf("%v: expected exactly one call, got %d", ferr, calls)
		}
		if len(rec.waits) != 0 {
			t.Fatalf("%v: fatal error must not back off", ferr)
		}
		var lerr *Error
		if !errors.As(err, &lerr) || lerr.Retryable() {
			t.Fatalf("%v: expected fatal *Error, got %v", ferr, err)
		}
	}
}

func TestDoExhaustionIsCapacityExceeded(t *testing.T) {
	p := DefaultPolicy()
	e, rec := newTestExecutor(t, p)

	calls := 0
	_, err := Do(context.Background(), e, OpShop, nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, &UpstreamError{Status: http.StatusServiceUnavailable, Message: "The model is overloaded."}
	})

	if calls != p.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", p.MaxAttempts, calls)
	}
	if len(rec.waits) != p.MaxAttempts-1 {
		t.Fatalf("expected %d waits, got %d", p.MaxAttempts-1, len(rec.waits))
	}

	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindCapacityExceeded {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	if lerr.Cooldown != p.Cooldown {
		t.Fatalf("expected cooldown hint %s, got %s", p.Cooldown, lerr.Cooldown)
	}
	var up *UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected last upstream error to stay inspectable")
	}
}

func TestDoHonorsRetryAfterUpToCap(t *testing.T) {
	e, rec := newTestExecutor(t, Policy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second})

	calls := 0
	_, _ = Do(context.Background(), e, OpRedesign, nil, func(ctx context.Context) (int, error) {
		calls++
		switch calls {
		case 1:
			return 0, &UpstreamError{Status: 429, Message: "slow down", RetryAfter: 5 * time.Second}
		case 2:
			return 0, &UpstreamError{Status: 429, Message: "slow down", RetryAfter: time.Hour}
		}
		return 1, nil
	})

	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if len(rec.waits) != 2 || rec.waits[0] != want[0] || rec.waits[1] != want[1] {
		t.Fatalf("expected waits %v, got %v", want, rec.waits)
	}
}

func TestDoSurvivesPanickingCallback(t *testing.T) {
	e, _ := newTestExecutor(t, DefaultPolicy())

	calls := 0
	got, err := Do(context.Background(), e, OpRedesign, func(string) {
		panic("ui went away")
	}, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", rateLimited
		}
		return "done", nil
	})
	if err != nil || got != "done" {
		t.Fatalf("expected success despite callback panic, got %q, %v", got, err)
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	e := NewExecutor(DefaultPolicy(), zaptest.NewLogger(t),
		WithJitter(func(time.Duration) time.Duration { return 0 }))

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, e, OpAdvice, nil, func(ctx context.Context) (int, error) {
			calls++
			return 0, rateLimited
		})
		done <- err
	}()

	// first attempt fails, the executor is now in a 2s backoff
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("executor did not stop on cancel")
	}
	if calls != 1 {
		t.Fatalf("expected one attempt before cancel, got %d", calls)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"12", 12 * time.Second},
		{"-3", 0},
		{"soon", 0},
		{now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{now.Add(-30 * time.Second).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		resp := &http.Response{Header: http.Header{}}
		if tt.header != "" {
			resp.Header.Set("Retry-After", tt.header)
		}
		if got := parseRetryAfter(resp, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %s, want %s", tt.header, got, tt.want)
		}
	}
}

func TestClassifyNetworkErrors(t *testing.T) {
	if k := Classify(context.DeadlineExceeded).Kind; k != KindTransient {
		t.Fatalf("timeouts should be transient, got %s", k)
	}
	if k := Classify(errors.New("read tcp: connection reset by peer")).Kind; k != KindTransient {
		t.Fatalf("resets should be transient, got %s", k)
	}
	if k := Classify(errors.New("x509: certificate signed by unknown authority")).Kind; k != KindUnknown {
		t.Fatalf("unknown errors should fail closed, got %s", k)
	}
	if Classify(nil) != nil {
		t.Fatalf("nil error must classify to nil")
	}
}

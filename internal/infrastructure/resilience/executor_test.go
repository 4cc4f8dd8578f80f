package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

func fastRetryConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(fastRetryConfig(), nil)

	attempts := 0
	err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return domain.WrapError(domain.ErrTemporary, "nats publish", errors.New("no responders"))
		}
		return nil
	}, TemporaryClassifier)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryDataErrors(t *testing.T) {
	exec := NewExecutor(fastRetryConfig(), nil)

	attempts := 0
	errData := domain.WrapError(domain.ErrDataInvalid, "export collection", errors.New("bad row"))
	err := exec.Execute(context.Background(), "postgres.export", func(context.Context) error {
		attempts++
		return errData
	}, TemporaryClassifier)
	if !errors.Is(err, domain.ErrDataInvalid) {
		t.Fatalf("expected data error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestCallReturnsValueAfterRetry(t *testing.T) {
	exec := NewExecutor(fastRetryConfig(), nil)

	attempts := 0
	rows, err := Call(context.Background(), exec, "postgres.export", func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, domain.WrapError(domain.ErrTemporary, "query", errors.New("connection reset"))
		}
		return 42, nil
	}, TemporaryClassifier)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if rows != 42 || attempts != 2 {
		t.Fatalf("expected 42 after 2 attempts, got %d after %d", rows, attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}, nil)

	errDown := errors.New("broker unavailable")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
			return errDown
		}, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("expected broker error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestTemporaryClassifier(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{"temporary", domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), ErrorClassification{Retryable: true, RecordFailure: true}},
		{"schema", domain.WrapError(domain.ErrSchemaMismatch, "op", errors.New("x")), ErrorClassification{}},
		{"other", errors.New("x"), ErrorClassification{RecordFailure: true}},
	}
	for _, tc := range cases {
		if got := TemporaryClassifier(tc.err); got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
	}
}

type observerFake struct {
	retries []string
	states  []string
}

func (o *observerFake) ObserveRetry(operation string) { o.retries = append(o.retries, operation) }

func (o *observerFake) ObserveBreakerState(operation, state string) {
	o.states = append(o.states, operation+"="+state)
}

func TestExecuteReportsRetriesAndBreakerState(t *testing.T) {
	obs := &observerFake{}
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 1,
	}, nil, WithObserver(obs))

	errDown := domain.WrapError(domain.ErrTemporary, "query", errors.New("connection refused"))
	err := exec.Execute(context.Background(), "postgres.export_collection", func(context.Context) error {
		return errDown
	}, TemporaryClassifier)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if len(obs.retries) != 1 || obs.retries[0] != "postgres.export_collection" {
		t.Fatalf("unexpected retries %v", obs.retries)
	}
	if len(obs.states) != 1 || obs.states[0] != "postgres.export_collection=open" {
		t.Fatalf("unexpected breaker states %v", obs.states)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := NewExecutor(fastRetryConfig(), nil).Execute(ctx, "nats.publish", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before the first attempt, got %v (called=%v)", err, called)
	}
}

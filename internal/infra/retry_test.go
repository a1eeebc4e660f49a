package infra_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"askhome/internal/infra"
)

func fastRetry() infra.RetryConfig {
	return infra.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry_EventuallySucceeds(t *testing.T) {
	calls := 0
	err := infra.WithRetry(context.Background(), fastRetry(), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	calls := 0
	want := errors.New("still failing")
	err := infra.WithRetry(context.Background(), fastRetry(), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 3 {
		t.Errorf("got err %v after %d calls", err, calls)
	}
}

func TestWithRetry_Permanent(t *testing.T) {
	calls := 0
	want := errors.New("bad request")
	err := infra.WithRetry(context.Background(), fastRetry(), func() error {
		calls++
		return infra.Permanent(want)
	})
	if err != want {
		t.Errorf("error: got %v, want %v", err, want)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := infra.WithRetry(ctx, fastRetry(), func() error {
		calls++
		return errors.New("temporary")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	tests := map[int]bool{
		200: false,
		400: false,
		404: false,
		429: true,
		500: true,
		503: true,
	}
	for status, want := range tests {
		if got := infra.IsRetryableHTTPStatus(status); got != want {
			t.Errorf("status %d: got %v, want %v", status, got, want)
		}
	}
}

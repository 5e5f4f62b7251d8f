package infra_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-todo/internal/infra"
)

func TestWithRetry(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		failures  int
		permanent bool
		wantCalls int
		wantErr   error
	}{
		{name: "first try", failures: 0, wantCalls: 1},
		{name: "recovers", failures: 2, wantCalls: 3},
		{name: "exhausted", failures: 5, wantCalls: 3, wantErr: errBoom},
		{name: "permanent", failures: 5, permanent: true, wantCalls: 1, wantErr: errBoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var delays []time.Duration
			cfg := infra.RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 10 * time.Millisecond,
				MaxDelay:     time.Second,
				Multiplier:   2,
				Sleep: func(_ context.Context, d time.Duration) error {
					delays = append(delays, d)
					return nil
				},
			}

			calls := 0
			err := infra.WithRetry(context.Background(), cfg, func() error {
				calls++
				if calls <= tt.failures {
					if tt.permanent {
						return infra.Permanent(errBoom)
					}
					return errBoom
				}
				return nil
			})

			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error: got %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls: got %d, want %d", calls, tt.wantCalls)
			}
			if len(delays) != calls-1 && tt.wantErr == nil {
				t.Errorf("sleeps: got %d, want %d", len(delays), calls-1)
			}
		})
	}
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	calls := 0
	err := infra.WithRetry(context.Background(), infra.DefaultRetryConfig(), func() error {
		calls++
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error: got %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestBackoff_Caps(t *testing.T) {
	b := infra.NewBackoff(600*time.Millisecond, 2*time.Second, 1.5)
	want := []time.Duration{
		600 * time.Millisecond,
		900 * time.Millisecond,
		1350 * time.Millisecond,
		2 * time.Second,
		2 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("step %d: got %s, want %s", i, got, w)
		}
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := infra.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
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

package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-pooling/internal/models"
)

// fakeNotifier fails the first failN calls.
type fakeNotifier struct {
	failN int
	calls int
	users []string
}

func (f *fakeNotifier) Notify(ctx context.Context, userID string, ev models.MatchEvent) error {
	f.calls++
	f.users = append(f.users, userID)
	if f.calls <= f.failN {
		return errors.New("webhook 503")
	}
	return nil
}

var ev = models.MatchEvent{EventID: "ev-1", SearcherUserID: "u1", PartnerUserID: "u2"}

func TestNotifyWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeNotifier{failN: 2}
	start := time.Now()
	if err := notifyWithRetry(context.Background(), f, "u1", ev, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected exponential backoff between attempts")
	}
}

func TestNotifyWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeNotifier{failN: 5}
	if err := notifyWithRetry(context.Background(), f, "u2", ev, 3, time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
}

func TestNotifyWithRetry_StopsOnCancel(t *testing.T) {
	f := &fakeNotifier{failN: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := notifyWithRetry(ctx, f, "u1", ev, 5, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected a single attempt before cancel, got %d", f.calls)
	}
}

func TestWaitReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	if wait(ctx, 30*time.Second) {
		t.Fatal("wait must report cancellation")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("wait ignored ctx cancellation")
	}
}

func TestWaitElapses(t *testing.T) {
	if !wait(context.Background(), time.Millisecond) {
		t.Fatal("wait should complete when ctx stays open")
	}
}

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "test:pooling-pass", ttl), mr
}

func TestRedisLockerIsExclusive(t *testing.T) {
	l, mr := newRedisLocker(t, time.Minute)
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("test:pooling-pass"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("lock must carry its ttl, got %v", ttl)
	}
	if _, ok, err := l.TryLock(ctx); err != nil || ok {
		t.Fatalf("second lock must be refused: ok=%v err=%v", ok, err)
	}
	if err := release(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := l.TryLock(ctx); err != nil || !ok {
		t.Fatalf("lock must be free after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockerStaleReleaseKeepsNewHolder(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)
	ctx := context.Background()

	stale, ok, _ := l.TryLock(ctx)
	if !ok {
		t.Fatal("first lock refused")
	}
	mr.FastForward(2 * time.Second)

	current, ok, _ := l.TryLock(ctx)
	if !ok {
		t.Fatal("expired lock must be acquirable")
	}
	holder, err := mr.Get("test:pooling-pass")
	if err != nil {
		t.Fatal(err)
	}
	if err := stale(ctx); err != nil {
		t.Fatal(err)
	}
	if got, err := mr.Get("test:pooling-pass"); err != nil || got != holder {
		t.Fatalf("stale release removed the current holder's key: %q %v", got, err)
	}
	if _, ok, _ := l.TryLock(ctx); ok {
		t.Fatal("lock must still be held by the current holder")
	}
	if err := current(ctx); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("test:pooling-pass") {
		t.Fatal("holder release must delete the key")
	}
}

func TestRedisLockerUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	l := NewRedisLocker(client, "", time.Minute)
	if _, ok, err := l.TryLock(context.Background()); err == nil || ok {
		t.Fatalf("expected an error with redis down: ok=%v err=%v", ok, err)
	}
}

func TestStepSkipsWhileRedisLockHeld(t *testing.T) {
	l, _ := newRedisLocker(t, time.Minute)
	ctx := context.Background()
	release, ok, _ := l.TryLock(ctx)
	if !ok {
		t.Fatal("lock refused")
	}
	defer release(ctx)

	m := &scriptedMatcher{}
	s := newScheduler(storageWithPooling(t), m, Options{})
	s.Locker = l
	rep, err := s.Step(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.SkippedByLock || len(m.calls) != 0 {
		t.Fatalf("another instance holds the pass, got %+v", rep)
	}
}

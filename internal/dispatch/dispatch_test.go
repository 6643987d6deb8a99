package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/ride-pooling/internal/models"
)

var ev = models.MatchEvent{EventID: "ev-1", SearcherID: "r1", SearcherUserID: "u1", PartnerID: "r2", PartnerUserID: "u2", Mode: "immediate"}

type fakeConn struct {
	sent   []any
	closed bool
}

func (f *fakeConn) WriteJSON(v any) error { f.sent = append(f.sent, v); return nil }
func (f *fakeConn) Close() error          { f.closed = true; return nil }

func TestNotificationIsOrientedPerUser(t *testing.T) {
	a := NewNotification("u1", ev)
	b := NewNotification("u2", ev)
	if a.RequestID != "r1" || a.PartnerUserID != "u2" {
		t.Fatalf("searcher view wrong: %+v", a)
	}
	if b.RequestID != "r2" || b.PartnerUserID != "u1" {
		t.Fatalf("partner view wrong: %+v", b)
	}
}

func TestWSRegistryReplacesSession(t *testing.T) {
	r := NewWSRegistry(nil)
	old := &fakeConn{}
	cur := &fakeConn{}
	r.add("u1", old)
	r.add("u1", cur)
	if !old.closed {
		t.Fatal("old session must be closed")
	}
	if err := r.Notify(context.Background(), "u1", ev); err != nil {
		t.Fatal(err)
	}
	if len(cur.sent) != 1 || len(old.sent) != 0 {
		t.Fatalf("sent to wrong session: old=%d cur=%d", len(old.sent), len(cur.sent))
	}
	if err := r.Notify(context.Background(), "nobody", ev); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestWebhookPostsNotification(t *testing.T) {
	var got Notification
	var auth, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, key = r.Header.Get("Authorization"), r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "secret", 0)
	if err := w.Notify(context.Background(), "u2", ev); err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u2" || got.PartnerID != "r1" || auth != "Bearer secret" || key != "ev-1:u2" {
		t.Fatalf("unexpected delivery: %+v auth=%q key=%q", got, auth, key)
	}
}

func TestWebhookNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewWebhook(srv.URL, "", 0).Notify(context.Background(), "u1", ev); err == nil {
		t.Fatal("expected error on 502")
	}
}

type recorder struct {
	users []string
	err   error
}

func (r *recorder) Notify(_ context.Context, userID string, _ models.MatchEvent) error {
	r.users = append(r.users, userID)
	return r.err
}

func TestFanoutAndNotifyPair(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("down")}
	err := NotifyPair(context.Background(), Fanout{ok, bad}, ev)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(ok.users) != 2 || ok.users[0] != "u1" || ok.users[1] != "u2" {
		t.Fatalf("both users must be notified: %v", ok.users)
	}
}

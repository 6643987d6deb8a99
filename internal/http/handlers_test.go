package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/ride-pooling/internal/matcher"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/pairing"
	"github.com/example/ride-pooling/internal/route"
	"github.com/example/ride-pooling/internal/scheduler"
	"github.com/example/ride-pooling/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	p := matcher.DefaultParams()
	p.Location = time.UTC
	svc := matcher.NewService(store, route.StraightLine{}, p, nil)
	svc.Now = func() time.Time { return time.Date(2026, 1, 20, 6, 0, 0, 0, time.UTC) }
	committer := &pairing.Committer{Store: store}
	sched := scheduler.New(store, svc, committer, nil, scheduler.Options{Location: time.UTC}, nil)
	return NewServer(Deps{Store: store, Matcher: svc, Committer: committer, Pooling: sched}, nil), store
}

func tripJSON(user, mode, clock string) []byte {
	return []byte(fmt.Sprintf(`{
		"user_id": %q,
		"mode": %q,
		"request": {
			"departure": {"name": "campus", "lat": 35.60, "lon": 139.70},
			"destination": {"name": "station", "lat": 35.65, "lon": 139.75},
			"target_date": "2026-01-20",
			"departure_time": %q,
			"tolerance_minutes": 30
		}
	}`, user, mode, clock))
}

func do(t *testing.T, s http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	var out map[string]any
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &out)
	}
	return rr, out
}

func TestSubmitImmediateWithoutPartner(t *testing.T) {
	s, _ := newTestServer(t)
	rr, out := do(t, s, http.MethodPost, "/api/v1/requests", tripJSON("u1", "immediate", "09:00"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body)
	}
	d := out["decision"].(map[string]any)
	if d["status"] != "failed" || d["failure_kind"] != "no_candidates" || d["message"] != "no one waiting" {
		t.Fatalf("unexpected decision: %v", d)
	}
	if out["request"].(map[string]any)["status"] != "active" {
		t.Fatalf("request must stay active: %v", out["request"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestSubmitMatchesAndCommits(t *testing.T) {
	s, store := newTestServer(t)
	rr, first := do(t, s, http.MethodPost, "/api/v1/requests", tripJSON("u1", "immediate", "09:00"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("first submit: %d %s", rr.Code, rr.Body)
	}
	if first["request"].(map[string]any)["status"] != "active" {
		t.Fatalf("unmatched immediate request must stay active: %v", first["request"])
	}

	rr, second := do(t, s, http.MethodPost, "/api/v1/requests", tripJSON("u2", "immediate", "09:10"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("second submit: %d %s", rr.Code, rr.Body)
	}
	if second["decision"].(map[string]any)["status"] != "matched" || second["event"] == nil {
		t.Fatalf("expected match with event: %v", second)
	}
	firstID := first["request"].(map[string]any)["id"].(string)
	rec, err := store.Get(context.Background(), firstID)
	if err != nil || rec.Status != models.StatusMatched || rec.PartnerUserID != "u2" {
		t.Fatalf("first request not committed: %+v %v", rec, err)
	}

	rr, got := do(t, s, http.MethodGet, "/api/v1/requests/"+firstID, nil)
	if rr.Code != http.StatusOK || got["status"] != "matched" {
		t.Fatalf("get: %d %v", rr.Code, got)
	}
}

type conflictCommitter struct{}

func (conflictCommitter) Commit(context.Context, matcher.Searcher, matcher.Decision) (models.MatchEvent, error) {
	return models.MatchEvent{}, fmt.Errorf("claim: %w", storage.ErrConflict)
}

func TestSubmitConflict(t *testing.T) {
	s, _ := newTestServer(t)
	s.deps.Committer = conflictCommitter{}
	do(t, s, http.MethodPost, "/api/v1/requests", tripJSON("u1", "batch", "09:00"))
	rr, out := do(t, s, http.MethodPost, "/api/v1/requests", tripJSON("u2", "batch", "09:00"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if out["request"].(map[string]any)["status"] != "pooling" {
		t.Fatalf("request must remain pooling: %v", out["request"])
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t)
	cases := [][]byte{
		[]byte(`{`),
		tripJSON("", "immediate", "09:00"),
		tripJSON("u1", "someday", "09:00"),
		tripJSON("u1", "immediate", "9am"),
	}
	for _, body := range cases {
		rr, _ := do(t, s, http.MethodPost, "/api/v1/requests", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, rr.Code)
		}
	}
}

func TestPreviewDoesNotPersist(t *testing.T) {
	s, store := newTestServer(t)
	do(t, s, http.MethodPost, "/api/v1/requests", tripJSON("u1", "immediate", "09:00"))
	rr, out := do(t, s, http.MethodPost, "/api/v1/match/preview?mode=batch", tripJSON("u2", "", "09:00"))
	if rr.Code != http.StatusOK || out["status"] != "matched" || out["rule"] != "s_rank" {
		t.Fatalf("unexpected preview: %d %v", rr.Code, out)
	}
	open, _ := store.Candidates(context.Background(), storage.CandidateQuery{Statuses: []models.Status{models.StatusActive}})
	if len(open) != 1 {
		t.Fatalf("preview must not commit, open=%d", len(open))
	}
}

func TestGetUnknownRequest(t *testing.T) {
	s, _ := newTestServer(t)
	rr, _ := do(t, s, http.MethodGet, "/api/v1/requests/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPoolingRun(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/v1/requests", tripJSON("u1", "batch", "09:00"))
	rr, out := do(t, s, http.MethodPost, "/api/v1/pooling/run", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if out["evaluated"] != float64(1) || out["failed"] != float64(1) {
		t.Fatalf("unexpected report: %v", out)
	}

	s.deps.Pooling = nil
	rr, _ = do(t, s, http.MethodPost, "/api/v1/pooling/run", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without scheduler, got %d", rr.Code)
	}
}

func TestAccessLogCarriesMatchAttributes(t *testing.T) {
	s, _ := newTestServer(t)
	var logs bytes.Buffer
	s.logger = slog.New(slog.NewTextHandler(&logs, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", bytes.NewReader(tripJSON("u1", "batch", "09:00")))
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") != "req-42" {
		t.Fatalf("request id not echoed: %q", rr.Header().Get("X-Request-ID"))
	}

	var access string
	for _, line := range strings.Split(logs.String(), "\n") {
		if strings.Contains(line, "msg=http_request") {
			access = line
		}
	}
	for _, want := range []string{"request_id=req-42", "mode=batch", "outcome=failed", "route=/api/v1/requests"} {
		if !strings.Contains(access, want) {
			t.Fatalf("access log missing %q: %s", want, access)
		}
	}
}

func TestRequestLoggerWithoutScope(t *testing.T) {
	s, _ := newTestServer(t)
	if s.requestLogger(context.Background()) != s.logger {
		t.Fatal("requests outside the middleware use the server logger")
	}
	annotate(context.Background(), "mode", "batch")
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rr, _ := do(t, s, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected healthz: %d %q", rr.Code, rr.Body)
	}
}

package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-pooling/internal/dispatch"
	"github.com/example/ride-pooling/internal/matcher"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/scheduler"
	"github.com/example/ride-pooling/internal/storage"
)

type Matcher interface {
	Immediate(ctx context.Context, sr matcher.Searcher) matcher.Decision
	Batch(ctx context.Context, sr matcher.Searcher) matcher.Decision
}

type Committer interface {
	Commit(ctx context.Context, sr matcher.Searcher, d matcher.Decision) (models.MatchEvent, error)
}

type PoolingRunner interface {
	Step(ctx context.Context) (scheduler.PassReport, error)
}

// Deps are the collaborators a Server routes to. Pooling and WS are optional.
type Deps struct {
	Store     storage.Repository
	Matcher   Matcher
	Committer Committer
	Pooling   PoolingRunner
	WS        *dispatch.WSRegistry
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger.With("component", "http"), mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/requests", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/match/preview", s.handlePreview).Methods(http.MethodPost)
	api.HandleFunc("/pooling/run", s.handlePoolingRun).Methods(http.MethodPost)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

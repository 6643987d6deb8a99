package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/ride-pooling/internal/matcher"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/storage"
)

type submitRequest struct {
	UserID   string             `json:"user_id"`
	Nickname string             `json:"nickname"`
	Username string             `json:"username"`
	IconURL  string             `json:"icon_url"`
	Mode     string             `json:"mode"`
	Request  models.TripRequest `json:"request"`
}

type submitResponse struct {
	Request  models.CandidateRecord `json:"request"`
	Decision matcher.Decision       `json:"decision"`
	Event    *models.MatchEvent     `json:"event,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	mode, err := matcher.ParseMode(body.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := body.Request.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := &models.CandidateRecord{
		UserID:   body.UserID,
		Nickname: body.Nickname,
		Username: body.Username,
		IconURL:  body.IconURL,
		Status:   models.StatusActive,
		Request:  body.Request,
	}
	if mode == matcher.ModeBatch {
		rec.Status = models.StatusPooling
	}
	ctx := r.Context()
	if err := s.deps.Store.Save(ctx, rec); err != nil {
		s.requestLogger(ctx).Error("save request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not store request")
		return
	}

	sr := matcher.SearcherFromRecord(*rec)
	annotate(ctx, "mode", string(mode), "request", rec.ID)
	var d matcher.Decision
	if mode == matcher.ModeBatch {
		d = s.deps.Matcher.Batch(ctx, sr)
	} else {
		d = s.deps.Matcher.Immediate(ctx, sr)
	}
	annotate(ctx, "outcome", string(d.Outcome))

	resp := submitResponse{Request: *rec, Decision: d}
	status := http.StatusCreated
	if d.Outcome == matcher.OutcomeMatched {
		ev, err := s.deps.Committer.Commit(ctx, sr, d)
		switch {
		case errors.Is(err, storage.ErrConflict):
			status = http.StatusConflict
			resp.Error = "partner was claimed by another request"
			s.requestLogger(ctx).Info("partner claimed elsewhere", "partner", d.Partner.ID)
		case err != nil:
			s.requestLogger(ctx).Error("commit failed", "err", err)
			status = http.StatusInternalServerError
			resp.Error = "could not commit match"
		default:
			resp.Event = &ev
		}
	}
	if fresh, err := s.deps.Store.Get(ctx, rec.ID); err == nil {
		resp.Request = fresh
	}
	writeJSON(w, status, resp)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	mode, err := matcher.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sr := matcher.Searcher{UserID: body.UserID, Request: body.Request}
	annotate(r.Context(), "mode", string(mode), "preview", true)
	var d matcher.Decision
	if mode == matcher.ModeBatch {
		d = s.deps.Matcher.Batch(r.Context(), sr)
	} else {
		d = s.deps.Matcher.Immediate(r.Context(), sr)
	}
	annotate(r.Context(), "outcome", string(d.Outcome))
	status := http.StatusOK
	switch {
	case d.Failure == matcher.FailureInvalidRequest:
		status = http.StatusBadRequest
	case d.Retryable():
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, d)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Store.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if err != nil {
		s.requestLogger(r.Context()).Error("get request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not load request")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePoolingRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pooling == nil {
		writeError(w, http.StatusServiceUnavailable, "pooling scheduler disabled")
		return
	}
	rep, err := s.deps.Pooling.Step(r.Context())
	if err != nil {
		s.requestLogger(r.Context()).Error("manual pooling pass failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.WS == nil {
		writeError(w, http.StatusServiceUnavailable, "websocket disabled")
		return
	}
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.deps.WS.Add(id, conn)
	// drain until the client goes away
	go func() {
		defer s.deps.WS.Remove(id, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/store"
)

// handleListCalls serves GET /calls?source=&status=&since=&limit=&offset=.
// since is an RFC 3339 timestamp or a duration back from now ("6h").
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CallFilter{Status: q.Get("status")}

	if raw := q.Get("source"); raw != "" {
		src, err := model.ParseSource(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Source = src
	}
	if raw := q.Get("since"); raw != "" {
		since, err := parseSince(raw, time.Now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Since = since
	}
	limit, offset, err := pagination(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit, filter.Offset = limit, offset

	calls, err := s.store.FindCalls(r.Context(), filter)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if calls == nil {
		calls = []model.Call{}
	}
	writeJSON(w, http.StatusOK, calls)
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	calls, err := s.store.FindCalls(r.Context(), store.CallFilter{ID: id, Limit: 1})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if len(calls) == 0 {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	writeJSON(w, http.StatusOK, calls[0])
}

func (s *Server) handlePatchCall(w http.ResponseWriter, r *http.Request) {
	var patch store.CallPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "patch must set status or priority")
		return
	}

	call, err := s.store.UpdateCall(r.Context(), chi.URLParam(r, "id"), patch)
	switch {
	case errors.Is(err, store.ErrInvalidPatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "call not found")
	case err != nil:
		s.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, call)
	}
}

func (s *Server) handleDeleteCall(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteCall(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "call not found")
	case err != nil:
		s.internalError(w, r, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseSince(raw string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return time.Time{}, eris.Errorf("since must be an RFC 3339 time or a positive duration, got %q", raw)
	}
	return now.Add(-d), nil
}

func pagination(q url.Values) (limit, offset int, err error) {
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return 0, 0, eris.Errorf("limit must be a non-negative integer, got %q", raw)
		}
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, eris.Errorf("offset must be a non-negative integer, got %q", raw)
		}
	}
	return limit, offset, nil
}

// Package api exposes search sessions over HTTP with a websocket event
// stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/michaelscutari/seek/internal/entry"
	"github.com/michaelscutari/seek/internal/extract"
	"github.com/michaelscutari/seek/internal/scan"
	"github.com/michaelscutari/seek/internal/session"
)

// Server tracks the searches started through the API.
type Server struct {
	extractor extract.ContentExtractor
	router    *mux.Router

	mu       sync.RWMutex
	searches map[string]*tracked
	closed   bool
}

// NewServer builds a server whose searches use extractor for content. A nil
// extractor restricts searches to names.
func NewServer(extractor extract.ContentExtractor) *Server {
	s := &Server{
		extractor: extractor,
		searches:  make(map[string]*tracked),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/search", s.startSearch).Methods(http.MethodPost)
	r.HandleFunc("/api/search/{id}", s.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/search/{id}", s.stopSearch).Methods(http.MethodDelete)
	r.HandleFunc("/api/search/{id}/results", s.getResults).Methods(http.MethodGet)
	r.HandleFunc("/api/search/{id}/events", s.streamEvents).Methods(http.MethodGet)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Shutdown stops every running search and waits for them to finish or ctx
// to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	all := make([]*tracked, 0, len(s.searches))
	for _, t := range s.searches {
		all = append(all, t)
	}
	s.mu.Unlock()

	for _, t := range all {
		t.sess.Stop()
	}
	for _, t := range all {
		if _, err := t.sess.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *tracked {
	id := mux.Vars(r)["id"]
	s.mu.RLock()
	t := s.searches[id]
	s.mu.RUnlock()
	if t == nil {
		writeError(w, http.StatusNotFound, "search not found")
	}
	return t
}

type startResponse struct {
	ID string `json:"id"`
}

func (s *Server) startSearch(w http.ResponseWriter, r *http.Request) {
	opts := scan.DefaultOptions()
	if err := json.NewDecoder(r.Body).Decode(opts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	// The search outlives the request.
	sess, err := session.Start(context.Background(), opts, s.extractor, scan.Hooks{})
	if err != nil {
		if errors.Is(err, scan.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	t := newTracked(sess)
	s.mu.Lock()
	s.searches[sess.ID()] = t
	s.mu.Unlock()
	go t.consume()

	logrus.WithFields(logrus.Fields{
		"id":       sess.ID(),
		"root":     opts.Root,
		"keywords": opts.Keywords,
	}).Info("search started")
	writeJSON(w, http.StatusAccepted, startResponse{ID: sess.ID()})
}

type statusResponse struct {
	ID         string                `json:"id"`
	State      scan.State            `json:"state"`
	Percent    int                   `json:"percent"`
	Message    string                `json:"message,omitempty"`
	StopReason string                `json:"stop_reason,omitempty"`
	Counters   entry.CounterSnapshot `json:"counters"`
	StartedAt  time.Time             `json:"started_at"`
	EndedAt    *time.Time            `json:"ended_at,omitempty"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	t := s.lookup(w, r)
	if t == nil {
		return
	}

	percent, message := t.progress()
	meta := t.sess.Meta()
	resp := statusResponse{
		ID:         t.sess.ID(),
		State:      t.sess.State(),
		Percent:    percent,
		Message:    message,
		StopReason: t.sess.StopReason(),
		Counters:   t.sess.Counters(),
		StartedAt:  meta.StartTime,
	}
	if !meta.EndTime.IsZero() {
		resp.EndedAt = &meta.EndTime
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) stopSearch(w http.ResponseWriter, r *http.Request) {
	t := s.lookup(w, r)
	if t == nil {
		return
	}
	t.sess.Stop()
	w.WriteHeader(http.StatusNoContent)
}

type resultView struct {
	Type     string    `json:"type"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	SizeText string    `json:"size_formatted"`
	Modified time.Time `json:"modified"`
	Created  time.Time `json:"created,omitempty"`
	Keyword  string    `json:"keyword"`
	Source   string    `json:"source"`
}

type resultsResponse struct {
	State   scan.State   `json:"state"`
	Results []resultView `json:"results"`
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	t := s.lookup(w, r)
	if t == nil {
		return
	}

	results, err := t.sess.Results()
	if errors.Is(err, session.ErrNotFinished) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := resultsResponse{
		State:   t.sess.State(),
		Results: make([]resultView, len(results)),
	}
	for i, m := range results {
		resp.Results[i] = resultView{
			Type:     m.EntryType.String(),
			Name:     m.Name,
			Path:     m.FullPath,
			Size:     m.Size,
			SizeText: m.SizeFormatted,
			Modified: m.ModTime,
			Created:  m.CreateTime,
			Keyword:  m.Keyword,
			Source:   m.Source.String(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("failed to write response")
	}
}

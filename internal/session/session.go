// Package session is the public face of a search: it validates options,
// runs the engine in the background and exposes its event stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/michaelscutari/seek/internal/entry"
	"github.com/michaelscutari/seek/internal/extract"
	"github.com/michaelscutari/seek/internal/scan"
)

// ErrNotFinished is returned by Results before the search reaches a
// terminal state.
var ErrNotFinished = errors.New("search has not finished")

// Session is a handle on one running or finished search.
type Session struct {
	id      string
	engine  *scan.Engine
	events  *pump
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	ended   time.Time
}

// Start validates opts and launches the search. Only configuration errors
// are returned; everything else arrives as events. A nil extractor limits
// the search to names.
func Start(ctx context.Context, opts *scan.Options, extractor extract.ContentExtractor, hooks scan.Hooks) (*Session, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: options are required", scan.ErrInvalidConfig)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:      uuid.NewString(),
		events:  newPump(),
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	s.engine = scan.NewEngine(opts, extractor, s.events)
	s.engine.SetHooks(hooks)

	go s.run(ctx)
	return s, nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()
	defer s.events.close()

	st := s.engine.Run(ctx)
	s.ended = time.Now()
	logrus.WithFields(logrus.Fields{"session": s.id, "state": st}).Debug("session finished")
}

// ID identifies the session.
func (s *Session) ID() string {
	return s.id
}

// Events streams progress. The channel is closed after the terminal event.
// Callers that stop reading must call Close.
func (s *Session) Events() <-chan scan.Event {
	return s.events.out
}

// Stop requests cancellation and returns immediately.
func (s *Session) Stop() {
	s.engine.Stop()
}

// Close stops the search if it is still running and drops any unread
// events.
func (s *Session) Close() {
	s.engine.Stop()
	s.events.abandon()
}

// Done is closed once the search has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the search finishes or ctx ends.
func (s *Session) Wait(ctx context.Context) (scan.State, error) {
	select {
	case <-s.done:
		return s.engine.State(), nil
	case <-ctx.Done():
		return s.engine.State(), ctx.Err()
	}
}

// State returns the current lifecycle state.
func (s *Session) State() scan.State {
	return s.engine.State()
}

// Results returns the sorted results once the search is terminal.
func (s *Session) Results() ([]entry.MatchResult, error) {
	if !s.engine.State().Terminal() {
		return nil, ErrNotFinished
	}
	return s.engine.Results(), nil
}

// Counters returns a snapshot of the search counters.
func (s *Session) Counters() entry.CounterSnapshot {
	return s.engine.Counters()
}

// Options returns the effective options.
func (s *Session) Options() *scan.Options {
	return s.engine.Options()
}

// StopReason explains a Stopped session.
func (s *Session) StopReason() string {
	return s.engine.StopReason()
}

// Meta summarises the session for persistence. EndTime is zero while the
// search is running.
func (s *Session) Meta() entry.SearchMeta {
	opts := s.engine.Options()
	c := s.engine.Counters()
	m := entry.SearchMeta{
		ID:          s.id,
		RootPath:    opts.Root,
		Keywords:    strings.Join(opts.Keywords, ", "),
		StartTime:   s.started,
		State:       s.engine.State().String(),
		FileCount:   c.FilesChecked,
		DirCount:    c.DirectoriesChecked,
		BytesRead:   c.BytesScanned,
		ResultCount: int64(s.engine.ResultCount()),
		SkipCount:   s.engine.SkipCount(),
		ErrorCount:  s.engine.ErrorCount(),
	}
	select {
	case <-s.done:
		m.EndTime = s.ended
	default:
	}
	return m
}

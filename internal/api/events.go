package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/michaelscutari/seek/internal/scan"
	"github.com/michaelscutari/seek/internal/session"
)

// maxHistory bounds the events kept for late subscribers. The terminal
// event is always kept.
const maxHistory = 1024

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// tracked drains a session's event channel and fans it out to websocket
// subscribers.
type tracked struct {
	sess *session.Session

	mu      sync.Mutex
	history []scan.Event
	base    int // sequence number of history[0]
	notify  chan struct{}
	done    bool
	percent int
	message string
}

func newTracked(sess *session.Session) *tracked {
	return &tracked{
		sess:   sess,
		notify: make(chan struct{}),
	}
}

func (t *tracked) consume() {
	for ev := range t.sess.Events() {
		t.mu.Lock()
		switch ev.Kind {
		case scan.EventProgress:
			t.percent = ev.Percent
		case scan.EventStatus:
			t.message = ev.Text
		}
		t.history = append(t.history, ev)
		if len(t.history) > maxHistory {
			drop := len(t.history) - maxHistory
			t.history = append(t.history[:0:0], t.history[drop:]...)
			t.base += drop
		}
		close(t.notify)
		t.notify = make(chan struct{})
		t.mu.Unlock()
	}

	t.mu.Lock()
	t.done = true
	close(t.notify)
	t.notify = make(chan struct{})
	t.mu.Unlock()
}

func (t *tracked) progress() (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent, t.message
}

// since returns the events from sequence next onward, the sequence after
// them, a channel closed on the next change and whether the stream ended.
func (t *tracked) since(next int) ([]scan.Event, int, <-chan struct{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if next < t.base {
		next = t.base
	}
	pending := append([]scan.Event(nil), t.history[next-t.base:]...)
	return pending, t.base + len(t.history), t.notify, t.done
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	t := s.lookup(w, r)
	if t == nil {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads only serve to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	next := 0
	for {
		events, seq, changed, done := t.since(next)
		for _, ev := range events {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logrus.WithError(err).WithField("id", t.sess.ID()).Debug("websocket write failed")
				return
			}
		}
		next = seq
		if done {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "search finished"))
			return
		}

		select {
		case <-changed:
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

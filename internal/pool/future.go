package pool

import (
	"sync"

	"github.com/michaelscutari/seek/internal/entry"
)

// Future is the eventual outcome of a submitted job. A nil result with a
// nil error means the file did not match.
type Future struct {
	Path string

	once   sync.Once
	done   chan struct{}
	result *entry.MatchResult
	err    error
}

func newFuture(path string) *Future {
	return &Future{Path: path, done: make(chan struct{})}
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the future resolves.
func (f *Future) Result() (*entry.MatchResult, error) {
	<-f.done
	return f.result, f.err
}

// resolve reports whether this call settled the future.
func (f *Future) resolve(r *entry.MatchResult, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result = r
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

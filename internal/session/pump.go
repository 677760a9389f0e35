package session

import (
	"sync"

	"github.com/michaelscutari/seek/internal/scan"
)

// pump is an unbounded scan.Sink. Emit never blocks the engine; a
// goroutine forwards queued events to out and closes it after the
// terminal event.
type pump struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []scan.Event
	closed bool
	quit   chan struct{}
	once   sync.Once

	out chan scan.Event
}

func newPump() *pump {
	p := &pump{
		quit: make(chan struct{}),
		out:  make(chan scan.Event, 64),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.run()
	return p
}

func (p *pump) Emit(ev scan.Event) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, ev)
	if ev.Terminal() {
		p.closed = true
	}
	p.mu.Unlock()
	p.cond.Signal()
}

// close ends the stream without a terminal event.
func (p *pump) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Signal()
}

// abandon drops everything still queued. Used when nobody is reading.
func (p *pump) abandon() {
	p.once.Do(func() { close(p.quit) })
	p.close()
}

func (p *pump) run() {
	defer close(p.out)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		ev := p.queue[0]
		p.queue[0] = scan.Event{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		select {
		case p.out <- ev:
		case <-p.quit:
			return
		}
	}
}

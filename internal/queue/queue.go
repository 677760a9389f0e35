// Package queue holds the priority-ordered block queue used by the
// traversal engine.
package queue

import (
	"container/heap"
	"sync"

	"github.com/michaelscutari/seek/internal/entry"
)

type item struct {
	block entry.Block
	seq   uint64
}

type blockHeap []item

func (h blockHeap) Len() int { return len(h) }
func (h blockHeap) Less(i, j int) bool {
	if h[i].block.Priority != h[j].block.Priority {
		return h[i].block.Priority < h[j].block.Priority
	}
	return h[i].seq < h[j].seq
}
func (h blockHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *blockHeap) Push(x any) {
	*h = append(*h, x.(item))
}

func (h *blockHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// BlockQueue is a thread-safe min-queue keyed on (priority, insertion order).
type BlockQueue struct {
	mu      sync.Mutex
	h       blockHeap
	seq     uint64
	visited *VisitedSet
}

// New creates an empty queue deduplicating against visited. A nil visited
// set gets a private one.
func New(visited *VisitedSet) *BlockQueue {
	if visited == nil {
		visited = NewVisitedSet()
	}
	return &BlockQueue{visited: visited}
}

// Visited exposes the set used for deduplication.
func (q *BlockQueue) Visited() *VisitedSet {
	return q.visited
}

// Push adds a block unconditionally.
func (q *BlockQueue) Push(b entry.Block) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.h, item{block: b, seq: q.seq})
}

// PushUnique adds b only if key has not been visited, marking it visited.
func (q *BlockQueue) PushUnique(key string, b entry.Block) bool {
	if !q.visited.Add(key) {
		return false
	}
	q.Push(b)
	return true
}

// PopLowest removes the block with the lowest priority. It never blocks.
func (q *BlockQueue) PopLowest() (entry.Block, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return entry.Block{}, false
	}
	it := heap.Pop(&q.h).(item)
	return it.block, true
}

// Len returns the number of queued blocks.
func (q *BlockQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

package queue

import "sync"

// VisitedSet records canonical directory paths. A path is admitted once.
type VisitedSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func NewVisitedSet() *VisitedSet {
	return &VisitedSet{paths: make(map[string]struct{})}
}

// Add marks path as visited and reports whether it was new.
func (v *VisitedSet) Add(path string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.paths[path]; ok {
		return false
	}
	v.paths[path] = struct{}{}
	return true
}

// Contains reports whether path was added.
func (v *VisitedSet) Contains(path string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.paths[path]
	return ok
}

func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.paths)
}

package queue

import "strings"

const (
	PriorityHigh    = 0
	PriorityDefault = 1
	PriorityLow     = 3
)

var highPriorityNames = []string{"user", "home", "desktop", "document"}

var lowPriorityNames = []string{"windows", "program files", "programdata", "system32"}

// PriorityFor computes the queue priority of a directory from its leaf name.
// With prioritisation disabled every block is PriorityDefault, which turns
// the queue into a FIFO.
func PriorityFor(name string, enabled bool) int {
	if !enabled {
		return PriorityDefault
	}
	lower := strings.ToLower(name)
	for _, n := range highPriorityNames {
		if strings.Contains(lower, n) {
			return PriorityHigh
		}
	}
	for _, n := range lowPriorityNames {
		if strings.Contains(lower, n) {
			return PriorityLow
		}
	}
	// data and download folders stay at the default.
	return PriorityDefault
}

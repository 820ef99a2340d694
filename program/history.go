package program

import (
	"sync"
	"time"
)

// Entry records one model invocation: the exact rendered prompt and the raw
// response. Entries are appended even when parsing fails so every
// prediction can be traced back to the prompt that produced it.
type Entry struct {
	Predictor string    `json:"predictor"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Err       string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// History is the append-only invocation log. Safe for concurrent append.
type History struct {
	mu      sync.Mutex
	entries []Entry
}

func (h *History) Append(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
}

// Entries returns a snapshot of the log.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Entry(nil), h.entries...)
}

// Last returns the most recent entry, if any.
func (h *History) Last() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len returns the number of logged invocations.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

package model

import "strings"

// Batch accumulates a worker's serialized sample fragments until BulkSize is
// reached, then is closed into a single JSON array literal. A Batch has
// exactly one owner (the worker that built it) for its entire lifetime.
type Batch struct {
	prefix   string
	elements []string
}

// NewBatch creates an empty batch carrying the given static JSON prefix
// (built once per worker from the experiment context; the plugin name comes
// from each fragment).
func NewBatch(prefix string) *Batch {
	return &Batch{prefix: prefix}
}

// Add appends one plugin JSON fragment (the inner comma-separated pairs
// produced by a sampler's ToJSON) as a batch element.
func (b *Batch) Add(fragment string) {
	b.elements = append(b.elements, b.prefix+fragment+"}")
}

// Len reports how many elements are currently buffered.
func (b *Batch) Len() int {
	return len(b.elements)
}

// JSON renders the accumulated elements as a JSON array literal and resets
// the batch so it can be reused for the next window.
func (b *Batch) JSON() string {
	s := "[" + strings.Join(b.elements, ",") + "]"
	b.elements = b.elements[:0]
	return s
}

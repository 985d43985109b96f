package client

// ErrorRingBuffer holds the last N errors, evicting the oldest once full.
// Used for the receiving and authoring ephemeral-error buffers, each with
// capacity 20.
type ErrorRingBuffer struct {
	cap     int
	entries []error
}

// NewErrorRingBuffer creates a ring buffer with the given capacity.
func NewErrorRingBuffer(capacity int) *ErrorRingBuffer {
	return &ErrorRingBuffer{cap: capacity}
}

// Push appends err, evicting the oldest entry if the buffer is full.
func (b *ErrorRingBuffer) Push(err error) {
	b.entries = append(b.entries, err)
	if len(b.entries) > b.cap {
		b.entries = b.entries[len(b.entries)-b.cap:]
	}
}

// Entries returns the buffered errors, oldest first.
func (b *ErrorRingBuffer) Entries() []error {
	out := make([]error, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len reports how many errors are currently buffered.
func (b *ErrorRingBuffer) Len() int {
	return len(b.entries)
}

// Clear empties the buffer. Reconnect does not call it: Context.reset
// replaces both buffers with fresh ones instead.
func (b *ErrorRingBuffer) Clear() {
	b.entries = nil
}

package client

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrorRingBufferEvictsOldest verifies that a full ring buffer drops
// its oldest entry rather than growing or refusing new ones.
func TestErrorRingBufferEvictsOldest(t *testing.T) {
	b := NewErrorRingBuffer(3)
	b.Push(errors.New("e1"))
	b.Push(errors.New("e2"))
	b.Push(errors.New("e3"))
	b.Push(errors.New("e4"))

	entries := b.Entries()
	assert.Len(t, entries, 3)
	assert.Equal(t, "e2", entries[0].Error())
	assert.Equal(t, "e3", entries[1].Error())
	assert.Equal(t, "e4", entries[2].Error())
}

func TestErrorRingBufferLenAndClear(t *testing.T) {
	b := NewErrorRingBuffer(20)
	assert.Equal(t, 0, b.Len())
	b.Push(errors.New("e1"))
	b.Push(errors.New("e2"))
	assert.Equal(t, 2, b.Len())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Entries())
}

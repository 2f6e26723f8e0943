// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package sequencereader

import "errors"

// ErrSequenceEnded indicates a read past the end of the sequence.
var ErrSequenceEnded = errors.New("the sequence is ended")

// SequenceReader yields the elements of a slice one at a time. The
// envelope parser walks disassembled script tokens with it, consuming
// tag and value pairs without index bookkeeping at the call site.
type SequenceReader[T any] struct {
	items []T
	idx   int
}

// New is a constructor for SequenceReader.
func New[T any](items []T) *SequenceReader[T] {
	return &SequenceReader[T]{items: items}
}

// HasNext returns true while unread elements remain.
func (sr *SequenceReader[T]) HasNext() bool {
	return sr.idx < len(sr.items)
}

// Next returns the next element of the sequence.
func (sr *SequenceReader[T]) Next() (T, error) {
	if !sr.HasNext() {
		var zero T
		return zero, ErrSequenceEnded
	}

	item := sr.items[sr.idx]
	sr.idx++

	return item, nil
}

// Len returns how many elements are left.
func (sr *SequenceReader[T]) Len() int {
	return len(sr.items) - sr.idx
}

package domain

import "sync"

// ResultHandle shares one continuously-updated value between a single
// writer and any number of readers. Read hands out the last complete
// value; Write runs the mutator exclusively. A writer holding a reference
// type must replace the value rather than mutate it in place, so that a
// previously-read value stays consistent.
type ResultHandle[T any] struct {
	mu    sync.Mutex
	value T
}

func NewResultHandle[T any](initial T) *ResultHandle[T] {
	return &ResultHandle[T]{value: initial}
}

func (h *ResultHandle[T]) Read() T {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.value
}

func (h *ResultHandle[T]) Write(fn func(*T)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fn(&h.value)
}

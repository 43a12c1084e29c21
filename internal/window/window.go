// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package window holds fixed-capacity rolling buffers of scalar samples.
package window

import (
	"fmt"
	"sync"
)

// Window is a fixed-capacity, insertion-ordered buffer. Once full, every push
// evicts the oldest value.
//
// The sampler is the only writer and the inferer the only reader. The mutex is
// held just long enough to write one slot or copy the buffer out, so a
// snapshot always reflects the state after some whole number of pushes.
type Window struct {
	mu   sync.Mutex
	buf  []float64
	head int // index of the oldest value
	n    int
}

// New returns an empty window holding at most capacity values.
func New(capacity int) (*Window, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("window capacity must be > 0, got %d", capacity)
	}
	return &Window{buf: make([]float64, capacity)}, nil
}

// Push appends v, dropping the oldest value when the window is full.
func (w *Window) Push(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

// Snapshot returns a copy of the current contents, oldest first.
func (w *Window) Snapshot() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]float64, w.n)
	first := copy(out, w.buf[w.head:min(w.head+w.n, len(w.buf))])
	copy(out[first:], w.buf[:w.n-first])
	return out
}

// Len returns the number of values currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Cap returns the capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Full reports whether the window has warmed up to capacity.
func (w *Window) Full() bool {
	return w.Len() == w.Cap()
}

// Reset drops every value.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.head, w.n = 0, 0
}

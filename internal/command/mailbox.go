// Package command coalesces asynchronously produced robot commands into at
// most one transmission per control-loop tick and encodes them onto the
// wire.
package command

import "sync"

// Mailbox holds zero or one pending value. Producers overwrite the pending
// value; when several writes land between two drains only the last
// survives. That loss is deliberate: commands are setpoints, and only the
// freshest one is worth sending. The critical section makes last-write-wins
// hold even when producers run on other goroutines.
type Mailbox[T any] struct {
	mu    sync.Mutex
	value T
	ready bool
}

// Put stores v as the pending value, replacing any previous one.
func (m *Mailbox[T]) Put(v T) {
	m.mu.Lock()
	m.value = v
	m.ready = true
	m.mu.Unlock()
}

// Take removes and returns the pending value, if any.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		var zero T
		return zero, false
	}
	m.ready = false
	return m.value, true
}

// Ready reports whether a value is pending without consuming it.
func (m *Mailbox[T]) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

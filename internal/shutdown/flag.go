package shutdown

import (
	"sync"
	"sync/atomic"
)

// Flag is a one-way switch from running to halted.
type Flag struct {
	once   sync.Once
	halted atomic.Bool
	done   chan struct{}
}

// NewFlag creates a flag in the running state.
func NewFlag() *Flag {
	return &Flag{done: make(chan struct{})}
}

// Halt flips the flag. Only the first call has an effect; it returns true
// for that call and false for every later one.
func (f *Flag) Halt() bool {
	flipped := false
	f.once.Do(func() {
		f.halted.Store(true)
		close(f.done)
		flipped = true
	})
	return flipped
}

// Observer returns a read-only view of the flag.
func (f *Flag) Observer() Observer {
	return Observer{flag: f}
}

// Observer watches a Flag without being able to flip it.
type Observer struct {
	flag *Flag
}

// Done returns a channel that is closed once the flag is halted.
func (o Observer) Done() <-chan struct{} {
	return o.flag.done
}

// Halted reports whether the flag has been flipped.
func (o Observer) Halted() bool {
	return o.flag.halted.Load()
}

// Valid reports whether the observer is attached to a flag. The zero
// Observer is not.
func (o Observer) Valid() bool {
	return o.flag != nil
}

// bufuart/state.go

package bufuart

import "sync/atomic"

// State is the shared driver state for one physical UART: the two software
// rings, the per-direction wakers and the latched receive-error word. It is
// shared between the interrupt bridge and at most one RX and one TX handle.
// The Instance embedding it must outlive all handles, since the interrupt
// can fire until it has been explicitly disabled.
type State struct {
	rxBuf RingBuffer
	txBuf RingBuffer

	rxWaker Waker
	txWaker Waker

	rxError atomic.Uint32
}

// latchRxError ORs fault bits into the error word. Interrupt context.
func (s *State) latchRxError(bits uint32) {
	for {
		old := s.rxError.Load()
		if s.rxError.CompareAndSwap(old, old|bits) {
			return
		}
	}
}

// takeRxError atomically reads and clears the latched fault bits. Consumer
// context.
func (s *State) takeRxError() uint32 { return s.rxError.Swap(0) }

// rxErrorPending reports whether a latched fault has not been consumed yet.
func (s *State) rxErrorPending() bool { return s.rxError.Load() != 0 }

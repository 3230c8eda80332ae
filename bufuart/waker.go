// bufuart/waker.go

package bufuart

import "sync/atomic"

// Waker is a single-slot wake registration shared between task context and
// the interrupt bridge. Register replaces any previous registration
// (last-registration-wins, so an abandoned waiter needs no cleanup); Wake
// performs a coalesced non-blocking send to the registered channel and is a
// no-op when nothing is registered.
type Waker struct {
	slot atomic.Pointer[chan struct{}]
}

// Register installs ch as the wake target, replacing any previous one. ch
// must be buffered (capacity 1) so wakes coalesce instead of blocking the
// bridge.
func (w *Waker) Register(ch chan struct{}) { w.slot.Store(&ch) }

// Wake notifies the registered channel, if any. Safe from interrupt
// context; waiters must re-check state after waking, wakes can be spurious.
func (w *Waker) Wake() {
	p := w.slot.Load()
	if p == nil {
		return
	}
	select {
	case *p <- struct{}{}:
	default:
	}
}

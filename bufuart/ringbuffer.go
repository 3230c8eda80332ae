// bufuart/ringbuffer.go

package bufuart

import "sync/atomic"

// RingBuffer is a fixed-capacity single-producer/single-consumer byte queue
// over caller-supplied storage. The cursors are free-running counters in
// [0, 2*cap): reduced modulo the capacity for addressing and modulo twice
// the capacity so that "empty" (used == 0) and "full" (used == cap) stay
// distinguishable for any capacity, power of two or not.
//
// Exactly one goroutine (or the interrupt bridge) may act as the producer
// and one as the consumer while storage is attached. No locks are used: the
// two sides write disjoint regions and publish progress through the cursors,
// data first, cursor second.
type RingBuffer struct {
	buf atomic.Pointer[[]byte]
	rd  atomic.Uint32 // read cursor, consumer-owned
	wr  atomic.Uint32 // write cursor, producer-owned
}

// Attach binds storage (len > 0) as the backing array and resets both
// cursors. The buffer is "available" until Detach.
func (rb *RingBuffer) Attach(storage []byte) {
	rb.rd.Store(0)
	rb.wr.Store(0)
	rb.buf.Store(&storage)
}

// Detach unbinds the backing array. Idempotent. The caller must hold
// exclusive possession of both sides: no outstanding PushSlice/PopSlice
// borrows and no bridge pass in flight.
func (rb *RingBuffer) Detach() {
	rb.buf.Store(nil)
	rb.rd.Store(0)
	rb.wr.Store(0)
}

// Available reports whether storage is attached.
func (rb *RingBuffer) Available() bool { return rb.buf.Load() != nil }

// Cap returns the capacity in bytes, 0 while detached.
func (rb *RingBuffer) Cap() int {
	if b := rb.buf.Load(); b != nil {
		return len(*b)
	}
	return 0
}

// used returns the byte count currently queued, in [0, n].
func (rb *RingBuffer) used(n uint32) uint32 {
	return (rb.wr.Load() + 2*n - rb.rd.Load()) % (2 * n)
}

// Used returns how many bytes are queued. Advisory unless called by the
// currently-exclusive producer or consumer for its own bookkeeping.
func (rb *RingBuffer) Used() int {
	b := rb.buf.Load()
	if b == nil {
		return 0
	}
	return int(rb.used(uint32(len(*b))))
}

// Free returns the remaining space in bytes.
func (rb *RingBuffer) Free() int {
	b := rb.buf.Load()
	if b == nil {
		return 0
	}
	n := uint32(len(*b))
	return int(n - rb.used(n))
}

// IsEmpty reports whether no bytes are queued (true while detached).
func (rb *RingBuffer) IsEmpty() bool { return rb.Used() == 0 }

// IsFull reports whether no space remains (false while detached).
func (rb *RingBuffer) IsFull() bool {
	b := rb.buf.Load()
	if b == nil {
		return false
	}
	n := uint32(len(*b))
	return rb.used(n) == n
}

// Clear resets both cursors, discarding queued bytes. Producer and consumer
// must both be quiescent.
func (rb *RingBuffer) Clear() {
	rb.rd.Store(0)
	rb.wr.Store(0)
}

// PushSlice returns the largest contiguous writable region, or nil when the
// buffer is full or detached. The producer fills a prefix of it and
// publishes the count with PushDone.
func (rb *RingBuffer) PushSlice() []byte {
	b := rb.buf.Load()
	if b == nil {
		return nil
	}
	n := uint32(len(*b))
	free := n - rb.used(n)
	if free == 0 {
		return nil
	}
	p := rb.wr.Load() % n
	c := n - p
	if c > free {
		c = free
	}
	return (*b)[p : p+c]
}

// PushDone advances the write cursor by amount bytes written into the slice
// returned by PushSlice.
func (rb *RingBuffer) PushDone(amount int) {
	b := rb.buf.Load()
	if b == nil || amount <= 0 {
		return
	}
	n := uint32(len(*b))
	rb.wr.Store((rb.wr.Load() + uint32(amount)) % (2 * n))
}

// Push hands the largest contiguous writable slice to writer and advances
// by the count it returns. Returns 0 when nothing fits (the "buffer full"
// signal); never blocks, never errors.
func (rb *RingBuffer) Push(writer func(dst []byte) int) int {
	dst := rb.PushSlice()
	if len(dst) == 0 {
		return 0
	}
	n := writer(dst)
	rb.PushDone(n)
	return n
}

// PopSlice returns the largest contiguous readable region without copying,
// or nil when the buffer is empty or detached. The consumer releases what
// it actually used with PopDone.
func (rb *RingBuffer) PopSlice() []byte {
	b := rb.buf.Load()
	if b == nil {
		return nil
	}
	n := uint32(len(*b))
	avail := rb.used(n)
	if avail == 0 {
		return nil
	}
	p := rb.rd.Load() % n
	c := n - p
	if c > avail {
		c = avail
	}
	return (*b)[p : p+c]
}

// PopDone advances the read cursor by amount bytes consumed from the slice
// returned by PopSlice.
func (rb *RingBuffer) PopDone(amount int) {
	b := rb.buf.Load()
	if b == nil || amount <= 0 {
		return
	}
	n := uint32(len(*b))
	rb.rd.Store((rb.rd.Load() + uint32(amount)) % (2 * n))
}

// Pop hands the largest contiguous readable slice to reader and advances by
// the count it returns. Returns 0 when the buffer is empty.
func (rb *RingBuffer) Pop(reader func(src []byte) int) int {
	src := rb.PopSlice()
	if len(src) == 0 {
		return 0
	}
	n := reader(src)
	rb.PopDone(n)
	return n
}

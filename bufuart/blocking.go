// bufuart/blocking.go

package bufuart

import "time"

// Blocking variants for call sites without a context, such as init code or
// loops ported from polled drivers. They spin politely, yielding the
// processor between probes, and never give up.

// BlockingRead waits until data or a latched fault is available, then
// behaves like Read.
func (r *Rx) BlockingRead(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if n, ok, err := rxAttempt(r.inst, p); ok {
			return n, err
		}
		time.Sleep(0)
	}
}

// BlockingWrite queues all of p, spinning whenever the TX ring is full.
func (t *Tx) BlockingWrite(p []byte) int {
	written := 0
	for written < len(p) {
		n := txAttempt(t.inst, p[written:])
		written += n
		if n == 0 {
			time.Sleep(0)
		}
	}
	return written
}

// BlockingFlush spins until the TX ring is empty.
func (t *Tx) BlockingFlush() {
	for !t.inst.state.txBuf.IsEmpty() {
		time.Sleep(0)
	}
}

func (p *Port) BlockingRead(b []byte) (int, error) { return p.rx.BlockingRead(b) }
func (p *Port) BlockingWrite(b []byte) int         { return p.tx.BlockingWrite(b) }
func (p *Port) BlockingFlush()                     { p.tx.BlockingFlush() }

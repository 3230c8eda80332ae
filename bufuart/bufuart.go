// Package bufuart is a buffered, interrupt-driven serial transport. Bytes
// move between caller-supplied software rings and the hardware FIFOs inside
// an interrupt bridge, so short bursts complete without the caller waiting
// on the wire and received data survives until the application gets around
// to reading it.
//
// A driver is built over an Instance, which supplies the register view and
// interrupt line of one physical UART. Construction attaches ring storage,
// arms the receive path and installs the bridge; from then on the handles
// (Rx, Tx, or a combined Port) expose context-aware and blocking read/write
// APIs that only ever touch the software rings.
package bufuart

import (
	"context"
)

// Parity selects the parity mode of the serial frame.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// FlowControl selects hardware flow control.
type FlowControl uint8

const (
	FlowNone FlowControl = iota
	FlowRTSCTS
)

// Config carries the line parameters handed to the Instance's Setup
// collaborator. Zero values select 115200 8N1 with no flow control.
type Config struct {
	BaudRate uint32
	DataBits uint8
	StopBits uint8
	Parity   Parity
	Flow     FlowControl
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = 115200
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	return c
}

// Rx is the receive handle of one UART instance. At most one Rx may exist
// per instance at a time; its methods must not be called concurrently with
// each other.
type Rx struct {
	inst   *Instance
	wake   chan struct{}
	closed bool
}

// Tx is the transmit handle of one UART instance. At most one Tx may exist
// per instance at a time; its methods must not be called concurrently with
// each other.
type Tx struct {
	inst   *Instance
	wake   chan struct{}
	closed bool
}

// New configures the peripheral and attaches rxStorage and txStorage as the
// software rings, returning the combined handle. Both storages must be
// non-empty. On a Setup error nothing is attached and the error is returned
// wrapped.
func New(inst *Instance, cfg Config, rxStorage, txStorage []byte) (*Port, error) {
	if len(rxStorage) == 0 || len(txStorage) == 0 {
		return nil, ErrNoStorage
	}
	if err := inst.setup(cfg); err != nil {
		return nil, err
	}
	inst.attachBuffers(rxStorage, txStorage)
	return &Port{
		tx: &Tx{inst: inst, wake: make(chan struct{}, 1)},
		rx: &Rx{inst: inst, wake: make(chan struct{}, 1)},
	}, nil
}

// NewRx configures the peripheral receive-only: only the RX ring is
// attached and the transmit path stays unbuffered.
func NewRx(inst *Instance, cfg Config, rxStorage []byte) (*Rx, error) {
	if len(rxStorage) == 0 {
		return nil, ErrNoStorage
	}
	if err := inst.setup(cfg); err != nil {
		return nil, err
	}
	inst.attachBuffers(rxStorage, nil)
	return &Rx{inst: inst, wake: make(chan struct{}, 1)}, nil
}

// NewTx configures the peripheral transmit-only.
func NewTx(inst *Instance, cfg Config, txStorage []byte) (*Tx, error) {
	if len(txStorage) == 0 {
		return nil, ErrNoStorage
	}
	if err := inst.setup(cfg); err != nil {
		return nil, err
	}
	inst.attachBuffers(nil, txStorage)
	return &Tx{inst: inst, wake: make(chan struct{}, 1)}, nil
}

func (u *Instance) setup(cfg Config) error {
	if u.Setup == nil {
		return nil
	}
	if err := u.Setup(cfg.withDefaults()); err != nil {
		return configError(err)
	}
	return nil
}

// attachBuffers binds the ring storage, arms the interrupt sources and
// installs the bridge. Order matters: the rings must be attached before the
// first interrupt can fire.
func (u *Instance) attachBuffers(rxStorage, txStorage []byte) {
	if rxStorage != nil {
		u.state.rxBuf.Attach(rxStorage)
	}
	if txStorage != nil {
		u.state.txBuf.Attach(txStorage)
	}

	regs := u.Regs
	regs.INTENSET.Set(faultEnables)
	regs.FIFOTRIG.Set(FifoTrigTxLvlEna | FifoTrigRxLvlEna)
	enables := uint32(0)
	if rxStorage != nil {
		enables |= FifoIntRxLvl
	}
	if txStorage != nil {
		enables |= FifoIntTxLvl
	}
	regs.FIFOINTENSET.Set(enables)

	u.IRQ.SetHandler(u.handleInterrupt)
	u.IRQ.Unpend()
	u.IRQ.Enable()
}

// rxAttempt takes at most one pass at the RX ring. ok is false when neither
// data nor a latched fault was found; n and err follow the io.Reader
// convention otherwise (n > 0 with err == nil, or n == 0 with the fault).
// Any attempt re-arms the RX-level source so a bridge pass masked on
// ring-full or fault resumes intake.
func rxAttempt(inst *Instance, p []byte) (n int, ok bool, err error) {
	s := &inst.state
	n = s.rxBuf.Pop(func(src []byte) int {
		return copy(p, src)
	})
	if n == 0 {
		if bits := s.takeRxError(); bits != 0 {
			err = selectRxError(bits)
			ok = true
		}
	} else {
		ok = true
	}
	inst.Regs.FIFOINTENSET.Set(FifoIntRxLvl)
	return n, ok, err
}

// Read copies up to len(p) buffered bytes into p, waiting for the bridge
// when the ring is empty. A latched transport fault is delivered as an
// error with n == 0, after all bytes received before the fault and before
// all bytes received after it. A zero-length p returns immediately.
func (r *Rx) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s := &r.inst.state
	for {
		s.rxWaker.Register(r.wake)
		if n, ok, err := rxAttempt(r.inst, p); ok {
			return n, err
		}
		select {
		case <-r.wake:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Fill waits until the RX ring holds at least one byte or a fault is
// latched, then returns the largest contiguous readable region without
// copying. A fault with no preceding buffered data is returned as an error
// with a nil slice. The region stays valid until the next Consume or Read.
func (r *Rx) Fill(ctx context.Context) ([]byte, error) {
	s := &r.inst.state
	for {
		s.rxWaker.Register(r.wake)
		if src := s.rxBuf.PopSlice(); len(src) > 0 {
			return src, nil
		}
		if bits := s.takeRxError(); bits != 0 {
			r.inst.Regs.FIFOINTENSET.Set(FifoIntRxLvl)
			return nil, selectRxError(bits)
		}
		select {
		case <-r.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Consume releases amount bytes of the region last returned by Fill and
// re-arms the RX-level source, resuming intake if the bridge had masked it
// on ring-full.
func (r *Rx) Consume(amount int) {
	r.inst.state.rxBuf.PopDone(amount)
	r.inst.Regs.FIFOINTENSET.Set(FifoIntRxLvl)
}

// ReadReady reports whether an immediate Read would return at least one
// byte. A latched fault alone does not count as readiness; it surfaces on
// the next Read that finds no data.
func (r *Rx) ReadReady() bool {
	return !r.inst.state.rxBuf.IsEmpty()
}

// txAttempt queues up to len(p) bytes into the TX ring, returning how many
// fit. Writing into an empty ring while the transmitter sits idle pends the
// interrupt by hand: with nothing in flight no hardware edge is coming to
// start the drain.
func txAttempt(inst *Instance, p []byte) int {
	s := &inst.state
	wasEmpty := s.txBuf.IsEmpty()
	n := 0
	for n < len(p) {
		c := s.txBuf.Push(func(dst []byte) int {
			return copy(dst, p[n:])
		})
		if c == 0 {
			break
		}
		n += c
	}
	if n > 0 && wasEmpty && inst.txIdle() {
		inst.IRQ.Pend()
	}
	return n
}

// txIdle reports whether the transmit path is fully drained: hardware FIFO
// empty and the shifter idle.
func (u *Instance) txIdle() bool {
	return u.Regs.FIFOSTAT.Get()&FifoStatTxEmpty != 0 &&
		u.Regs.STAT.Get()&StatTxIdle != 0
}

// Write queues all of p into the TX ring, waiting for bridge drains
// whenever the ring is full. On context cancellation it reports how many
// bytes were queued; those remain in flight.
func (t *Tx) Write(ctx context.Context, p []byte) (int, error) {
	s := &t.inst.state
	written := 0
	for written < len(p) {
		s.txWaker.Register(t.wake)
		n := txAttempt(t.inst, p[written:])
		written += n
		if written == len(p) {
			break
		}
		if n > 0 {
			continue
		}
		select {
		case <-t.wake:
		case <-ctx.Done():
			return written, ctx.Err()
		}
	}
	return written, nil
}

// Flush waits until every queued byte has left the TX ring. Bytes already
// handed to the hardware FIFO drain autonomously; see Busy for whether the
// transmitter is still shifting.
func (t *Tx) Flush(ctx context.Context) error {
	s := &t.inst.state
	for {
		s.txWaker.Register(t.wake)
		if s.txBuf.IsEmpty() {
			return nil
		}
		select {
		case <-t.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Busy reports whether transmit work is still in flight, in the ring or in
// the hardware.
func (t *Tx) Busy() bool {
	return !t.inst.state.txBuf.IsEmpty() || !t.inst.txIdle()
}

// Close detaches the RX ring. The interrupt line is suppressed for the
// detach itself so no bridge pass can land mid-unbind, then restored while
// the other direction is still live; once both directions are closed it
// stays disabled. Idempotent. The two directions' Close calls must not race
// each other: the check of the other side is not atomic with the detach.
func (r *Rx) Close() {
	if r.closed {
		return
	}
	r.closed = true
	s := &r.inst.state
	r.inst.IRQ.Disable()
	s.rxBuf.Detach()
	if s.txBuf.Available() {
		r.inst.IRQ.Enable()
	}
}

// Close detaches the TX ring, abandoning any bytes still queued in it.
// Interrupt handling and the no-racing-Close constraint mirror Rx.Close.
// Idempotent.
func (t *Tx) Close() {
	if t.closed {
		return
	}
	t.closed = true
	s := &t.inst.state
	t.inst.IRQ.Disable()
	s.txBuf.Detach()
	if s.rxBuf.Available() {
		t.inst.IRQ.Enable()
	}
}

// Port combines the Rx and Tx handles of one instance.
type Port struct {
	tx *Tx
	rx *Rx
}

// Join reassembles a Port from handles previously obtained via Split. Both
// must belong to the same instance.
func Join(tx *Tx, rx *Rx) *Port { return &Port{tx: tx, rx: rx} }

// Split takes the Port apart so the two directions can be owned by
// different goroutines. The Port must not be used afterwards.
func (p *Port) Split() (*Tx, *Rx) { return p.tx, p.rx }

func (p *Port) Read(ctx context.Context, b []byte) (int, error) { return p.rx.Read(ctx, b) }
func (p *Port) Fill(ctx context.Context) ([]byte, error)        { return p.rx.Fill(ctx) }
func (p *Port) Consume(amount int)                              { p.rx.Consume(amount) }
func (p *Port) ReadReady() bool                                 { return p.rx.ReadReady() }

func (p *Port) Write(ctx context.Context, b []byte) (int, error) { return p.tx.Write(ctx, b) }
func (p *Port) Flush(ctx context.Context) error                  { return p.tx.Flush(ctx) }
func (p *Port) Busy() bool                                       { return p.tx.Busy() }

// Stats returns the activity counters of the underlying instance.
func (p *Port) Stats() Stats { return p.tx.inst.Stats() }

// ResetStats zeroes the activity counters of the underlying instance.
func (p *Port) ResetStats() { p.tx.inst.ResetStats() }

// Close closes both directions.
func (p *Port) Close() {
	p.tx.Close()
	p.rx.Close()
}

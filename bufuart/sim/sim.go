// Package sim provides an in-memory FLEXCOMM-style UART peripheral for
// exercising the bufuart driver without hardware. It models the register
// file bit-for-bit as the driver sees it: computed FIFO occupancy flags, a
// level-triggered RX source that re-asserts while data is waiting, an
// edge-latched TX source raised when the wire side drains the TX FIFO, and
// per-byte fault status surfaced while the faulted byte sits at the head of
// the RX FIFO.
//
// The far end of the wire is driven through WireWrite, WireWriteFault and
// WireRead. Interrupt dispatch is synchronous: whenever an operation makes
// the line pending while it is enabled, the registered handler runs to
// completion on the calling goroutine before the operation returns, which
// keeps tests deterministic.
package sim

import (
	"errors"
	"sync"

	"github.com/eapache/queue"

	"github.com/jangala-dev/go-bufuart/bufuart"
)

// DefaultFIFODepth matches the hardware FIFO depth of the modelled block.
const DefaultFIFODepth = 16

// maxISRPasses bounds handler re-entry per dispatch so a source that never
// de-asserts turns into a stalled test instead of a livelock.
const maxISRPasses = 64

// entry is one byte in a hardware FIFO with its line status.
type entry struct {
	data  byte
	fault uint32
}

// Peripheral is one simulated UART instance.
type Peripheral struct {
	mu sync.Mutex

	depth  int
	rxFIFO *queue.Queue // entry, wire -> driver
	txFIFO *queue.Queue // entry, driver -> wire

	inten      uint32 // enabled line-status sources
	statFaults uint32 // sticky line-status bits, write-1-to-clear
	trig       uint32
	fifoInten  uint32
	fifoLatch  uint32 // latched FIFO flags, write-1-to-clear

	irqEnabled bool
	pended     bool
	handler    func()
	pends      int

	cfg      bufuart.Config
	setupErr error

	inst *bufuart.Instance

	// isr serializes handler execution: run-to-completion, no nesting.
	isr sync.Mutex
}

// reg adapts a get/set pair to the driver's register interface.
type reg struct {
	get func() uint32
	set func(v uint32)
}

func (r reg) Get() uint32  { return r.get() }
func (r reg) Set(v uint32) { r.set(v) }

// New builds a peripheral with the given FIFO depth (DefaultFIFODepth when
// depth <= 0) and the driver Instance wired to it.
func New(depth int) *Peripheral {
	if depth <= 0 {
		depth = DefaultFIFODepth
	}
	p := &Peripheral{
		depth:  depth,
		rxFIFO: queue.New(),
		txFIFO: queue.New(),
	}
	p.inst = &bufuart.Instance{
		Regs: &bufuart.Regs{
			STAT:     reg{p.readSTAT, p.writeSTAT},
			INTSTAT:  reg{p.readINTSTAT, func(uint32) {}},
			INTENSET: reg{p.readINTEN, p.writeINTENSET},
			INTENCLR: reg{p.readINTEN, p.writeINTENCLR},

			FIFOSTAT:     reg{p.readFIFOSTAT, func(uint32) {}},
			FIFOTRIG:     reg{p.readFIFOTRIG, p.writeFIFOTRIG},
			FIFOINTSTAT:  reg{p.readFIFOINTSTAT, p.writeFIFOINTSTAT},
			FIFOINTENSET: reg{p.readFIFOINTEN, p.writeFIFOINTENSET},
			FIFOINTENCLR: reg{p.readFIFOINTEN, p.writeFIFOINTENCLR},
			FIFORD:       reg{p.readFIFORD, func(uint32) {}},
			FIFOWR:       reg{func() uint32 { return 0 }, p.writeFIFOWR},
		},
		IRQ:   (*irqLine)(p),
		Setup: p.setup,
	}
	return p
}

// Instance returns the driver-facing view of the peripheral.
func (p *Peripheral) Instance() *bufuart.Instance { return p.inst }

func (p *Peripheral) setup(cfg bufuart.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setupErr != nil {
		return p.setupErr
	}
	if cfg.DataBits < 7 || cfg.DataBits > 9 {
		return errors.New("sim: unsupported data bits")
	}
	if cfg.StopBits < 1 || cfg.StopBits > 2 {
		return errors.New("sim: unsupported stop bits")
	}
	p.cfg = cfg
	return nil
}

// FailSetup makes the next construction attempt fail with err.
func (p *Peripheral) FailSetup(err error) {
	p.mu.Lock()
	p.setupErr = err
	p.mu.Unlock()
}

// Config returns the line parameters accepted by the last setup.
func (p *Peripheral) Config() bufuart.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Register semantics. All readers and writers take p.mu; none dispatch
// except the ones that can unmask a pending source (enable-set writers),
// which the bridge itself never touches, so dispatch cannot re-enter the
// handler from inside the handler.

func (p *Peripheral) readSTAT() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statLocked()
}

func (p *Peripheral) statLocked() uint32 {
	v := p.statFaults
	if p.txFIFO.Length() == 0 {
		v |= bufuart.StatTxIdle
	}
	if p.rxFIFO.Length() > 0 {
		v |= p.rxFIFO.Peek().(entry).fault
	}
	return v
}

func (p *Peripheral) writeSTAT(v uint32) {
	p.mu.Lock()
	p.statFaults &^= v
	p.mu.Unlock()
}

func (p *Peripheral) readINTSTAT() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statLocked() & p.inten
}

func (p *Peripheral) readINTEN() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inten
}

func (p *Peripheral) writeINTENSET(v uint32) {
	p.mu.Lock()
	p.inten |= v
	p.mu.Unlock()
	p.maybeDispatch()
}

func (p *Peripheral) writeINTENCLR(v uint32) {
	p.mu.Lock()
	p.inten &^= v
	p.mu.Unlock()
}

func (p *Peripheral) readFIFOSTAT() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := uint32(0)
	if p.txFIFO.Length() == 0 {
		v |= bufuart.FifoStatTxEmpty
	}
	if p.txFIFO.Length() < p.depth {
		v |= bufuart.FifoStatTxNotFull
	}
	if p.rxFIFO.Length() > 0 {
		v |= bufuart.FifoStatRxNotEmpty
	}
	if p.rxFIFO.Length() == p.depth {
		v |= bufuart.FifoStatRxFull
	}
	return v
}

func (p *Peripheral) readFIFOTRIG() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trig
}

func (p *Peripheral) writeFIFOTRIG(v uint32) {
	p.mu.Lock()
	p.trig = v
	p.mu.Unlock()
}

func (p *Peripheral) readFIFOINTSTAT() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fifoIntStatLocked()
}

// fifoIntStatLocked combines the latched flags with the level-computed RX
// source: RXLVL asserts for as long as data waits, so clearing it has no
// effect until the FIFO drains.
func (p *Peripheral) fifoIntStatLocked() uint32 {
	v := p.fifoLatch
	if p.rxFIFO.Length() > 0 && p.trig&bufuart.FifoTrigRxLvlEna != 0 {
		v |= bufuart.FifoIntRxLvl
	}
	return v
}

func (p *Peripheral) writeFIFOINTSTAT(v uint32) {
	p.mu.Lock()
	p.fifoLatch &^= v
	p.mu.Unlock()
}

func (p *Peripheral) readFIFOINTEN() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fifoInten
}

func (p *Peripheral) writeFIFOINTENSET(v uint32) {
	p.mu.Lock()
	p.fifoInten |= v
	p.mu.Unlock()
	p.maybeDispatch()
}

func (p *Peripheral) writeFIFOINTENCLR(v uint32) {
	p.mu.Lock()
	p.fifoInten &^= v
	p.mu.Unlock()
}

func (p *Peripheral) readFIFORD() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rxFIFO.Length() == 0 {
		return 0
	}
	e := p.rxFIFO.Remove().(entry)
	return uint32(e.data) | e.fault
}

func (p *Peripheral) writeFIFOWR(v uint32) {
	p.mu.Lock()
	if p.txFIFO.Length() < p.depth {
		p.txFIFO.Add(entry{data: byte(v & bufuart.FifoRdDataMask)})
	}
	p.mu.Unlock()
}

// irqLine implements the interrupt-controller capability over the
// peripheral's state.
type irqLine Peripheral

func (l *irqLine) Enable() {
	p := (*Peripheral)(l)
	p.mu.Lock()
	p.irqEnabled = true
	p.mu.Unlock()
	p.maybeDispatch()
}

func (l *irqLine) Disable() {
	p := (*Peripheral)(l)
	p.mu.Lock()
	p.irqEnabled = false
	p.mu.Unlock()
}

func (l *irqLine) Pend() {
	p := (*Peripheral)(l)
	p.mu.Lock()
	p.pended = true
	p.pends++
	p.mu.Unlock()
	p.maybeDispatch()
}

func (l *irqLine) Unpend() {
	p := (*Peripheral)(l)
	p.mu.Lock()
	p.pended = false
	p.mu.Unlock()
}

func (l *irqLine) SetHandler(fn func()) {
	p := (*Peripheral)(l)
	p.mu.Lock()
	p.handler = fn
	p.mu.Unlock()
}

// pendingLocked reports whether any enabled source asserts the line.
func (p *Peripheral) pendingLocked() bool {
	if p.statLocked()&p.inten != 0 {
		return true
	}
	return p.fifoIntStatLocked()&p.fifoInten != 0
}

// maybeDispatch runs the handler while the line is enabled and pending,
// re-evaluating after each run-to-completion pass since a handler can leave
// a level source asserted.
func (p *Peripheral) maybeDispatch() {
	p.isr.Lock()
	defer p.isr.Unlock()
	for pass := 0; pass < maxISRPasses; pass++ {
		p.mu.Lock()
		fire := p.irqEnabled && p.handler != nil && (p.pended || p.pendingLocked())
		h := p.handler
		if fire {
			p.pended = false
		}
		p.mu.Unlock()
		if !fire {
			return
		}
		h()
	}
}

// WireWrite delivers data from the far end into the RX FIFO, returning how
// many bytes fit before the FIFO overflowed. Overflowed bytes are lost.
func (p *Peripheral) WireWrite(data []byte) int {
	p.mu.Lock()
	n := 0
	for _, b := range data {
		if p.rxFIFO.Length() == p.depth {
			break
		}
		p.rxFIFO.Add(entry{data: b})
		n++
	}
	p.mu.Unlock()
	p.maybeDispatch()
	return n
}

// WireWriteFault delivers one byte carrying line-status fault bits (Stat*
// positions). A break additionally raises the sticky break-delta flag.
func (p *Peripheral) WireWriteFault(b byte, fault uint32) bool {
	p.mu.Lock()
	ok := p.rxFIFO.Length() < p.depth
	if ok {
		p.rxFIFO.Add(entry{data: b, fault: fault})
		if fault&bufuart.StatRxBreak != 0 {
			p.statFaults |= bufuart.StatDeltaRxBrk
		}
	}
	p.mu.Unlock()
	p.maybeDispatch()
	return ok
}

// WireRead drains up to max bytes from the TX FIFO, as the far end sees
// them. Draining the FIFO to empty raises the edge-latched TX-level flag.
func (p *Peripheral) WireRead(max int) []byte {
	p.mu.Lock()
	out := make([]byte, 0, max)
	for len(out) < max && p.txFIFO.Length() > 0 {
		out = append(out, p.txFIFO.Remove().(entry).data)
	}
	if len(out) > 0 && p.txFIFO.Length() == 0 && p.trig&bufuart.FifoTrigTxLvlEna != 0 {
		p.fifoLatch |= bufuart.FifoIntTxLvl
	}
	p.mu.Unlock()
	p.maybeDispatch()
	return out
}

// Test inspection accessors.

func (p *Peripheral) IRQEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.irqEnabled
}

// RxLevelArmed reports whether the RX-level source is currently enabled.
func (p *Peripheral) RxLevelArmed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fifoInten&bufuart.FifoIntRxLvl != 0
}

// Pends returns how many times the driver pended the line by hand.
func (p *Peripheral) Pends() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pends
}

func (p *Peripheral) RxFIFOLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rxFIFO.Length()
}

func (p *Peripheral) TxFIFOLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txFIFO.Length()
}

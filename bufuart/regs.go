// bufuart/regs.go

package bufuart

// Reg is one 32-bit register in the peripheral's register view. For plain
// registers Set overwrites the value; for SET/CLR-style enable registers and
// write-1-to-clear status registers, Set writes the mask of bits to act on.
type Reg interface {
	Get() uint32
	Set(v uint32)
}

// Regs is the named register file of one UART instance as this driver sees
// it. Bit layouts are given by the Stat* and Fifo* constants below.
type Regs struct {
	STAT     Reg // line status; fault bits are write-1-to-clear
	INTSTAT  Reg // pending enabled line-status sources (read-only)
	INTENSET Reg // write 1s to enable line-status sources; reads back enables
	INTENCLR Reg // write 1s to disable line-status sources

	FIFOSTAT     Reg // FIFO occupancy flags (read-only)
	FIFOTRIG     Reg // FIFO level-trigger configuration
	FIFOINTSTAT  Reg // latched FIFO interrupt flags; write-1-to-clear
	FIFOINTENSET Reg // write 1s to enable FIFO sources; reads back enables
	FIFOINTENCLR Reg // write 1s to disable FIFO sources
	FIFORD       Reg // RX data port; reading pops one byte plus its status
	FIFOWR       Reg // TX data port; writing pushes one byte
}

// STAT / INTSTAT / INTENSET / INTENCLR bits (shared layout).
const (
	StatTxIdle     = 1 << 3  // transmitter shifter idle
	StatRxBreak    = 1 << 10 // break condition on the pending byte
	StatDeltaRxBrk = 1 << 11 // break state transition
	StatFrameErr   = 1 << 13 // framing error on the pending byte
	StatParityErr  = 1 << 14 // parity error on the pending byte
	StatRxNoise    = 1 << 15 // noise detected on the pending byte
)

// rxFaultMask are the per-byte fault bits inspected during the RX drain.
const rxFaultMask = StatRxBreak | StatFrameErr | StatParityErr | StatRxNoise

// faultEnables is the baseline set of fault-notification sources armed at
// construction.
const faultEnables = StatDeltaRxBrk | StatFrameErr | StatParityErr | StatRxNoise

// ackSources are the sticky level-triggered sources whose enables are
// dropped at the top of every bridge pass to de-assert them.
const ackSources = StatTxIdle | faultEnables

// FIFOSTAT bits.
const (
	FifoStatTxErr      = 1 << 0
	FifoStatRxErr      = 1 << 1
	FifoStatTxEmpty    = 1 << 4
	FifoStatTxNotFull  = 1 << 5
	FifoStatRxNotEmpty = 1 << 6
	FifoStatRxFull     = 1 << 7
)

// FIFOINTSTAT / FIFOINTENSET / FIFOINTENCLR bits.
const (
	FifoIntTxErr = 1 << 0
	FifoIntRxErr = 1 << 1
	FifoIntTxLvl = 1 << 2
	FifoIntRxLvl = 1 << 3
)

// FIFOTRIG bits.
const (
	FifoTrigTxLvlEna = 1 << 0
	FifoTrigRxLvlEna = 1 << 1
)

// FifoRdDataMask extracts the data byte from a FIFORD read; the upper bits
// carry the per-byte fault status at the Stat* positions.
const FifoRdDataMask = 0xFF

// IRQLine is the interrupt-controller capability for the instance's
// interrupt line. The registered handler runs to completion and is never
// entered concurrently with itself.
type IRQLine interface {
	Enable()
	Disable()
	Pend()   // force the handler to run as if the hardware had fired
	Unpend() // drop any pending request
	SetHandler(fn func())
}

// Instance ties together one physical UART's register view, interrupt line
// and shared driver state. An Instance must outlive every handle built on
// it: the interrupt can fire until both directions have been closed.
type Instance struct {
	Regs *Regs
	IRQ  IRQLine

	// Setup performs pin muxing, clock enables and line configuration for
	// the peripheral. It runs before buffers are attached; an error aborts
	// construction. May be nil when the peripheral needs no setup.
	Setup func(Config) error

	state State
	stats stats
}

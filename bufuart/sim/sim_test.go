package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jangala-dev/go-bufuart/bufuart"
)

func TestWireWriteOverflowDrops(t *testing.T) {
	p := New(4)
	require.Equal(t, 4, p.WireWrite([]byte("abcdef")))
	require.Equal(t, 4, p.RxFIFOLen())
}

func TestFIFOStatusFlags(t *testing.T) {
	p := New(2)
	regs := p.Instance().Regs

	st := regs.FIFOSTAT.Get()
	require.NotZero(t, st&bufuart.FifoStatTxEmpty)
	require.NotZero(t, st&bufuart.FifoStatTxNotFull)
	require.Zero(t, st&bufuart.FifoStatRxNotEmpty)

	regs.FIFOWR.Set('a')
	regs.FIFOWR.Set('b')
	st = regs.FIFOSTAT.Get()
	require.Zero(t, st&bufuart.FifoStatTxEmpty)
	require.Zero(t, st&bufuart.FifoStatTxNotFull)

	// Writes beyond the depth are dropped.
	regs.FIFOWR.Set('c')
	require.Equal(t, 2, p.TxFIFOLen())

	p.WireWrite([]byte("xy"))
	st = regs.FIFOSTAT.Get()
	require.NotZero(t, st&bufuart.FifoStatRxNotEmpty)
	require.NotZero(t, st&bufuart.FifoStatRxFull)
}

func TestHeadFaultVisibleInSTAT(t *testing.T) {
	p := New(4)
	regs := p.Instance().Regs

	p.WireWrite([]byte("a"))
	require.Zero(t, regs.STAT.Get()&bufuart.StatFrameErr)

	p.WireWriteFault('b', bufuart.StatFrameErr)
	// The clean byte is still at the head.
	require.Zero(t, regs.STAT.Get()&bufuart.StatFrameErr)

	require.Equal(t, uint32('a'), regs.FIFORD.Get())
	require.NotZero(t, regs.STAT.Get()&bufuart.StatFrameErr)

	v := regs.FIFORD.Get()
	require.Equal(t, uint32('b'), v&bufuart.FifoRdDataMask)
	require.NotZero(t, v&bufuart.StatFrameErr)
	require.Zero(t, regs.STAT.Get()&bufuart.StatFrameErr)
}

func TestPendRunsHandlerWhenEnabled(t *testing.T) {
	p := New(4)
	irq := p.Instance().IRQ

	runs := 0
	irq.SetHandler(func() { runs++ })

	irq.Pend()
	require.Zero(t, runs, "disabled line must not dispatch")
	require.Equal(t, 1, p.Pends())

	irq.Enable()
	require.Equal(t, 1, runs, "pend must stick until the line is enabled")

	irq.Pend()
	require.Equal(t, 2, runs)
}

func TestTxLevelEdgeOnWireDrain(t *testing.T) {
	p := New(4)
	regs := p.Instance().Regs
	irq := p.Instance().IRQ

	runs := 0
	irq.SetHandler(func() {
		runs++
		regs.FIFOINTSTAT.Set(bufuart.FifoIntTxLvl)
	})
	regs.FIFOTRIG.Set(bufuart.FifoTrigTxLvlEna)
	regs.FIFOINTENSET.Set(bufuart.FifoIntTxLvl)
	irq.Enable()

	regs.FIFOWR.Set('a')
	require.Zero(t, runs, "filling the FIFO is not an edge")

	p.WireRead(4)
	require.Equal(t, 1, runs)

	// Empty drain: no edge.
	p.WireRead(4)
	require.Equal(t, 1, runs)
}

// The RX source is level-triggered: a handler that leaves data in the FIFO
// is re-entered until the FIFO is empty or the source is masked.
func TestRxLevelRetriggers(t *testing.T) {
	p := New(8)
	regs := p.Instance().Regs
	irq := p.Instance().IRQ

	runs := 0
	irq.SetHandler(func() {
		runs++
		regs.FIFORD.Get() // one byte per pass
	})
	regs.FIFOTRIG.Set(bufuart.FifoTrigRxLvlEna)
	regs.FIFOINTENSET.Set(bufuart.FifoIntRxLvl)
	irq.Enable()

	p.WireWrite([]byte("abc"))
	require.Equal(t, 3, runs)
	require.Equal(t, 0, p.RxFIFOLen())
}

func TestRxLevelMaskStopsDispatch(t *testing.T) {
	p := New(8)
	regs := p.Instance().Regs
	irq := p.Instance().IRQ

	runs := 0
	irq.SetHandler(func() {
		runs++
		regs.FIFOINTENCLR.Set(bufuart.FifoIntRxLvl)
	})
	regs.FIFOTRIG.Set(bufuart.FifoTrigRxLvlEna)
	regs.FIFOINTENSET.Set(bufuart.FifoIntRxLvl)
	irq.Enable()

	p.WireWrite([]byte("abc"))
	require.Equal(t, 1, runs)
	require.Equal(t, 3, p.RxFIFOLen())

	// Re-arming retriggers the still-asserted level source.
	regs.FIFOINTENSET.Set(bufuart.FifoIntRxLvl)
	require.Equal(t, 2, runs)
}

func TestSetupValidation(t *testing.T) {
	p := New(4)
	require.Error(t, p.Instance().Setup(bufuart.Config{DataBits: 6, StopBits: 1}))
	require.Error(t, p.Instance().Setup(bufuart.Config{DataBits: 8, StopBits: 3}))
	require.NoError(t, p.Instance().Setup(bufuart.Config{BaudRate: 9600, DataBits: 8, StopBits: 1}))
	require.Equal(t, uint32(9600), p.Config().BaudRate)
}

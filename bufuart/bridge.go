// bufuart/bridge.go

package bufuart

import "github.com/golang/glog"

// handleInterrupt is the interrupt bridge for one UART instance. It runs to
// completion on the instance's interrupt line and is never entered
// concurrently with itself; within it the bridge is the sole producer of
// the RX ring and the sole consumer of the TX ring.
//
// Pass structure: acknowledge the sticky level-triggered sources first, log
// fault diagnostics, then drain hardware RX into the RX ring and the TX
// ring into hardware TX. Waking a handle that registered no waiter is a
// harmless no-op.
func (u *Instance) handleInterrupt() {
	u.stats.bridgeRuns.Add(1)

	regs := u.Regs
	s := &u.state

	// The line-status sources (TX idle, fault flags) stay asserted for as
	// long as their STAT bits do, so dropping their enables is the only way
	// to de-assert the line without consuming the condition. Interested
	// parties re-arm them afterwards.
	if pending := regs.INTSTAT.Get(); pending&ackSources != 0 {
		regs.INTENCLR.Set(ackSources)
	}

	// Latched FIFO flags are write-1-to-clear; clear them up front so a
	// condition that recurs during this pass re-pends the line.
	fifoPending := regs.FIFOINTSTAT.Get()
	if ack := fifoPending & (FifoIntTxErr | FifoIntRxErr | FifoIntTxLvl | FifoIntRxLvl); ack != 0 {
		regs.FIFOINTSTAT.Set(ack)
	}

	if faults := regs.STAT.Get() & rxFaultMask; faults != 0 {
		if faults&StatRxNoise != 0 {
			glog.Warning("bufuart: noise error on RX line")
		}
		if faults&StatParityErr != 0 {
			glog.Warning("bufuart: parity error on RX line")
		}
		if faults&StatFrameErr != 0 {
			glog.Warning("bufuart: framing error on RX line")
		}
		if faults&StatRxBreak != 0 {
			glog.Warning("bufuart: break condition on RX line")
		}
	}

	if s.rxBuf.Available() {
		u.drainRx()
	}
	if s.txBuf.Available() {
		u.drainTx()
	}
}

// drainRx moves bytes from the hardware RX FIFO into the RX ring, stopping
// at ring-full or at the first byte carrying a fault. While a latched fault
// has not been consumed no further bytes enter the ring, so the consumer
// observes the fault in arrival order relative to the bytes around it. The
// faulted byte itself is dropped and its sticky flags cleared so the
// stream can move past it.
func (u *Instance) drainRx() {
	regs := u.Regs
	s := &u.state

	fault := s.rxErrorPending()
	read := 0

	if !fault {
		dst := s.rxBuf.PushSlice()
		for read < len(dst) && regs.FIFOSTAT.Get()&FifoStatRxNotEmpty != 0 {
			if faults := regs.STAT.Get() & rxFaultMask; faults != 0 {
				s.latchRxError(faults)
				u.stats.countFaults(faults)
				_ = regs.FIFORD.Get()
				regs.STAT.Set(faults)
				fault = true
				break
			}
			dst[read] = byte(regs.FIFORD.Get() & FifoRdDataMask)
			read++
		}
		if read > 0 {
			s.rxBuf.PushDone(read)
			u.stats.noteRxDrain(read)
		}
	}

	if read > 0 || fault {
		s.rxWaker.Wake()
	}

	// With the ring full, or a fault blocking intake, further RX-level
	// interrupts would only spin. The consumer re-arms on the next read or
	// consume; the level source then retriggers if data is still waiting.
	if s.rxBuf.IsFull() || fault {
		regs.FIFOINTENCLR.Set(FifoIntRxLvl)
	}
}

// drainTx moves bytes from the TX ring into the hardware TX FIFO until one
// of them runs out. The TX-level source is edge-like on this block, so no
// masking is needed when the ring empties.
func (u *Instance) drainTx() {
	regs := u.Regs
	s := &u.state

	wrote := 0
	for {
		src := s.txBuf.PopSlice()
		if len(src) == 0 {
			break
		}
		n := 0
		for n < len(src) && regs.FIFOSTAT.Get()&FifoStatTxNotFull != 0 {
			regs.FIFOWR.Set(uint32(src[n]))
			n++
		}
		if n == 0 {
			break
		}
		s.txBuf.PopDone(n)
		wrote += n
	}
	if wrote > 0 {
		u.stats.noteTxDrain(wrote)
		s.txWaker.Wake()
	}
}

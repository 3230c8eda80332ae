// bufuart/stats.go

package bufuart

import "sync/atomic"

// Stats is a snapshot of driver activity counters since the last reset.
type Stats struct {
	BridgeRuns uint32 // interrupt bridge invocations
	RxBytes    uint32 // bytes moved hardware FIFO -> RX ring
	TxBytes    uint32 // bytes moved TX ring -> hardware FIFO
	RxMaxDrain uint32 // largest single-pass RX drain

	FaultNoise   uint32
	FaultParity  uint32
	FaultFraming uint32
	FaultBreak   uint32
}

type stats struct {
	bridgeRuns atomic.Uint32
	rxBytes    atomic.Uint32
	txBytes    atomic.Uint32
	rxMaxDrain atomic.Uint32

	faultNoise   atomic.Uint32
	faultParity  atomic.Uint32
	faultFraming atomic.Uint32
	faultBreak   atomic.Uint32
}

func (st *stats) noteRxDrain(n int) {
	if n <= 0 {
		return
	}
	st.rxBytes.Add(uint32(n))
	for {
		max := st.rxMaxDrain.Load()
		if uint32(n) <= max {
			break
		}
		if st.rxMaxDrain.CompareAndSwap(max, uint32(n)) {
			break
		}
	}
}

func (st *stats) noteTxDrain(n int) {
	if n > 0 {
		st.txBytes.Add(uint32(n))
	}
}

func (st *stats) countFaults(bits uint32) {
	if bits&StatRxNoise != 0 {
		st.faultNoise.Add(1)
	}
	if bits&StatParityErr != 0 {
		st.faultParity.Add(1)
	}
	if bits&StatFrameErr != 0 {
		st.faultFraming.Add(1)
	}
	if bits&StatRxBreak != 0 {
		st.faultBreak.Add(1)
	}
}

// Stats returns a copy of the activity counters.
func (u *Instance) Stats() Stats {
	st := &u.stats
	return Stats{
		BridgeRuns: st.bridgeRuns.Load(),
		RxBytes:    st.rxBytes.Load(),
		TxBytes:    st.txBytes.Load(),
		RxMaxDrain: st.rxMaxDrain.Load(),

		FaultNoise:   st.faultNoise.Load(),
		FaultParity:  st.faultParity.Load(),
		FaultFraming: st.faultFraming.Load(),
		FaultBreak:   st.faultBreak.Load(),
	}
}

// ResetStats zeroes the activity counters.
func (u *Instance) ResetStats() {
	st := &u.stats
	st.bridgeRuns.Store(0)
	st.rxBytes.Store(0)
	st.txBytes.Store(0)
	st.rxMaxDrain.Store(0)
	st.faultNoise.Store(0)
	st.faultParity.Store(0)
	st.faultFraming.Store(0)
	st.faultBreak.Store(0)
}

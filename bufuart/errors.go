// bufuart/errors.go

package bufuart

import (
	"errors"
	"fmt"
)

// Transport faults, latched by the interrupt bridge and surfaced on the
// next read that finds no buffered data. Non-fatal: the latch is cleared on
// delivery and the byte pipe resumes.
var (
	ErrNoise   = errors.New("bufuart: noise on RX line")
	ErrParity  = errors.New("bufuart: parity error")
	ErrFraming = errors.New("bufuart: framing error")
	ErrBreak   = errors.New("bufuart: break condition")
)

// ErrNoStorage is returned when a handle is constructed with zero-length
// ring storage.
var ErrNoStorage = errors.New("bufuart: ring storage must not be empty")

// selectRxError maps latched fault bits to the single fault reported to the
// consumer. When several bits are set at once the priority is fixed: noise,
// then parity, then framing, then break.
func selectRxError(bits uint32) error {
	switch {
	case bits&StatRxNoise != 0:
		return ErrNoise
	case bits&StatParityErr != 0:
		return ErrParity
	case bits&StatFrameErr != 0:
		return ErrFraming
	case bits&StatRxBreak != 0:
		return ErrBreak
	}
	return nil
}

// configError wraps a setup-collaborator rejection. Fatal to construction;
// no driver state has been touched when it is returned.
func configError(err error) error {
	return fmt.Errorf("bufuart: peripheral setup rejected: %w", err)
}

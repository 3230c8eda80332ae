// portbridge attaches the buffered driver to a real host serial device.
// The simulated peripheral stands in for the memory-mapped register file:
// two pump goroutines shuttle bytes between its wire-side FIFOs and the
// operating-system port, so the interrupt bridge, software rings and fault
// latch all run exactly as they would against hardware.
//
// Standard input feeds the transmit path; received bytes go to standard
// output. Transport faults are logged and the stream continues.
//
//	portbridge -device /dev/ttyUSB0 -baud 115200
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/tarm/serial"

	"github.com/jangala-dev/go-bufuart/bufuart"
	"github.com/jangala-dev/go-bufuart/bufuart/sim"
)

var (
	device   = flag.String("device", "/dev/ttyUSB0", "serial device to bridge")
	baud     = flag.Int("baud", 115200, "line speed")
	ringSize = flag.Int("ring", 512, "software ring size per direction, bytes")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	port, err := serial.OpenPort(&serial.Config{
		Name:        *device,
		Baud:        *baud,
		ReadTimeout: 10 * time.Millisecond,
	})
	if err != nil {
		glog.Exitf("open %s: %v", *device, err)
	}
	defer port.Close()

	p := sim.New(sim.DefaultFIFODepth)
	u, err := bufuart.New(p.Instance(), bufuart.Config{BaudRate: uint32(*baud)},
		make([]byte, *ringSize), make([]byte, *ringSize))
	if err != nil {
		glog.Exitf("driver: %v", err)
	}
	defer u.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Device -> wire-side RX FIFO.
	go func() {
		buf := make([]byte, sim.DefaultFIFODepth)
		for ctx.Err() == nil {
			n, err := port.Read(buf)
			if err != nil && !errors.Is(err, io.EOF) {
				glog.Errorf("device read: %v", err)
				cancel()
				return
			}
			for off := 0; off < n; {
				off += p.WireWrite(buf[off:n])
				if off < n {
					time.Sleep(time.Millisecond)
				}
			}
		}
	}()

	// Wire-side TX FIFO -> device.
	go func() {
		for ctx.Err() == nil {
			b := p.WireRead(sim.DefaultFIFODepth)
			if len(b) == 0 {
				time.Sleep(time.Millisecond)
				continue
			}
			if _, err := port.Write(b); err != nil {
				glog.Errorf("device write: %v", err)
				cancel()
				return
			}
		}
	}()

	// Stdin -> driver TX.
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if _, werr := u.Write(ctx, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				_ = u.Flush(ctx)
				cancel()
				return
			}
		}
	}()

	// Driver RX -> stdout.
	buf := make([]byte, 256)
	for {
		n, err := u.Read(ctx, buf)
		switch {
		case err == nil:
			if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
				glog.Exitf("stdout: %v", werr)
			}
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, bufuart.ErrNoise),
			errors.Is(err, bufuart.ErrParity),
			errors.Is(err, bufuart.ErrFraming),
			errors.Is(err, bufuart.ErrBreak):
			glog.Warningf("transport fault: %v", err)
		default:
			glog.Exitf("read: %v", err)
		}
	}
}

// bufuart_selftest exercises the driver end to end over the simulated
// peripheral: a pump goroutine loops the wire side back on itself, so every
// transmitted byte comes home through the receive path.
package main

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"os"
	"time"

	"github.com/jangala-dev/go-bufuart/bufuart"
	"github.com/jangala-dev/go-bufuart/bufuart/sim"
)

func main() {
	p := sim.New(sim.DefaultFIFODepth)
	port, err := bufuart.New(p.Instance(), bufuart.Config{}, make([]byte, 256), make([]byte, 256))
	if err != nil {
		fmt.Fprintln(os.Stderr, "construct failed:", err)
		os.Exit(1)
	}

	// Wire loopback: whatever the driver transmits comes back as input.
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if b := p.WireRead(sim.DefaultFIFODepth); len(b) > 0 {
				p.WireWrite(b)
				continue
			}
			time.Sleep(time.Millisecond)
		}
	}()
	defer close(stop)

	pass, fail := 0, 0
	run := func(name string, f func() string) {
		fmt.Println()
		fmt.Println("[Test]", name)
		if msg := f(); msg == "" {
			fmt.Println("  PASS")
			pass++
		} else {
			fmt.Println("  FAIL:", msg)
			fail++
		}
	}

	recvExact := func(ctx context.Context, n int) ([]byte, error) {
		out := make([]byte, 0, n)
		var buf [128]byte
		for len(out) < n {
			k, err := port.Read(ctx, buf[:])
			if err != nil {
				return out, err
			}
			out = append(out, buf[:k]...)
		}
		return out, nil
	}

	run("sanity: short loopback", func() string {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		msg := []byte("hello, bufuart\r\n")
		if _, err := port.Write(ctx, msg); err != nil {
			return "write failed"
		}
		got, err := recvExact(ctx, len(msg))
		if err != nil {
			return "timeout"
		}
		if !bytes.Equal(got, msg) {
			return "mismatch"
		}
		return ""
	})

	run("integrity: 4 KiB pseudo-random payload", func() string {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		payload := make([]byte, 4096)
		seed := byte(0x5a)
		for i := range payload {
			seed = seed*31 + 7
			payload[i] = seed
		}
		want := sha1.Sum(payload)

		errc := make(chan error, 1)
		go func() {
			_, err := port.Write(ctx, payload)
			errc <- err
		}()
		got, err := recvExact(ctx, len(payload))
		if err != nil {
			return "receive timeout"
		}
		if err := <-errc; err != nil {
			return "write failed"
		}
		if sha1.Sum(got) != want {
			return "digest mismatch"
		}
		return ""
	})

	run("notify: read wakes on late arrival", func() string {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		go func() {
			time.Sleep(20 * time.Millisecond)
			_, _ = port.Write(ctx, []byte("Z"))
		}()
		var b [1]byte
		if _, err := port.Read(ctx, b[:]); err != nil {
			return "read error"
		}
		if b[0] != 'Z' {
			return "wrong byte"
		}
		return ""
	})

	run("timeout: no data within 100ms", func() string {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		if _, err := port.Read(ctx, make([]byte, 1)); err == nil {
			return "unexpected data"
		}
		return ""
	})

	run("flush: ring drains under load", func() string {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := port.Write(ctx, []byte("drain me")); err != nil {
			return "write failed"
		}
		if err := port.Flush(ctx); err != nil {
			return "flush timeout"
		}
		if _, err := recvExact(ctx, len("drain me")); err != nil {
			return "echo lost"
		}
		return ""
	})

	fmt.Println()
	fmt.Println("Summary")
	fmt.Println("  passed =", pass)
	fmt.Println("  failed =", fail)
	st := port.Stats()
	fmt.Printf("  bridge runs = %d, rx = %d B, tx = %d B\n", st.BridgeRuns, st.RxBytes, st.TxBytes)
	if fail > 0 {
		os.Exit(1)
	}
}

// Demo wiring for the binlog transport stack: a device side
// (Transport+Emitter) and a host side (Server) sharing an in-memory
// pipe in a single process, standing in for the two ends of a real
// UART/USB-CDC link a firmware build would connect instead.
//
// This plays the role the teacher's own example/example.go plays for
// tamago/arm: a plain main() a maintainer runs by hand to see the
// stack come alive end to end, not a unit test.
package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tamago-contrib/binlog"
	"github.com/tamago-contrib/binlog/apphash"
	"github.com/tamago-contrib/binlog/link"
	"github.com/tamago-contrib/binlog/ring"
)

func main() {
	start := time.Now()
	fmt.Println("-- main --------------------------------------------------------------")
	fmt.Printf("binlog example (epoch %d)\n", start.UnixNano())

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg := binlog.DefaultConfig()
	deviceLink, hostLink := link.NewPipePair(logger)

	tx := binlog.NewTransport(ring.New(make([]byte, cfg.LogBufSize)), deviceLink, logger)
	hash := apphash.NewStatic([]byte("example-build-hash"))
	em := binlog.NewEmitter(cfg, tx, hash, "example-board", logger)

	srv := binlog.NewServer(cfg, hostLink, nil, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("-- device info ---------------------------------------------------------")
	srv.SetOnFirstFrame(func() {
		if err := em.SendDeviceInfo(ctx); err != nil {
			fmt.Printf("failed to send device info: %v\n", err)
		}
	})

	received := make(chan []byte, 16)
	for _, port := range []int{binlog.PortLog, binlog.PortDeviceInfo, binlog.PortAppHashBeacon} {
		port := port
		if err := srv.Register(port, func(payload []byte) {
			received <- append([]byte{byte(port)}, payload...)
		}); err != nil {
			panic(err)
		}
	}

	go srv.Run(ctx)

	fmt.Println("-- emitting records ----------------------------------------------------")
	if err := em.Emit0(ctx, 0x100); err != nil {
		fmt.Printf("Emit0 failed: %v\n", err)
	}
	if err := em.EmitN(ctx, 0x200, int64(42), "hello from the example device"); err != nil {
		fmt.Printf("EmitN failed: %v\n", err)
	}

	fmt.Println("-- suspend/resume (app-hash beacon) -------------------------------------")
	em.SuspendTx()
	em.ResumeTx()

	n := 0
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case frame := <-received:
			n++
			fmt.Printf("received on port %d: %d bytes\n", frame[0], len(frame)-1)
			if n >= 4 {
				break loop
			}
		case <-timeout:
			break loop
		}
	}

	fmt.Printf("----------------------------------------------------------------------\n")
	fmt.Printf("received %d frames in %s\n", n, time.Since(start))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamago-contrib/binlog"
	"github.com/tamago-contrib/binlog/apphash"
	"github.com/tamago-contrib/binlog/item"
	"github.com/tamago-contrib/binlog/link"
	"github.com/tamago-contrib/binlog/ring"
)

func newSimCmd() *cobra.Command {
	var count int
	var appHash string

	cmd := &cobra.Command{
		Use:   "sim",
		Short: "run a device+host loopback demo over an in-memory pipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if appHash != "" {
				fc.AppHash = appHash
			}
			return runSim(cmd.Context(), fc, count, log)
		},
	}
	cmd.Flags().IntVar(&count, "count", 5, "number of sample records to emit")
	cmd.Flags().StringVar(&appHash, "app-hash", "", "override the app_hash string from --config")
	return cmd
}

// runSim wires a device side (Transport+Emitter) to a host side
// (Server) over link.NewPipePair, emits count sample records (the
// device-info handshake goes out once the host has decoded its first
// frame), and prints every frame the host decodes. A handler is
// registered for the app-hash beacon port, but TX is never suspended
// and resumed, so no beacon is sent. The two halves run under an errgroup so either
// side's failure cancels the other (spec.md §4.6's "one worker task"
// lifecycle, extended here to the demo's two cooperating sides).
func runSim(ctx context.Context, fc fileConfig, count int, logger *zap.Logger) error {
	cfg := fc.toBinlogConfig()
	deviceLink, hostLink := link.NewPipePair(logger)

	tx := binlog.NewTransport(ring.New(make([]byte, cfg.LogBufSize)), deviceLink, logger)
	srv := binlog.NewServer(cfg, hostLink, nil, logger, nil)
	hash := apphash.NewStatic([]byte(fc.AppHash))
	em := binlog.NewEmitter(cfg, tx, hash, fc.board(), logger)

	srv.SetOnFirstFrame(func() {
		if err := em.SendDeviceInfo(ctx); err != nil {
			logger.Warn("failed to send device-info handshake", zap.Error(err))
		}
	})
	if err := srv.Register(binlog.PortDeviceInfo, func(payload []byte) {
		printDeviceInfo(logger, payload)
	}); err != nil {
		return err
	}
	if err := srv.Register(binlog.PortAppHashBeacon, func(payload []byte) {
		logger.Info("beacon", zap.Int("bytes", len(payload)))
	}); err != nil {
		return err
	}
	if err := srv.Register(binlog.PortLog, func(payload []byte) {
		printRecord(logger, payload)
	}); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		err := connectWithBackoff(gctx, func() error { return srv.Run(gctx) })
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		for i := 0; i < count; i++ {
			if err := em.EmitN(gctx, uint32(0x1000+i), int64(i), fmt.Sprintf("sample record %d", i)); err != nil {
				return fmt.Errorf("binlogctl: emit sample %d: %w", i, err)
			}
			time.Sleep(50 * time.Millisecond)
		}
		// give the host side time to drain and decode the last frame
		// before the server's worker is torn down.
		time.Sleep(100 * time.Millisecond)
		cancel()
		return nil
	})

	return g.Wait()
}

// printRecord unpacks the 4-byte prefix header and, per its kind,
// decodes the record body as either a tagged-slot sequence or a
// memory-dump (spec.md §3's Record layout).
func printRecord(logger *zap.Logger, payload []byte) {
	kind, prefixID, body, err := binlog.DecodeHeader(payload)
	if err != nil {
		logger.Warn("record payload shorter than its header", zap.Int("bytes", len(payload)))
		return
	}

	fields := []zap.Field{zap.Uint8("kind", kind), zap.Uint32("prefix_id", prefixID)}
	switch kind {
	case binlog.RecordKindFormatted:
		if slots, err := binlog.DecodeSlots(body); err == nil && len(slots) > 0 {
			fields = append(fields, zap.String("arg0", describeSlot(slots[0])))
		}
	case binlog.RecordKindMemDump:
		if md, err := binlog.DecodeMemDump(body); err == nil {
			fields = append(fields, zap.Uint32("src_addr", md.SrcAddr), zap.Int("dump_bytes", len(md.Data)))
		}
	}
	logger.Info("record", fields...)
}

func printDeviceInfo(logger *zap.Logger, payload []byte) {
	it, err := item.ReadAny(item.NewStream(payload))
	if err != nil {
		logger.Warn("device-info decode failed", zap.Error(err))
		return
	}
	logger.Info("device-info", zap.String("decoded", describeItem(it)))
}

// connectWithBackoff runs fn under an exponential backoff policy: any
// error other than context.Canceled or context.DeadlineExceeded runs fn
// again after a delay, until fn succeeds, the policy gives up or ctx is
// done. It is the host-side analogue of spec.md §4.6's
// pause/resume-on-idle gating.
func connectWithBackoff(ctx context.Context, fn func() error) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err == context.Canceled || err == context.DeadlineExceeded {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

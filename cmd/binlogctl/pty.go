package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/tamago-contrib/binlog"
	"github.com/tamago-contrib/binlog/apphash"
	"github.com/tamago-contrib/binlog/link"
	"github.com/tamago-contrib/binlog/ring"
)

func newPtyCmd() *cobra.Command {
	var passthrough bool

	cmd := &cobra.Command{
		Use:   "pty",
		Short: "bridge the device side of the wire protocol to a real pty",
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			return runPty(cmd.Context(), fc, passthrough, log)
		},
	}
	cmd.Flags().BoolVar(&passthrough, "passthrough", false, "also bridge this terminal's stdin/stdout to the pty slave")
	return cmd
}

// runPty opens a real pty pair, drives its master side as the device
// end of the wire protocol (Transport+Emitter, emitting one Emit0
// startup record; no device-info handshake or app-hash beacon is sent),
// and prints the slave path for an operator to attach a terminal
// emulator to. With --passthrough it additionally, after that record,
// puts this process's own stdin into raw mode (golang.org/x/term) and
// copies bytes directly, the same "bridge a
// human's keystrokes into a shell-bridge port" mode spec.md §4.5 names
// as a collaborator of the link layer.
func runPty(ctx context.Context, fc fileConfig, passthrough bool, logger *zap.Logger) error {
	pl, slave, err := link.OpenPty(logger)
	if err != nil {
		return err
	}
	defer pl.Close()

	cfg := fc.toBinlogConfig()
	tx := binlog.NewTransport(ring.New(make([]byte, cfg.LogBufSize)), pl, logger)
	hash := apphash.NewStatic([]byte(fc.AppHash))
	em := binlog.NewEmitter(cfg, tx, hash, fc.board(), logger)

	fmt.Fprintf(os.Stdout, "binlogctl: device side attached, slave at %s\n", slave)

	if err := em.Emit0(ctx, 0x1); err != nil {
		logger.Warn("failed to emit startup marker", zap.Error(err))
	}

	if !passthrough {
		<-ctx.Done()
		return nil
	}
	return bridgeStdin(ctx, pl)
}

// bridgeStdin puts the controlling terminal into raw mode and copies
// bytes between it and the pty master until ctx is done.
func bridgeStdin(ctx context.Context, pl *link.PtyLink) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("binlogctl: put terminal in raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if _, werr := pl.Write(ctx, buf[:n]); werr != nil {
					break
				}
			}
			if err != nil {
				break
			}
		}
		close(done)
	}()

	buf := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		default:
		}
		n, err := pl.Read(ctx, buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

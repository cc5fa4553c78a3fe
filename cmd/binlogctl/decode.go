package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tamago-contrib/binlog"
	"github.com/tamago-contrib/binlog/frame"
	"github.com/tamago-contrib/binlog/item"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode",
		Short: "de-frame raw bytes from stdin and pretty-print the records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return decodeStream(cmd.InOrStdin(), log)
		},
	}
}

// decodeStream runs the same SEEKING_SOF/IN_FRAME split the server's
// feed() does, but synchronously over a plain io.Reader, since stdin
// here is a finished capture rather than a live link.
func decodeStream(r io.Reader, logger *zap.Logger) error {
	br := bufio.NewReader(r)
	var assembly []byte
	inFrame := false
	seq := 0

	flush := func() {
		if len(assembly) == 0 {
			return
		}
		payload, err := frame.Decode(assembly)
		assembly = nil
		if err != nil {
			logger.Warn("cobs decode failed", zap.Int("seq", seq), zap.Error(err))
			return
		}
		if len(payload) == 0 {
			return
		}
		seq++
		printPayload(logger, seq, payload)
	}

	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("binlogctl: read stdin: %w", err)
		}

		if b == frame.Sentinel {
			if inFrame {
				flush()
				inFrame = false
			}
			continue
		}
		if !inFrame {
			inFrame = true
			assembly = assembly[:0]
		}
		assembly = append(assembly, b)
	}
	return nil
}

func printPayload(logger *zap.Logger, seq int, payload []byte) {
	port := int(payload[0] >> 2)
	typ := payload[0] & 0x3
	body := payload[1:]

	fields := []zap.Field{zap.Int("seq", seq), zap.Int("port", port), zap.Uint8("type", typ)}

	switch port {
	case binlog.PortLog:
		printRecordBody(logger, fields, body)
	case binlog.PortDeviceInfo:
		it, err := item.ReadAny(item.NewStream(body))
		if err != nil {
			logger.Info("frame", append(fields, zap.Binary("raw", body))...)
			return
		}
		logger.Info("frame", append(fields, zap.String("decoded", describeItem(it)))...)
	default:
		logger.Info("frame", append(fields, zap.Binary("raw", body))...)
	}
}

// printRecordBody decodes a port-0 record body (spec.md §3's Record
// layout) by its kind, falling back to raw bytes if the kind/length
// doesn't parse.
func printRecordBody(logger *zap.Logger, fields []zap.Field, body []byte) {
	kind, prefixID, rest, err := binlog.DecodeHeader(body)
	if err != nil {
		logger.Info("frame", append(fields, zap.Binary("raw", body))...)
		return
	}
	fields = append(fields, zap.Uint8("kind", kind), zap.Uint32("prefix_id", prefixID))
	switch kind {
	case binlog.RecordKindFormatted:
		slots, err := binlog.DecodeSlots(rest)
		if err != nil && len(slots) == 0 {
			logger.Info("frame", append(fields, zap.Binary("raw", rest))...)
			return
		}
		parts := make([]string, len(slots))
		for i, s := range slots {
			parts[i] = describeSlot(s)
		}
		logger.Info("frame", append(fields, zap.Strings("slots", parts))...)
	case binlog.RecordKindMemDump:
		md, err := binlog.DecodeMemDump(rest)
		if err != nil {
			logger.Info("frame", append(fields, zap.Binary("raw", rest))...)
			return
		}
		logger.Info("frame", append(fields, zap.Uint32("src_addr", md.SrcAddr), zap.Int("dump_bytes", len(md.Data)))...)
	default:
		logger.Info("frame", append(fields, zap.Binary("raw", rest))...)
	}
}

func describeSlot(s binlog.Slot) string {
	switch s.Tag {
	case binlog.SlotInt32:
		return fmt.Sprintf("int32(%d)", s.Int32)
	case binlog.SlotInt64:
		return fmt.Sprintf("int64(%d)", s.Int64)
	case binlog.SlotFloat64:
		return fmt.Sprintf("float64(%v)", s.Float64)
	case binlog.SlotFloat128:
		return fmt.Sprintf("extfloat(% x)", s.Ext)
	case binlog.SlotText:
		return fmt.Sprintf("text(%q)", s.Text)
	case binlog.SlotPointer:
		return fmt.Sprintf("pointer(0x%x)", s.Pointer)
	default:
		return fmt.Sprintf("slot(tag=%d)", s.Tag)
	}
}

func describeItem(it item.Item) string {
	switch it.Kind {
	case item.KindUint, item.KindNInt:
		v, _ := it.AsInt64()
		return fmt.Sprintf("%s(%d)", it.Kind, v)
	case item.KindText:
		return fmt.Sprintf("text(%q)", it.Text)
	case item.KindBytes:
		return fmt.Sprintf("bytes(%d)", len(it.Bytes))
	case item.KindBool:
		return fmt.Sprintf("bool(%v)", it.Bool)
	case item.KindArray:
		return fmt.Sprintf("array(%d elements)", it.Count)
	case item.KindMap:
		return fmt.Sprintf("map(%d pairs)", it.Count)
	case item.KindFloat16, item.KindFloat32, item.KindFloat64, item.KindDatetime:
		return fmt.Sprintf("%s(%v)", it.Kind, it.Float)
	default:
		return it.Kind.String()
	}
}

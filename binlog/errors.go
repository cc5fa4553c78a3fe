package binlog

import "errors"

// Recoverable errors: transport/server errors are all resynchronised on
// the next sentinel, codec errors are local to one record.
var (
	ErrInvalidPort     = errors.New("binlog: invalid port")
	ErrBufferFull      = errors.New("binlog: tx ring has no room")
	ErrNoHandler       = errors.New("binlog: no handler registered for port")
	ErrFrameOverrun    = errors.New("binlog: rx assembly buffer overrun")
	ErrBadFrameType    = errors.New("binlog: frame type is not the log-protocol type")
	ErrBusy            = errors.New("binlog: blocking rx already owned by another caller")
	ErrUnsupportedSlot = errors.New("binlog: EmitN argument has no wire representation")
	ErrFormat          = errors.New("binlog: malformed record slot")
)

// Fatal errors: in firmware these break to the debugger or reset the
// host. A Go library cannot do either; EmitFatal flushes synchronously
// and then calls the hook installed with Emitter.SetPanic, defaulting to
// panic(err).
var (
	ErrPayloadTooLarge = errors.New("binlog: payload exceeds MaxPacketSize")
	ErrInvalidBeacon   = errors.New("binlog: device-info beacon missing required keys")
)

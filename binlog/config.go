package binlog

import "time"

// Default configuration knobs, mirroring the compile-time constants of
// the firmware core as named package-level defaults.
const (
	DefaultLogBufSize       = 8192
	DefaultMaxPacketSize    = 1500
	DefaultMaxInPorts       = 8
	DefaultAppHashSize      = 64
	DefaultCBORMaxRecursion = 4
	DefaultRecordBudget     = 100
	DefaultIdleTimeout      = time.Second
)

// Port numbers with a reserved meaning on the wire.
const (
	PortLog           = 0
	PortDeviceInfo    = 62
	PortAppHashBeacon = 63
	MaxPort           = 63
)

// Config holds the tunables of the transport/server/persistence stack.
// Zero-value fields are filled in from DefaultConfig by NewEmitter and
// NewServer.
type Config struct {
	LogBufSize       int
	MaxPacketSize    int
	MaxInPorts       int
	AppHashSize      int
	CBORMaxRecursion int
	RecordBudget     int
	IdleTimeout      time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		LogBufSize:       DefaultLogBufSize,
		MaxPacketSize:    DefaultMaxPacketSize,
		MaxInPorts:       DefaultMaxInPorts,
		AppHashSize:      DefaultAppHashSize,
		CBORMaxRecursion: DefaultCBORMaxRecursion,
		RecordBudget:     DefaultRecordBudget,
		IdleTimeout:      DefaultIdleTimeout,
	}
}

// withDefaults fills any zero field of cfg from DefaultConfig.
func (cfg Config) withDefaults() Config {
	d := DefaultConfig()
	if cfg.LogBufSize == 0 {
		cfg.LogBufSize = d.LogBufSize
	}
	if cfg.MaxPacketSize == 0 {
		cfg.MaxPacketSize = d.MaxPacketSize
	}
	if cfg.MaxInPorts == 0 {
		cfg.MaxInPorts = d.MaxInPorts
	}
	if cfg.AppHashSize == 0 {
		cfg.AppHashSize = d.AppHashSize
	}
	if cfg.CBORMaxRecursion == 0 {
		cfg.CBORMaxRecursion = d.CBORMaxRecursion
	}
	if cfg.RecordBudget == 0 {
		cfg.RecordBudget = d.RecordBudget
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = d.IdleTimeout
	}
	return cfg
}

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tamago-contrib/binlog"
)

// fileConfig is the on-disk shape of --config. Any field left zero
// falls back to binlog.DefaultConfig() in toBinlogConfig,
// mirroring the way the library itself treats a zero binlog.Config.
type fileConfig struct {
	Board       string        `yaml:"board"`
	AppHash     string        `yaml:"app_hash"`
	LogBufSize  int           `yaml:"log_buf_size"`
	MaxPacket   int           `yaml:"max_packet_size"`
	MaxInPorts  int           `yaml:"max_in_ports"`
	RecordBudget int          `yaml:"record_budget"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

func loadConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("binlogctl: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("binlogctl: parse config: %w", err)
	}
	return fc, nil
}

func (fc fileConfig) toBinlogConfig() binlog.Config {
	cfg := binlog.DefaultConfig()
	if fc.LogBufSize != 0 {
		cfg.LogBufSize = fc.LogBufSize
	}
	if fc.MaxPacket != 0 {
		cfg.MaxPacketSize = fc.MaxPacket
	}
	if fc.MaxInPorts != 0 {
		cfg.MaxInPorts = fc.MaxInPorts
	}
	if fc.RecordBudget != 0 {
		cfg.RecordBudget = fc.RecordBudget
	}
	if fc.IdleTimeout != 0 {
		cfg.IdleTimeout = fc.IdleTimeout
	}
	return cfg
}

func (fc fileConfig) board() string {
	if fc.Board == "" {
		return "binlogctl-demo"
	}
	return fc.Board
}

// Package routerconfig loads and validates the hosting process's YAML
// configuration file: data directory, buffer topology, file-tailer globs,
// and TCP acceptor settings. DAG wiring and codec selection are accepted as
// already-resolved component references elsewhere; this package only
// carries the subset of fields the core subsystems need to start.
//
// Reference shape: RocksDB's OPTIONS file loader (section headers,
// key=value pairs, a defaults struct later overwritten field by field), but
// in YAML rather than ini, since that's the format this corpus's CLI
// tooling (ChuLiYu/raft-recovery) actually ships.
package routerconfig

import "time"

// Config is the top-level configuration document.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Log     LogConfig     `yaml:"log"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Tail    TailConfig    `yaml:"tail"`
	TCP     TCPConfig     `yaml:"tcp"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig controls the Prometheus /metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig controls observability verbosity.
type LogConfig struct {
	// Level is one of "error", "warn", "info", "debug". Default "info".
	Level string `yaml:"level"`
}

// StageConfig describes one stage of the buffer topology.
type StageConfig struct {
	// Type is "memory" or "disk".
	Type string `yaml:"type"`
	// WhenFull is "block", "drop_newest", or "overflow".
	WhenFull string `yaml:"when_full"`

	// MaxEvents bounds a memory stage's capacity.
	MaxEvents int `yaml:"max_events,omitempty"`

	// MaxSizeBytes bounds a disk stage's total unacknowledged bytes.
	MaxSizeBytes int64 `yaml:"max_size_bytes,omitempty"`
	// MaxDataFileSize bounds a disk stage's per-file size before rollover.
	MaxDataFileSize int64 `yaml:"max_data_file_size,omitempty"`
	// MaxRecordSize bounds a disk stage's single encoded record.
	MaxRecordSize int `yaml:"max_record_size,omitempty"`
	// Compression names a disk stage's record payload codec: "none",
	// "snappy", "zlib", "lz4", "lz4hc", "zstd".
	Compression string `yaml:"compression,omitempty"`
	// Dir, relative to DataDir, holds this disk stage's ledger and data
	// files. Required for disk stages.
	Dir string `yaml:"dir,omitempty"`
}

// BufferConfig is the ordered stage chain for one sink.
type BufferConfig struct {
	Stages []StageConfig `yaml:"stages"`
}

// TailConfig configures the file-tailer source.
type TailConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`

	// ReadFrom is "beginning", "end", or "checkpoint". Default "checkpoint".
	ReadFrom string `yaml:"read_from"`

	CheckpointPath    string        `yaml:"checkpoint_path"`
	CheckpointPeriod  time.Duration `yaml:"checkpoint_period"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	UseNotify         bool          `yaml:"use_notify"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// TLSConfig names the certificate/key pair used to terminate TLS on the
// TCP acceptor.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// TCPConfig configures the TCP acceptor. Addr == "" disables it.
type TCPConfig struct {
	Addr string `yaml:"addr"`

	MaxConnections int      `yaml:"max_connections"`
	InFlightTarget int      `yaml:"in_flight_target"`
	AllowedPeers   []string `yaml:"allowed_peers"`

	ShutdownGrace         time.Duration `yaml:"shutdown_grace"`
	MaxConnectionDuration time.Duration `yaml:"max_connection_duration"`

	RequireAck bool       `yaml:"require_ack"`
	TLS        *TLSConfig `yaml:"tls,omitempty"`
}

// Enabled reports whether the TCP acceptor should run at all.
func (c TCPConfig) Enabled() bool { return c.Addr != "" }

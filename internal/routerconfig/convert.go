package routerconfig

import (
	"fmt"
	"net"

	"github.com/obsrouter/routercore/internal/buffer"
	"github.com/obsrouter/routercore/internal/compression"
	"github.com/obsrouter/routercore/internal/logging"
)

// ToWhenFull converts the YAML string form to buffer.WhenFull.
func ToWhenFull(s string) (buffer.WhenFull, error) {
	switch s {
	case "", "block":
		return buffer.Block, nil
	case "drop_newest":
		return buffer.DropNewest, nil
	case "overflow":
		return buffer.Overflow, nil
	default:
		return 0, fmt.Errorf("routerconfig: unknown when_full %q", s)
	}
}

// ToCompression converts the YAML string form to compression.Type.
func ToCompression(s string) (compression.Type, error) {
	switch s {
	case "", "none":
		return compression.NoCompression, nil
	case "snappy":
		return compression.SnappyCompression, nil
	case "zlib":
		return compression.ZlibCompression, nil
	case "lz4":
		return compression.LZ4Compression, nil
	case "lz4hc":
		return compression.LZ4HCCompression, nil
	case "zstd":
		return compression.ZstdCompression, nil
	default:
		return 0, fmt.Errorf("routerconfig: unknown compression %q", s)
	}
}

// ToLogLevel converts the YAML string form to logging.Level.
func ToLogLevel(s string) (logging.Level, error) {
	switch s {
	case "error":
		return logging.LevelError, nil
	case "warn":
		return logging.LevelWarn, nil
	case "", "info":
		return logging.LevelInfo, nil
	case "debug":
		return logging.LevelDebug, nil
	default:
		return 0, fmt.Errorf("routerconfig: unknown log level %q", s)
	}
}

// ParseAllowedPeers resolves the TCP acceptor's peer-IP allowlist.
func ParseAllowedPeers(addrs []string) ([]net.IP, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip == nil {
			return nil, fmt.Errorf("routerconfig: invalid allowed_peers entry %q", a)
		}
		ips = append(ips, ip)
	}
	return ips, nil
}

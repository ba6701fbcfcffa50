package routerconfig

import "fmt"

// ValidationError marks a configuration that parsed successfully but is
// semantically invalid. Callers (cmd/routerd) map this to exit code 78,
// distinct from exit code 1 for a load/parse failure (spec.md §6).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "routerconfig: " + e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Validate checks the structural and cross-field invariants spec.md §6
// requires of the hosting process's configuration.
func (c *Config) Validate() error {
	if _, err := ToLogLevel(c.Log.Level); err != nil {
		return invalid("%v", err)
	}

	hasDisk := false
	for i, stage := range c.Buffer.Stages {
		switch stage.Type {
		case "memory":
		case "disk":
			hasDisk = true
			if stage.Dir == "" {
				return invalid("buffer.stages[%d]: disk stage requires dir", i)
			}
		default:
			return invalid("buffer.stages[%d]: unknown type %q", i, stage.Type)
		}
		if _, err := ToWhenFull(stage.WhenFull); err != nil {
			return invalid("buffer.stages[%d]: %v", i, err)
		}
		if stage.Type == "disk" {
			if _, err := ToCompression(stage.Compression); err != nil {
				return invalid("buffer.stages[%d]: %v", i, err)
			}
		}
	}

	if hasDisk && c.DataDir == "" {
		return invalid("data_dir is required when any disk buffer stage is configured")
	}

	if len(c.Tail.Include) > 0 {
		switch c.Tail.ReadFrom {
		case "beginning", "end", "checkpoint":
		default:
			return invalid("tail.read_from: unknown value %q", c.Tail.ReadFrom)
		}
		if c.Tail.ReadFrom == "checkpoint" && c.Tail.CheckpointPath == "" {
			return invalid("tail.checkpoint_path is required when read_from is \"checkpoint\"")
		}
	}

	if c.TCP.Enabled() {
		if _, err := ParseAllowedPeers(c.TCP.AllowedPeers); err != nil {
			return invalid("%v", err)
		}
		if c.TCP.TLS != nil {
			if c.TCP.TLS.CertFile == "" || c.TCP.TLS.KeyFile == "" {
				return invalid("tcp.tls requires both cert_file and key_file")
			}
		}
	}

	return nil
}

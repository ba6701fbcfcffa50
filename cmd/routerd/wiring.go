package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/obsrouter/routercore/internal/buffer"
	"github.com/obsrouter/routercore/internal/event"
	"github.com/obsrouter/routercore/internal/filetail"
	"github.com/obsrouter/routercore/internal/filetail/pathsprovider"
	"github.com/obsrouter/routercore/internal/logging"
	"github.com/obsrouter/routercore/internal/routerconfig"
	"github.com/obsrouter/routercore/internal/tcpsource"
	"github.com/obsrouter/routercore/internal/usagemetrics"
	"github.com/obsrouter/routercore/internal/vfs"
)

// corruptionLogger adapts a logging.Logger to wal.Reporter, so ledger
// corruption encountered during recovery or streaming is visible in the
// process log rather than only silently skipped (spec.md §7: "Corrupted
// WAL records are logged with record ID and file ID; the buffer
// continues").
type corruptionLogger struct {
	logger logging.Logger
}

func (c corruptionLogger) Corruption(bytesSkipped int, recordID uint64, err error) {
	c.logger.Warnf("%scorruption: record=%d skipped=%dB: %v", logging.NSBuffer, recordID, bytesSkipped, err)
}

// buildTopology translates the configured stage chain into a running
// buffer.Topology. Disk stages are rooted under cfg.DataDir/stage.Dir.
func buildTopology(cfg *routerconfig.Config, logger logging.Logger) (*buffer.Topology, error) {
	fs := vfs.Default()
	configs := make([]buffer.Config, 0, len(cfg.Buffer.Stages))

	for i, sc := range cfg.Buffer.Stages {
		whenFull, err := routerconfig.ToWhenFull(sc.WhenFull)
		if err != nil {
			return nil, err
		}

		var stage buffer.Stage
		switch sc.Type {
		case "memory":
			stage = buffer.NewMemoryStage(stageName(i, sc), i, buffer.MemoryOptions{
				MaxEvents: sc.MaxEvents,
				WhenFull:  whenFull,
			})
		case "disk":
			comp, err := routerconfig.ToCompression(sc.Compression)
			if err != nil {
				return nil, err
			}
			dir := filepath.Join(cfg.DataDir, sc.Dir)
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("routerd: create buffer dir %s: %w", dir, err)
			}
			stage, err = buffer.NewDiskStage(fs, stageName(i, sc), i, buffer.DiskOptions{
				Dir:             dir,
				MaxRecordSize:   sc.MaxRecordSize,
				MaxDataFileSize: sc.MaxDataFileSize,
				MaxBufferSize:   uint64(sc.MaxSizeBytes),
				Compression:     comp,
				WhenFull:        whenFull,
				Logger:          logger,
				Reporter:        corruptionLogger{logger: logger},
			})
			if err != nil {
				return nil, fmt.Errorf("routerd: open disk stage %s: %w", dir, err)
			}
		default:
			return nil, fmt.Errorf("routerd: unknown buffer stage type %q", sc.Type)
		}

		configs = append(configs, buffer.Config{Stage: stage, Overflow: sc.WhenFull == "overflow"})
	}

	return buffer.NewTopology(configs)
}

func stageName(index int, sc routerconfig.StageConfig) string {
	return fmt.Sprintf("%s%d", sc.Type, index)
}

// buildTailer wires the configured paths provider, watcher defaults, and
// checkpointer into a filetail.Tailer. It returns (nil, nil, nil) when no
// include patterns are configured, letting a routerd instance run as a
// TCP-only ingestion point.
func buildTailer(cfg *routerconfig.Config, logger logging.Logger) (*filetail.Tailer, *filetail.Checkpointer, error) {
	if len(cfg.Tail.Include) == 0 {
		return nil, nil, nil
	}

	providerCfg := pathsprovider.Config{Include: cfg.Tail.Include, Exclude: cfg.Tail.Exclude}
	var provider pathsprovider.Provider
	if cfg.Tail.UseNotify {
		p, err := pathsprovider.NewNotify(providerCfg, cfg.Tail.ReconcileInterval)
		if err != nil {
			return nil, nil, fmt.Errorf("routerd: start path watch: %w", err)
		}
		provider = p
	} else {
		provider = pathsprovider.NewGlob(providerCfg)
	}

	var readFrom filetail.ReadFrom
	switch cfg.Tail.ReadFrom {
	case "beginning":
		readFrom = filetail.Beginning
	case "end":
		readFrom = filetail.End
	default:
		readFrom = filetail.FromCheckpoint
	}

	var checkpointer *filetail.Checkpointer
	if cfg.Tail.CheckpointPath != "" {
		checkpointer = filetail.NewCheckpointer(cfg.Tail.CheckpointPath, logger)
	}

	tailer := filetail.NewTailer(filetail.TailerConfig{
		Provider:     provider,
		ReadFrom:     readFrom,
		PollInterval: cfg.Tail.PollInterval,
		Checkpointer: checkpointer,
		Logger:       logger,
	})
	return tailer, checkpointer, nil
}

// buildTCPListener wires the configured TCP acceptor against sink. It
// returns nil when the TCP source is disabled (cfg.TCP.Addr == "").
func buildTCPListener(cfg *routerconfig.Config, sink tcpsource.Sink, logger logging.Logger) (*tcpsource.Listener, error) {
	if !cfg.TCP.Enabled() {
		return nil, nil
	}

	peers, err := routerconfig.ParseAllowedPeers(cfg.TCP.AllowedPeers)
	if err != nil {
		return nil, err
	}

	var tlsConfig *tlsServerConfig
	if cfg.TCP.TLS != nil {
		tlsConfig, err = loadTLSConfig(cfg.TCP.TLS)
		if err != nil {
			return nil, err
		}
	}

	lc := tcpsource.Config{
		Addr:                  cfg.TCP.Addr,
		MaxConnections:        cfg.TCP.MaxConnections,
		AllowedPeers:          peers,
		InFlightTarget:        cfg.TCP.InFlightTarget,
		MaxConnectionDuration: cfg.TCP.MaxConnectionDuration,
		ShutdownGrace:         cfg.TCP.ShutdownGrace,
		Decoder:               newLineDecoder(0),
		Sink:                  sink,
		RequireAck:            cfg.TCP.RequireAck,
	}
	if tlsConfig != nil {
		lc.TLS = tlsConfig.config
	}

	return tcpsource.NewListener(lc, logger), nil
}

// multiSink fans a single buffer.Usage snapshot out to every configured
// observability surface (the log-line sink is always present; the
// Prometheus collector is added only when metrics are enabled).
type multiSink struct {
	sinks []buffer.Sink
}

func (m multiSink) ReportUsage(stageName string, u buffer.Usage) {
	for _, s := range m.sinks {
		s.ReportUsage(stageName, u)
	}
}

func buildUsageSink(logger logging.Logger, collector *usagemetrics.Collector) buffer.Sink {
	sinks := []buffer.Sink{buffer.LogSink{Logger: logger}}
	if collector != nil {
		sinks = append(sinks, collector)
	}
	return multiSink{sinks: sinks}
}

// buildUsageReporter starts the periodic usage reporter over every stage
// in topo, publishing through sink every buffer.ReportInterval.
func buildUsageReporter(ctx context.Context, sink buffer.Sink, topo *buffer.Topology) *buffer.Reporter {
	return buffer.NewReporter(ctx, sink, topo.Stages())
}

// drainTailerLines forwards the tailer's framed lines into the topology as
// log events until ctx is done or the tailer's output channel closes.
func drainTailerLines(ctx context.Context, tailer *filetail.Tailer, topo *buffer.Topology, logger logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-tailer.Lines():
			if !ok {
				return
			}
			ev := lineToEvent(line)
			if _, err := topo.Offer(ctx, ev); err != nil {
				logger.Warnf("%soffer tailed line from %s: %v", logging.NSRouter, line.Path, err)
			}
		}
	}
}

func lineToEvent(line filetail.Line) *event.Event {
	ev := event.NewLogEvent(time.Now())
	_ = ev.Set("message", event.StringValue(string(line.Data)))
	_ = ev.Set("file.path", event.StringValue(line.Path))
	_ = ev.Set("file.offset", event.IntegerValue(line.Offset))
	if line.Truncated {
		_ = ev.Set("file.truncated", event.BooleanValue(true))
	}
	return ev
}

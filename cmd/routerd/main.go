// Command routerd hosts the observability data router core: the buffer
// topology, file-tailing source, and TCP acceptor, wired together from a
// YAML configuration file per spec.md §6.
//
// Concrete protocol codecs, the component registry, and DAG wiring beyond
// "one tailer and/or one TCP acceptor feeding one buffer topology" are
// external-collaborator concerns (spec.md §1); routerd is the minimal
// hosting process that exercises the core end to end.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/obsrouter/routercore/internal/logging"
	"github.com/obsrouter/routercore/internal/routerconfig"
	"github.com/obsrouter/routercore/internal/shutdown"
	"github.com/obsrouter/routercore/internal/usagemetrics"
)

// Exit codes per spec.md §6.
const (
	exitOK            = 0
	exitConfigError   = 1
	exitRuntimeError  = 2
	exitConfigInvalid = 78
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var configPath string
	var dataDirFlag string

	root := &cobra.Command{
		Use:     "routerd",
		Short:   "Observability data router core",
		Version: "0.1.0",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (required)")
	root.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "override the configured data directory")

	exitCode := exitOK
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the router core and serve until shutdown",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				exitCode = exitConfigError
				return errors.New("routerd: --config is required")
			}

			cfg, err := routerconfig.Load(configPath)
			if err != nil {
				var verr *routerconfig.ValidationError
				if errors.As(err, &verr) {
					exitCode = exitConfigInvalid
				} else {
					exitCode = exitConfigError
				}
				return err
			}
			if dataDirFlag != "" {
				cfg.DataDir = dataDirFlag
			}

			if err := serve(cmd.Context(), cfg); err != nil {
				exitCode = exitRuntimeError
				return err
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd)

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "routerd: %v\n", err)
		if exitCode == exitOK {
			exitCode = exitConfigError
		}
	}
	return exitCode
}

// serve builds every subsystem named in cfg and runs until a shutdown
// signal is observed, per spec.md §5's cancellation model.
func serve(ctx context.Context, cfg *routerconfig.Config) error {
	level, err := routerconfig.ToLogLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.NewDefaultLogger(level)

	tok := shutdown.New(0)
	stopSignals := tok.NotifyOnSignal(syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	var collector *usagemetrics.Collector
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		collector = usagemetrics.NewCollector(nil)
		metricsServer = usagemetrics.NewServer(cfg.Metrics.Addr, nil)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("%smetrics server: %v", logging.NSRouter, err)
			}
		}()
	}

	topo, err := buildTopology(cfg, logger)
	if err != nil {
		return err
	}
	defer topo.Close()

	reporter := buildUsageReporter(tok.Context(), buildUsageSink(logger, collector), topo)
	defer reporter.Stop()

	tailer, checkpointer, err := buildTailer(cfg, logger)
	if err != nil {
		return err
	}

	listener, err := buildTCPListener(cfg, topo, logger)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	if tailer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tailer.Run(tok.Context()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("%sfile tailer: %v", logging.NSRouter, err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			drainTailerLines(tok.Context(), tailer, topo, logger)
		}()
		if checkpointer != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				checkpointer.Run(cfg.Tail.CheckpointPeriod, tok.Done())
			}()
		}
	}

	if listener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Serve(tok.Context()); err != nil {
				logger.Errorf("%sTCP acceptor: %v", logging.NSRouter, err)
			}
		}()
	}

	logger.Infof("%srouterd started (data_dir=%q tail=%v tcp=%v metrics=%v)",
		logging.NSRouter, cfg.DataDir, tailer != nil, listener != nil, cfg.Metrics.Enabled)

	<-tok.Done()
	logger.Infof("%sshutdown signal received, draining", logging.NSRouter)

	if metricsServer != nil {
		graceCtx, cancel := tok.Grace()
		_ = metricsServer.Shutdown(graceCtx)
		cancel()
	}

	wg.Wait()
	logger.Infof("%sshutdown complete", logging.NSRouter)
	return nil
}

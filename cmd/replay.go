package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/inference-replay/replay"
	"github.com/inference-sim/inference-replay/replay/client"
	"github.com/inference-sim/inference-replay/replay/sink"
	"github.com/inference-sim/inference-replay/replay/telemetry"
	"github.com/inference-sim/inference-replay/replay/workload"
)

var (
	replayFlags      RunConfig // values bound to the replay flags
	replayConfigPath string    // --config
)

// replayCmd replays a workload trace against an endpoint
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a workload trace against an inference endpoint",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := resolveRunConfig(cmd.Flags(), replayFlags, replayConfigPath)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runReplay(ctx, cfg, os.Stdout); err != nil {
			logrus.Fatalf("Replay failed: %v", err)
		}
	},
}

// runReplay executes one run end to end and prints its summary to out.
// A canceled ctx drains the run and is not reported as a failure.
func runReplay(ctx context.Context, cfg RunConfig, out io.Writer) error {
	slices, err := workload.Load(cfg.WorkloadPath)
	if err != nil {
		return err
	}
	issuer, err := client.NewOpenAIClient(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	runID := uuid.NewString()
	summary := replay.NewSummary()
	sinks, err := openSinks(cfg, runID)
	if err != nil {
		return err
	}
	sinks = append(sinks, summary)

	if cfg.MetricsAddr != "" {
		metrics := telemetry.NewMetrics()
		srv, err := telemetry.Serve(cfg.MetricsAddr, metrics)
		if err != nil {
			_ = sinks.Close()
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		sinks = append(sinks, metrics)
	}

	engine, err := replay.NewEngine(cfg.EngineConfig(), issuer, sinks)
	if err != nil {
		_ = sinks.Close()
		return err
	}

	logrus.Infof("Run %s: replaying %s against %s", runID, cfg.WorkloadPath, cfg.Endpoint)
	_, runErr := engine.Run(ctx, slices)
	closeErr := sinks.Close()

	summary.Report().Print(out)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		logrus.Warnf("Run %s interrupted; remaining requests were recorded as canceled", runID)
	}
	if closeErr != nil {
		return fmt.Errorf("closing result sinks: %w", closeErr)
	}
	return nil
}

// openSinks opens every configured result destination. On error the sinks
// opened so far are closed.
func openSinks(cfg RunConfig, runID string) (sink.MultiSink, error) {
	var sinks sink.MultiSink
	fail := func(err error) (sink.MultiSink, error) {
		_ = sinks.Close()
		return nil, err
	}

	jsonl, err := sink.NewJSONLSink(cfg.OutputFilePath)
	if err != nil {
		return fail(err)
	}
	sinks = append(sinks, jsonl)

	if cfg.OutputDB != "" {
		db, err := sink.OpenSQLiteSink(cfg.OutputDB, runID)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, db)
	}
	if cfg.NATSURL != "" {
		ns, err := sink.ConnectNATSSink(cfg.NATSURL, cfg.NATSSubject, runID)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, ns)
	}
	if cfg.TraceHeader != "" {
		sinks = append(sinks, sink.NewTraceV2Sink(sink.TraceHeader{
			RunID:        runID,
			WorkloadPath: cfg.WorkloadPath,
			Server: &sink.TraceServerConfig{
				Endpoint:        cfg.Endpoint,
				Model:           cfg.Model,
				RoutingStrategy: cfg.RoutingStrategy,
			},
			Replay: &sink.TraceReplayConfig{
				PoolSize:    cfg.ClientPoolSize,
				ScaleFactor: cfg.TimeScale,
				Streaming:   cfg.Streaming,
			},
		}, cfg.TraceHeader, cfg.TraceData))
	}
	return sinks, nil
}

func init() {
	registerReplayFlags(replayCmd.Flags(), &replayFlags, &replayConfigPath)
}

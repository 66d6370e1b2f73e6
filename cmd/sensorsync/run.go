package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sensorsync/internal/admin"
	"sensorsync/internal/agent"
	"sensorsync/internal/backpressure"
	"sensorsync/internal/breaker"
	"sensorsync/internal/config"
	"sensorsync/internal/logging"
	"sensorsync/internal/remote"
	"sensorsync/internal/retention"
	"sensorsync/internal/sensor"
	"sensorsync/internal/store"
	"sensorsync/internal/syncer"
	"sensorsync/internal/watchdog"
)

var (
	runConfigPath string
	runSchemaPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the measurement and sync loops",
	Long:  "run starts the full agent: sensor polling, durable local buffering, batched sync with circuit breaking and backpressure, disk retention, and the local admin endpoint.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runConfigPath, runSchemaPath)
		if err != nil {
			return err
		}

		log := logging.New(cfg.LogLevel).With("device", cfg.DeviceID)
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		ctx = logging.NewContext(ctx, log)

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open reading store: %w", err)
		}
		defer st.Close()

		writer, err := newRemoteWriter(cfg)
		if err != nil {
			return err
		}
		probeRemote(ctx, cfg, writer)

		pressure, err := backpressure.New(cfg.Backpressure.StepTable(), cfg.Backpressure.Gradual())
		if err != nil {
			return err
		}
		brk := breaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown.Std())
		engine := syncer.New(st, writer, brk, pressure, cfg.Sync.BatchSize, cfg.Sync.Interval.Std())

		gauge := retention.NewDiskGauge(cfg.Retention.DiskPath)
		keeper := retention.New(st, gauge, retention.Options{
			Threshold:       cfg.Retention.DiskThresholdPercent,
			Interval:        cfg.Retention.CheckInterval.Std(),
			EvictFraction:   cfg.Retention.EvictFraction,
			MaxPasses:       cfg.Retention.MaxPasses,
			ProtectUnsynced: cfg.Retention.ProtectUnsynced,
		})

		sensors := []sensor.Sensor{
			sensor.DiskSpace{Path: cfg.Retention.DiskPath},
			sensor.CPUTemp{},
			sensor.Memory{},
			sensor.Environment{},
		}

		dog := watchdog.FromEnv()
		if dog.Enabled() {
			log.Info("systemd watchdog enabled", "interval", dog.Interval())
		}
		poller := agent.New(cfg.DeviceID, sensors, st, pressure, dog, cfg.Poll.SensorTimeout.Std())

		srv := admin.NewServer(cfg.DeviceID, st, brk, pressure, engine, gauge)
		go func() {
			if err := srv.Start(ctx, cfg.Admin.Listen); err != nil && err != http.ErrServerClosed {
				log.Error("admin server failed", "err", err)
			}
		}()

		go engine.Run(ctx)
		go keeper.Run(ctx)
		go dog.Run(ctx)
		dog.Ready()
		poller.Run(ctx)
		return nil
	},
}

// newRemoteWriter selects the upload transport from config.
func newRemoteWriter(cfg *config.Config) (remote.Writer, error) {
	switch cfg.Remote.Kind {
	case "greptime":
		return remote.NewGreptimeWriter(cfg.Remote.Endpoint, cfg.Remote.Database, cfg.Remote.Table)
	default:
		return remote.NewHTTPClient(cfg.Remote.Endpoint, cfg.Remote.APIKey,
			cfg.Remote.Timeout.Std(), cfg.Remote.BulkTimeout.Std()), nil
	}
}

// probeRemote checks reachability once at startup. Failure is informational:
// the agent buffers locally and the sync loop recovers on its own.
func probeRemote(ctx context.Context, cfg *config.Config, writer remote.Writer) {
	log := logging.FromContext(ctx)
	hc, ok := writer.(*remote.HTTPClient)
	if !ok {
		return
	}
	if err := hc.Health(ctx); err != nil {
		log.Warn("remote unreachable at startup, buffering locally", "endpoint", cfg.Remote.Endpoint, "err", err)
		return
	}
	log.Info("remote reachable", "endpoint", cfg.Remote.Endpoint)
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "config/agent.yaml", "Path to agent configuration YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "schemas/agent.cue", "Path to CUE schema file")
}

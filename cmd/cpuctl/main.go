package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/cpuctl/internal/backend"
	"codeberg.org/mutker/cpuctl/internal/config"
	"codeberg.org/mutker/cpuctl/internal/errors"
	"codeberg.org/mutker/cpuctl/internal/logger"
	"codeberg.org/mutker/cpuctl/internal/pid"
	"codeberg.org/mutker/cpuctl/internal/power"
	"codeberg.org/mutker/cpuctl/internal/store"
	"codeberg.org/mutker/cpuctl/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.IsDebug(), cfg.IsVerbose(), logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("failed to write PID file")
		}
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}

	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context, cfg *config.Config) error {
	ctrl := backend.New(backend.Options{
		ForceSimulated: cfg.Simulate,
		SysfsPath:      cfg.SysfsPath,
	})

	opts := power.Options{
		TickInterval: time.Duration(cfg.Interval) * time.Second,
		Usage:        telemetry.NewSampler().Usage,
	}

	autoScaling := power.DefaultAutoScalingConfig()
	autoScaling.Enabled = cfg.AutoScale
	autoScaling.SurgeThreshold = cfg.SurgeThreshold
	autoScaling.MediumThreshold = cfg.MediumThreshold
	autoScaling.LowThreshold = cfg.LowThreshold
	autoScaling.CooldownSeconds = cfg.CooldownSeconds
	opts.AutoScaling = &autoScaling

	if cfg.Audit {
		repo, err := store.NewRepository(store.Config{DBPath: cfg.Database})
		if err != nil {
			return err
		}
		defer func() {
			if err := repo.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close audit repository")
			}
		}()
		opts.Store = repo
		opts.Audit = repo
	}

	manager := power.NewManager(ctrl, opts)
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Stop()

	ticker := time.NewTicker(time.Duration(cfg.Interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			logStatus(manager.GetStatus())
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func logStatus(status power.Status) {
	logger.Debug().
		Str("level", status.CurrentLevel.String()).
		Float64("frequency_mhz", status.CurrentFrequencyMHz).
		Int("target_min_mhz", status.TargetMinFreqMHz).
		Int("target_max_mhz", status.TargetMaxFreqMHz).
		Str("governor", status.ActiveGovernor).
		Int("active_demands", len(status.ActiveDemands)).
		Bool("auto_scaling", status.AutoScalingEnabled).
		Str("backend", string(status.BackendKind)).
		Bool("dynamic_mode", status.DynamicMode.Enabled).
		Dur("cooldown_remaining", status.CooldownRemaining).
		Msg("")
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"profit_go/internal/api"
	"profit_go/internal/app"
	"profit_go/internal/service"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	once := flag.Bool("once", false, "run one snapshot pass and exit")
	serve := flag.Bool("serve", false, "serve the HTTP API even when disabled in config")
	machines := flag.String("machines", "", "comma-separated machine IDs to restrict the run to")
	computedAt := flag.String("computed-at", "", "RFC3339 override for the snapshot bucket (backfills)")
	flag.Parse()

	opts, err := buildRunOptions(*machines, *computedAt)
	if err != nil {
		slog.Error("❌ Invalid flags", slog.Any("error", err))
		os.Exit(1)
	}

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config
	if *serve {
		cfg.Server.Enabled = true
	}

	// 4. One-shot mode: run the pipeline once and exit. This is also the
	// default when neither the server nor a schedule is configured.
	if *once || (!cfg.Server.Enabled && cfg.Run.Schedule == "") {
		summary, err := bootstrap.Pipeline.Run(ctx, opts)
		if err != nil {
			slog.Error("❌ Snapshot run failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("✨ Snapshot run completed",
			slog.String("run_id", summary.RunID),
			slog.Int("written", summary.SnapshotsWritten),
			slog.Int("skipped", summary.MachinesSkipped))
		return
	}

	// 5. HTTP API
	if cfg.Server.Enabled {
		server := api.NewServer(cfg, bootstrap.Storage, bootstrap.Pipeline, bootstrap.Diffs, slog.Default())
		go func() {
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("❌ API server failed", slog.Any("error", err))
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Stop(shutdownCtx); err != nil {
				slog.Error("API server shutdown failed", slog.Any("error", err))
			}
		}()
		slog.InfoContext(ctx, "✅ API server started", slog.String("addr", cfg.Server.Addr))
	}

	// 6. Scheduled runs
	if cfg.Run.Schedule != "" {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(cfg.Run.Schedule, func() {
			if _, err := bootstrap.Pipeline.Run(ctx, service.RunOptions{}); err != nil {
				slog.Error("Scheduled run failed", slog.Any("error", err))
			}
		})
		if err != nil {
			slog.Error("❌ Invalid schedule", slog.String("schedule", cfg.Run.Schedule), slog.Any("error", err))
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
		slog.InfoContext(ctx, "✅ Scheduler started", slog.String("schedule", cfg.Run.Schedule))
	}

	slog.InfoContext(ctx, "✨ Profit Go fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}

func buildRunOptions(machines, computedAt string) (service.RunOptions, error) {
	var opts service.RunOptions

	if machines != "" {
		for _, part := range strings.Split(machines, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
			if err != nil {
				return opts, err
			}
			opts.MachineIDs = append(opts.MachineIDs, uint(id))
		}
	}

	if computedAt != "" {
		at, err := time.Parse(time.RFC3339, computedAt)
		if err != nil {
			return opts, err
		}
		opts.ComputedAt = &at
	}

	return opts, nil
}

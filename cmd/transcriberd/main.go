// Command transcriberd is the main entry point for the transcriberd
// real-time speech-transcription server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnsnewby/transcriberd/internal/app"
	"github.com/johnsnewby/transcriberd/internal/config"
	"github.com/johnsnewby/transcriberd/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transcriberd: %v\n", err)
		return 1
	}

	// ── Logger ───────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		if updated.LogLevel != old.LogLevel {
			levelVar.Set(slogLevel(updated.LogLevel))
			slog.Info("log level hot-reloaded", "new_level", updated.LogLevel)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("transcriberd starting",
		"config", *configPath,
		"listen", cfg.Listen,
		"log_level", cfg.LogLevel,
		"whisper_model", cfg.WhisperModel,
	)

	printStartupSummary(cfg)

	// ── Application wiring ───────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ──────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║     transcriberd — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Listen           : %-18s ║\n", cfg.Listen)
	fmt.Printf("║  Whisper model     : %-17s ║\n", cfg.WhisperModel)
	fmt.Printf("║  Whisper processes : %-17d ║\n", cfg.WhisperProcesses)
	remote := cfg.WhisperServer
	if remote == "" {
		remote = "(disabled)"
	}
	fmt.Printf("║  Remote server     : %-17s ║\n", truncate(remote, 17))
	recordings := cfg.RecordingsDir
	if recordings == "" {
		recordings = "(disabled)"
	}
	fmt.Printf("║  Recordings dir    : %-17s ║\n", truncate(recordings, 17))
	audit := "(disabled)"
	if cfg.AuditDSN != "" {
		audit = "(configured)"
	}
	fmt.Printf("║  Audit ledger      : %-17s ║\n", audit)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// ── Logger ───────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

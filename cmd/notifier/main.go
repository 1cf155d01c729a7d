package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/api"
	"github.com/bakkerme/free-game-notifier/internal/config"
	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/bakkerme/free-game-notifier/internal/observability/otelx"
	"github.com/bakkerme/free-game-notifier/internal/runner"
	"github.com/bakkerme/free-game-notifier/internal/runner/factory"
	"gopkg.in/yaml.v3"
)

// Levels outside slog's four map onto the nearest one.
const (
	levelTrace    = slog.Level(-8)
	levelCritical = slog.Level(12)
)

func main() {
	env := config.LoadEnv()

	configPath := flag.String("config", env.ConfigPath, "path to notifier document (optional)")
	runOnce := flag.Bool("run-once", env.RunOnce, "run a single check cycle and exit")
	dataDir := flag.String("data-dir", env.DataDir, "directory holding the seen-game lists")
	printReport := flag.Bool("print-report", false, "print the cycle report as YAML after a run-once cycle")
	flag.Parse()
	env.DataDir = *dataDir

	doc, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load document: %v", err)
	}
	doc.ApplyEnv(env)
	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(doc.Notifier.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := otelx.Init(ctx, logger, env.OTel)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	if shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	f := factory.NewFromConfig(logger, &doc.Notifier)
	seen, err := f.NewSeenStore(ctx, &doc.Notifier)
	if err != nil && seen == nil {
		log.Fatalf("failed to open seen store: %v", err)
	}
	defer seen.Close()

	flow, err := f.BuildFlow(doc, seen)
	if err != nil {
		log.Fatalf("failed to build flow: %v", err)
	}
	r, err := runner.New(logger, flow)
	if err != nil {
		log.Fatalf("failed to create runner: %v", err)
	}

	logger.Info("notifier starting",
		"name", doc.Notifier.Name,
		"data_dir", doc.Notifier.DataDir,
		"seen_store", doc.Notifier.SeenStore.Driver,
		"collectors", len(flow.Collectors),
		"run_once", *runOnce,
	)

	if *runOnce {
		report, err := r.RunOnce(ctx)
		if *printReport && report != nil {
			writeReport(report)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("run failed: %v", err)
		}
		return
	}

	if err := r.Start(ctx); err != nil {
		log.Fatalf("failed to start runner: %v", err)
	}
	apiDone := make(chan struct{})
	if addr := doc.Notifier.Status.Listen; addr != "" {
		server := api.NewServer(doc.Notifier.Name, r, logger)
		go func() {
			defer close(apiDone)
			if err := server.Run(ctx, addr); err != nil {
				logger.Error("status api stopped", "error", err)
			}
		}()
	} else {
		close(apiDone)
	}
	<-ctx.Done()
	// No manual check can start a cycle once the server is down.
	<-apiDone
	logger.Info("shutting down, waiting for the running cycle")
	r.Wait()
}

func writeReport(report *core.CycleReport) {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		log.Printf("failed to write report: %v", err)
	}
	_ = enc.Close()
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return levelTrace
	case "debug":
		return slog.LevelDebug
	case "", "info", "success":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical", "fatal":
		return levelCritical
	}
	return slog.LevelInfo
}

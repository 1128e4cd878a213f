// Taskd is the task orchestration daemon.
//
// It serves the task HTTP API with Prometheus metrics and SSE progress
// streams, or, with -mcp, the same operations as MCP tools over stdio.
//
// Configuration comes from an optional YAML file and TASKD_ environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start the HTTP daemon
//	taskd -config taskd.yaml
//
//	# Serve MCP over stdio
//	taskd -mcp
//
//	# Offline run without a model
//	TASKD_LLM_PROVIDER=mock taskd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/config"
	taskhttp "github.com/fyrsmithlabs/taskd/internal/http"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/services"
	"github.com/fyrsmithlabs/taskd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  taskd [-config file] [-mcp]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  taskd version                 Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, *mcpMode); err != nil {
		fmt.Fprintf(os.Stderr, "taskd: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("taskd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run assembles the services and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, mcpMode bool) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg.Observability, mcpMode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	svc, err := services.New(ctx, cfg, zl, services.Options{})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			zl.Warn("closing services", zap.Error(err))
		}
	}()

	if mcpMode {
		return runStdio(ctx, svc, zl)
	}
	return serveHTTP(ctx, cfg, svc, zl)
}

func serveHTTP(ctx context.Context, cfg *config.Config, svc *services.Services, logger *zap.Logger) error {
	svc.Dispatcher.OnDone(func(out *orchestrator.Outcome, err error) {
		if err != nil {
			logger.Warn("background task failed", zap.Error(err))
			return
		}
		logger.Info("background task finished",
			zap.String("agent_id", out.AgentID),
			zap.String("task_id", out.TaskID),
			zap.String("status", string(out.Status)))
	})
	svc.Dispatcher.Start(ctx)

	metrics := promhttp.HandlerFor(prometheus.Gatherers{svc.Prometheus, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
	srv, err := taskhttp.NewServer(taskhttp.Deps{
		Runner:     svc.Orchestrator,
		Store:      svc.Store,
		Dispatcher: svc.Dispatcher,
		Events:     svc.Subscriber,
		Summarizer: svc.Compression,
		Budget:     cfg.Compression.Budget,
		Metrics:    metrics,
	}, logger.Named("http"), &taskhttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info("Starting taskd",
		zap.String("version", version),
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := svc.Dispatcher.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// initLogger maps the observability section onto the logging config. MCP
// mode keeps stdout free for the protocol.
func initLogger(o config.ObservabilityConfig, mcpMode bool) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(o.LogLevel)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = o.LogFormat
	lc.Stderr = mcpMode
	lc.OTEL = o.EnableTelemetry
	lc.Fields["service"] = o.ServiceName
	lc.Fields["version"] = version
	return logging.NewLogger(lc, global.GetLoggerProvider())
}

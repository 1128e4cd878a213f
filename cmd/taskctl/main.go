// Package main implements taskctl, a CLI that runs and inspects tasks
// directly against a local task store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/services"
)

var (
	// configPath is an optional YAML config file
	configPath string
	// storePath overrides store.base_path
	storePath string
	// agentID scopes every command
	agentID string
	// verbose enables debug logging on stderr
	verbose bool
	// version information
	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "Run and inspect taskd tasks",
	Long: `taskctl plans and runs tasks, answers pending confirmations and manages
task artifacts in a local task store.

Configuration is read from --config and TASKD_ environment variables, the
same way the taskd daemon reads it. TASKD_LLM_PROVIDER=mock runs offline.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "task store directory (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&agentID, "agent", "a", "cli", "agent id owning the tasks")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

// loadConfig reads config and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if storePath != "" {
		cfg.Store.BasePath = storePath
	}
	return cfg, nil
}

func newLogger(format string) (*zap.Logger, error) {
	lc := logging.NewDefaultConfig()
	lc.Format = "console"
	if format == "json" {
		lc.Format = format
	}
	lc.Stderr = true
	lc.Caller = false
	lc.Level = zapcore.WarnLevel
	if verbose {
		lc.Level = zapcore.DebugLevel
	}
	logger, err := logging.NewLogger(lc, nil)
	if err != nil {
		return nil, err
	}
	return logger.Underlying(), nil
}

// withServices assembles the services for one command and closes them after.
func withServices(ctx context.Context, fn func(*services.Services) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Observability.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	svc, err := services.New(ctx, cfg, logger, services.Options{})
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

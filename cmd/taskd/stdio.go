package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/mcp"
	"github.com/fyrsmithlabs/taskd/internal/services"
)

// runStdio serves the task tools over MCP stdio. Tasks run in-process on
// the same store the HTTP daemon would use.
func runStdio(ctx context.Context, svc *services.Services, logger *zap.Logger) error {
	srv, err := mcp.NewServer(&mcp.Config{
		Name:         "taskd",
		Version:      version,
		DefaultAgent: "mcp",
		Logger:       logger.Named("mcp"),
	}, svc.Orchestrator, svc.Store)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}

	// stdout carries the protocol
	fmt.Fprintf(os.Stderr, "taskd mcp mode started (store %s)\n", svc.Store.BasePath())

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	logger.Info("mcp server shutdown complete")
	return nil
}

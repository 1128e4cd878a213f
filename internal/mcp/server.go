// Package mcp exposes task runs as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
)

// Runner runs and resumes tasks.
type Runner interface {
	Run(ctx context.Context, req plan.Request) (*orchestrator.Outcome, error)
	Resume(ctx context.Context, agentID, taskID, token, choice string) (*orchestrator.Outcome, error)
}

// TaskStore reads task state.
type TaskStore interface {
	ListTasks(ctx context.Context, agentID string) ([]taskcontext.TaskInfo, error)
	GetSummary(ctx context.Context, agentID, taskID string) (*taskcontext.Summary, error)
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "taskd")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// DefaultAgent is used when a call names no agent (default: "mcp")
	DefaultAgent string

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:         "taskd",
		Version:      "dev",
		DefaultAgent: "mcp",
		Logger:       zap.NewNop(),
	}
}

// Server serves the task tools over MCP.
type Server struct {
	mcp     *mcp.Server
	runner  Runner
	store   TaskStore
	metrics *Metrics
	agent   string
	logger  *zap.Logger
}

// NewServer creates an MCP server and registers its tools.
func NewServer(cfg *Config, runner Runner, store TaskStore) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DefaultAgent == "" {
		cfg.DefaultAgent = "mcp"
	}
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		runner:  runner,
		store:   store,
		metrics: NewMetrics(cfg.Logger),
		agent:   cfg.DefaultAgent,
		logger:  cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx ends or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves one session on transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}

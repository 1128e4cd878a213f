// Package http serves the taskd REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/events"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
)

// Runner runs and resumes tasks synchronously.
type Runner interface {
	Run(ctx context.Context, req plan.Request) (*orchestrator.Outcome, error)
	Resume(ctx context.Context, agentID, taskID, token, choice string) (*orchestrator.Outcome, error)
}

// Submitter queues tasks for background execution.
type Submitter interface {
	Submit(req plan.Request) (string, error)
}

// TaskStore is the read and maintenance side of the task context store.
type TaskStore interface {
	ListTasks(ctx context.Context, agentID string) ([]taskcontext.TaskInfo, error)
	GetSummary(ctx context.Context, agentID, taskID string) (*taskcontext.Summary, error)
	Export(ctx context.Context, agentID, taskID string) ([]byte, error)
	Import(ctx context.Context, agentID string, data []byte, overwrite bool) (*taskcontext.TaskContext, error)
	Compress(ctx context.Context, agentID, taskID string, budget int, sum taskcontext.Summarizer) (*taskcontext.CompressResult, error)
}

// Deps are the collaborators behind the API. Dispatcher, Events, Summarizer
// and Metrics are optional.
type Deps struct {
	Runner     Runner
	Store      TaskStore
	Dispatcher Submitter
	Events     events.Subscriber
	Summarizer taskcontext.Summarizer
	Budget     int
	Metrics    http.Handler
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if deps.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))

			err := next(c)
			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", id),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics))
	}

	v1 := s.echo.Group("/api/v1")
	tasks := v1.Group("/agents/:agent/tasks")
	tasks.POST("", s.handleRun)
	tasks.GET("", s.handleList)
	tasks.POST("/import", s.handleImport)
	tasks.GET("/:task", s.handleSummary)
	tasks.POST("/:task/resume", s.handleResume)
	tasks.POST("/:task/compress", s.handleCompress)
	tasks.GET("/:task/export", s.handleExport)
	tasks.GET("/:task/events", s.handleEvents)
}

// Echo exposes the router for additional routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/compression"
	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/events"
	"github.com/fyrsmithlabs/taskd/internal/executor"
	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/prompts"
	"github.com/fyrsmithlabs/taskd/internal/redact"
	"github.com/fyrsmithlabs/taskd/internal/solver"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
	"github.com/fyrsmithlabs/taskd/internal/tools"
)

// Options override components New would otherwise build from config.
type Options struct {
	// Generator replaces the configured LLM provider.
	Generator llm.Generator

	// Searcher replaces the DuckDuckGo client.
	Searcher tools.Searcher

	// Registerer receives the orchestrator collectors. Nil uses a fresh
	// registry exposed as Services.Prometheus.
	Registerer prometheus.Registerer
}

// Services holds every assembled component.
type Services struct {
	Config       *config.Config
	Store        *taskcontext.Store
	Prompts      *prompts.Set
	Generator    llm.Generator
	Registry     *tools.Registry
	Orchestrator *orchestrator.Orchestrator
	Dispatcher   *orchestrator.Dispatcher
	Compression  *compression.Service
	Metrics      *orchestrator.Metrics
	Prometheus   *prometheus.Registry
	Publisher    events.Publisher
	Subscriber   events.Subscriber

	closers []func() error
}

// New builds the components described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Services, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Services{Config: cfg}

	store, err := taskcontext.NewStore(cfg.Store, taskcontext.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("opening task store: %w", err)
	}
	s.Store = store

	set, err := prompts.Load(cfg.Prompts.File)
	if err != nil {
		return nil, fmt.Errorf("loading prompts: %w", err)
	}
	s.Prompts = set

	s.Generator = opts.Generator
	if s.Generator == nil {
		s.Generator, err = newGenerator(cfg.LLM, logger.Named("llm"))
		if err != nil {
			return nil, err
		}
	}

	searcher := opts.Searcher
	if searcher == nil {
		searcher, err = tools.NewDuckDuckGo(cfg.Search.MaxResults, cfg.Search.UserAgent)
		if err != nil {
			return nil, fmt.Errorf("creating search client: %w", err)
		}
	}

	if err := s.initEvents(cfg.Events, logger.Named("events")); err != nil {
		return nil, err
	}

	reg := opts.Registerer
	if reg == nil {
		s.Prometheus = prometheus.NewRegistry()
		reg = s.Prometheus
	}
	s.Metrics = orchestrator.NewMetrics(reg)

	s.Registry = tools.NewDefaultRegistry(tools.Deps{
		Generator: s.Generator,
		Searcher:  searcher,
		Prompts:   set,
	})

	execOpts := []executor.Option{
		executor.WithLogger(logger.Named("executor")),
		executor.WithPublisher(s.Publisher),
	}
	if cfg.Redaction.Enabled {
		r, err := redact.New(cfg.Redaction.Allow)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating redactor: %w", err)
		}
		execOpts = append(execOpts, executor.WithRedactor(r))
	}

	planner := plan.NewPlanner(s.Generator, store, s.Registry, set, logger.Named("planner"))
	exec := executor.New(s.Registry, store, executor.ConfigFrom(cfg.Executor), execOpts...)
	solve := solver.New(s.Generator, store, set, cfg.Executor.SubstitutionLimit, logger.Named("solver"))

	s.Orchestrator = orchestrator.New(planner, exec, solve, store,
		orchestrator.WithPublisher(s.Publisher),
		orchestrator.WithMetrics(s.Metrics),
		orchestrator.WithLogger(logger.Named("orchestrator")),
	)
	s.Dispatcher = orchestrator.NewDispatcher(s.Orchestrator, cfg.Dispatcher, s.Metrics, logger.Named("dispatcher"))

	s.Compression, err = compression.NewService(s.Generator, set, logger.Named("compression"))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating compression service: %w", err)
	}

	logger.Info("services ready",
		zap.String("store", store.BasePath()),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("events", cfg.Events.Enabled),
		zap.Bool("redaction", cfg.Redaction.Enabled))
	return s, nil
}

// initEvents connects to NATS when enabled and falls back to the in-process
// broker otherwise, so SSE relays work either way.
func (s *Services) initEvents(cfg config.EventsConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		mem := events.NewMemory()
		s.Publisher = mem
		s.Subscriber = mem
		return nil
	}
	nc, err := events.Connect(cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	s.Publisher = nc
	s.Subscriber = nc
	s.closers = append(s.closers, nc.Close)
	return nil
}

// Close releases connections opened by New.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Package llm provides the text-generation capability used by the planner,
// the solver, the prompt-driven tools and artifact compression.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/taskd/internal/config"
)

// Generator produces text for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var errEmptyResponse = errors.New("empty response from model")

// ClientConfig tunes retries, rate limiting and per-attempt timeouts.
type ClientConfig struct {
	MaxRetries     int
	RateLimit      float64 // requests per second, 0 means unlimited
	Burst          int
	Timeout        time.Duration
	InitialBackoff time.Duration
}

// ClientConfigFrom maps the llm config section.
func ClientConfigFrom(cfg config.LLMConfig) ClientConfig {
	return ClientConfig{
		MaxRetries: cfg.MaxRetries,
		RateLimit:  cfg.RateLimit,
		Burst:      cfg.Burst,
		Timeout:    cfg.Timeout.Duration(),
	}
}

// Client wraps a langchaingo model with rate limiting and exponential
// backoff. Exhausted retries surface as *GenerationError.
type Client struct {
	model   llms.Model
	cfg     ClientConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a Client around model.
func NewClient(model llms.Model, cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	return &Client{
		model:   model,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// NewOpenAIModel builds an OpenAI-compatible langchaingo model. BaseURL lets
// it target any compatible endpoint.
func NewOpenAIModel(cfg config.LLMConfig) (llms.Model, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.APIKey.IsSet() {
		opts = append(opts, openai.WithToken(cfg.APIKey.Value()))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return model, nil
}

// Generate sends prompt to the model, retrying transient failures.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var attempts atomic.Int32

	op := func() (string, error) {
		attempts.Add(1)
		if err := c.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		callCtx := ctx
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}

		out, err := llms.GenerateFromSinglePrompt(callCtx, c.model, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(ctx.Err())
			}
			return "", err
		}
		if strings.TrimSpace(out) == "" {
			return "", errEmptyResponse
		}
		return out, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("generation attempt failed, retrying",
				zap.Error(err),
				zap.Duration("backoff", next))
		}),
	)
	if err != nil {
		return "", &GenerationError{Op: "generate", Attempts: int(attempts.Load()), Err: err}
	}
	return out, nil
}

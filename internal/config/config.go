// Package config provides configuration loading for taskd.
//
// Values come from three layers, highest precedence first: environment
// variables prefixed with TASKD_, an optional YAML file, and the defaults
// returned by Default.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the complete taskd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Store         StoreConfig         `koanf:"store"`
	LLM           LLMConfig           `koanf:"llm"`
	Executor      ExecutorConfig      `koanf:"executor"`
	Compression   CompressionConfig   `koanf:"compression"`
	Search        SearchConfig        `koanf:"search"`
	Events        EventsConfig        `koanf:"events"`
	Dispatcher    DispatcherConfig    `koanf:"dispatcher"`
	Prompts       PromptsConfig       `koanf:"prompts"`
	Redaction     RedactionConfig     `koanf:"redaction"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StoreConfig configures the file-backed task context store.
type StoreConfig struct {
	BasePath string `koanf:"base_path"`
}

// LLMConfig configures the text-generation backend.
type LLMConfig struct {
	Provider   string   `koanf:"provider"`
	Model      string   `koanf:"model"`
	BaseURL    string   `koanf:"base_url"`
	APIKey     Secret   `koanf:"api_key"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
	RateLimit  float64  `koanf:"rate_limit"` // requests per second
	Burst      int      `koanf:"burst"`
}

// ExecutorConfig configures step execution.
type ExecutorConfig struct {
	StepTimeout Duration `koanf:"step_timeout"`
	// SubstitutionLimit bounds each substituted result, in runes.
	SubstitutionLimit int `koanf:"substitution_limit"`
	// PreviewLength bounds the result excerpt written to progress records.
	PreviewLength int `koanf:"preview_length"`
}

// CompressionConfig configures opt-in artifact compression.
type CompressionConfig struct {
	Budget int `koanf:"budget"` // total characters across all artifacts
}

// SearchConfig configures the web search tool.
type SearchConfig struct {
	MaxResults int    `koanf:"max_results"`
	UserAgent  string `koanf:"user_agent"`
}

// EventsConfig configures progress event publishing.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Prefix  string `koanf:"prefix"`
}

// DispatcherConfig configures the async task worker pool.
type DispatcherConfig struct {
	Workers   int `koanf:"workers"`
	QueueSize int `koanf:"queue_size"`
}

// PromptsConfig points at an optional TOML file overriding built-in prompts.
type PromptsConfig struct {
	File string `koanf:"file"`
}

// RedactionConfig controls secret scrubbing of tool output.
type RedactionConfig struct {
	Enabled bool     `koanf:"enabled"`
	Allow   []string `koanf:"allow"`
}

// ObservabilityConfig configures logging and OpenTelemetry export.
type ObservabilityConfig struct {
	LogLevel        string  `koanf:"log_level"`
	LogFormat       string  `koanf:"log_format"`
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	ServiceName     string  `koanf:"service_name"`
	SamplingRate    float64 `koanf:"sampling_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Store: StoreConfig{
			BasePath: "./agent_contexts",
		},
		LLM: LLMConfig{
			Provider:   "openai",
			Model:      "gpt-4o-mini",
			Timeout:    Duration(60 * time.Second),
			MaxRetries: 3,
			RateLimit:  2,
			Burst:      4,
		},
		Executor: ExecutorConfig{
			StepTimeout:       Duration(2 * time.Minute),
			SubstitutionLimit: 100,
			PreviewLength:     200,
		},
		Compression: CompressionConfig{
			Budget: 10000,
		},
		Search: SearchConfig{
			MaxResults: 5,
			UserAgent:  "taskd/1.0",
		},
		Events: EventsConfig{
			URL:    "nats://localhost:4222",
			Prefix: "tasks",
		},
		Dispatcher: DispatcherConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Redaction: RedactionConfig{
			Enabled: true,
		},
		Observability: ObservabilityConfig{
			LogLevel:     "info",
			LogFormat:    "json",
			Endpoint:     "localhost:4317",
			Protocol:     "grpc",
			Insecure:     true,
			ServiceName:  "taskd",
			SamplingRate: 1.0,
		},
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if strings.TrimSpace(c.Store.BasePath) == "" {
		errs = append(errs, errors.New("store.base_path is required"))
	}
	switch c.LLM.Provider {
	case "openai", "mock":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be openai or mock, got %q", c.LLM.Provider))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries must be >= 0, got %d", c.LLM.MaxRetries))
	}
	if c.LLM.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("llm.rate_limit must be >= 0, got %v", c.LLM.RateLimit))
	}
	if c.Executor.StepTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("executor.step_timeout must be positive"))
	}
	if c.Executor.SubstitutionLimit <= 0 {
		errs = append(errs, errors.New("executor.substitution_limit must be positive"))
	}
	if c.Compression.Budget <= 0 {
		errs = append(errs, errors.New("compression.budget must be positive"))
	}
	if c.Events.Enabled && c.Events.URL == "" {
		errs = append(errs, errors.New("events.url is required when events are enabled"))
	}
	if c.Dispatcher.Workers <= 0 {
		errs = append(errs, errors.New("dispatcher.workers must be positive"))
	}
	if c.Dispatcher.QueueSize < 0 {
		errs = append(errs, errors.New("dispatcher.queue_size must be >= 0"))
	}
	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("observability.log_format must be json or console, got %q", c.Observability.LogFormat))
	}
	switch c.Observability.Protocol {
	case "grpc", "http/protobuf":
	default:
		errs = append(errs, fmt.Errorf("observability.protocol must be grpc or http/protobuf, got %q", c.Observability.Protocol))
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("observability.sampling_rate must be between 0 and 1, got %v", c.Observability.SamplingRate))
	}

	return errors.Join(errs...)
}

package compression

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/prompts"
)

const tracerName = "github.com/fyrsmithlabs/taskd/internal/compression"
const meterName = "taskd.compression"

// Algorithm names the path that produced a summary.
type Algorithm string

const (
	AlgorithmAbstractive Algorithm = "abstractive"
	AlgorithmExtractive  Algorithm = "extractive"
)

// Service summarizes artifacts. It satisfies taskcontext.Summarizer.
type Service struct {
	gen      llm.Generator
	template string
	logger   *zap.Logger

	tracer trace.Tracer

	operations metric.Int64Counter
	failures   metric.Int64Counter
	duration   metric.Float64Histogram
	ratio      metric.Float64Histogram
}

// NewService creates a Service. gen may be nil to use extraction only.
func NewService(gen llm.Generator, set *prompts.Set, logger *zap.Logger) (*Service, error) {
	if set == nil {
		set = prompts.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		gen:      gen,
		template: set.Compress,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
	if err := s.initMetrics(otel.Meter(meterName)); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return s, nil
}

// Summarize returns content shortened to at most maxLength characters.
func (s *Service) Summarize(ctx context.Context, content string, maxLength int) (string, error) {
	if maxLength <= 0 {
		return "", errors.New("max length must be positive")
	}
	original := len([]rune(content))

	ctx, span := s.tracer.Start(ctx, "compression.summarize", trace.WithAttributes(
		attribute.Int("content_length", original),
		attribute.Int("max_length", maxLength),
	))
	defer span.End()

	if original <= maxLength {
		return content, nil
	}

	start := time.Now()
	out, algo := s.summarize(ctx, content, maxLength)
	out = clip(out, maxLength)
	if strings.TrimSpace(out) == "" {
		s.failures.Add(ctx, 1)
		span.RecordError(errEmptySummary)
		return "", errEmptySummary
	}

	attrs := metric.WithAttributes(attribute.String("algorithm", string(algo)))
	compressed := len([]rune(out))
	s.operations.Add(ctx, 1, attrs)
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	s.ratio.Record(ctx, float64(original)/float64(compressed), attrs)
	span.SetAttributes(
		attribute.String("algorithm", string(algo)),
		attribute.Int("compressed_length", compressed),
	)
	return out, nil
}

var errEmptySummary = errors.New("summary is empty")

func (s *Service) summarize(ctx context.Context, content string, maxLength int) (string, Algorithm) {
	if s.gen != nil {
		prompt := prompts.Render(s.template, map[string]string{
			"text":       content,
			"max_length": strconv.Itoa(maxLength),
		})
		out, err := s.gen.Generate(ctx, prompt)
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out), AlgorithmAbstractive
		}
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("algorithm", string(AlgorithmAbstractive))))
		s.logger.Warn("abstractive compression failed, using extraction", zap.Error(err))
	}
	return Extract(content, maxLength), AlgorithmExtractive
}

func (s *Service) initMetrics(meter metric.Meter) error {
	var err error

	s.operations, err = meter.Int64Counter(
		"taskd.compression.operations_total",
		metric.WithDescription("Artifacts summarized"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operations counter: %w", err)
	}

	s.failures, err = meter.Int64Counter(
		"taskd.compression.errors_total",
		metric.WithDescription("Failed summarization attempts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create errors counter: %w", err)
	}

	s.duration, err = meter.Float64Histogram(
		"taskd.compression.duration_seconds",
		metric.WithDescription("Time spent summarizing one artifact"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 30),
	)
	if err != nil {
		return fmt.Errorf("failed to create duration histogram: %w", err)
	}

	s.ratio, err = meter.Float64Histogram(
		"taskd.compression.ratio",
		metric.WithDescription("Original over compressed length"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(1, 1.5, 2, 3, 5, 10, 20),
	)
	if err != nil {
		return fmt.Errorf("failed to create ratio histogram: %w", err)
	}
	return nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

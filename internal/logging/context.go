// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type taskCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// TaskRef identifies the agent/task pair a run belongs to.
type TaskRef struct {
	AgentID string
	TaskID  string
}

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if ref, ok := TaskFromContext(ctx); ok {
		fields = append(fields, zap.String("agent.id", ref.AgentID))
		if ref.TaskID != "" {
			fields = append(fields, zap.String("task.id", ref.TaskID))
		}
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

// WithTask records the agent and task ids on ctx.
func WithTask(ctx context.Context, agentID, taskID string) context.Context {
	return context.WithValue(ctx, taskCtxKey{}, TaskRef{AgentID: agentID, TaskID: taskID})
}

// TaskFromContext returns the ids recorded by WithTask.
func TaskFromContext(ctx context.Context) (TaskRef, bool) {
	ref, ok := ctx.Value(taskCtxKey{}).(TaskRef)
	return ref, ok
}

// WithRequestID records the HTTP request id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the id recorded by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger stored by WithLogger, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return New(nil)
}

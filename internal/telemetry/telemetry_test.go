package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/taskd/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.False(t, tel.Enabled())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg.Protocol = "carrier"
	assert.Error(t, cfg.Validate())

	cfg.Protocol = "grpc"
	cfg.SamplingRate = 2
	assert.Error(t, cfg.Validate())

	cfg.SamplingRate = 1
	cfg.Endpoint = ""
	assert.Error(t, cfg.Validate())
}

func TestFromObservability(t *testing.T) {
	o := config.Default().Observability
	o.EnableTelemetry = true
	o.Protocol = "http/protobuf"

	cfg := FromObservability(o, "1.2.3")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.NoError(t, cfg.Validate())
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("collector:4318"))
}

func TestTestTelemetry_RecordsSpansAndCounters(t *testing.T) {
	tt := NewTestTelemetry()
	tt.Install(t)
	ctx := context.Background()

	_, span := otel.Tracer("test").Start(ctx, "plan")
	span.SetAttributes(attribute.Int("steps", 2))
	span.End()

	counter, err := otel.Meter("test").Int64Counter("taskd.test.calls")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	tt.AssertSpanExists(t, "plan")
	tt.AssertSpanAttribute(t, "plan", "steps", int64(2))
	assert.Equal(t, int64(3), tt.CounterValue(t, "taskd.test.calls"))
}

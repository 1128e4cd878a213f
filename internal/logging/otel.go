// internal/logging/otel.go
package logging

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

const instrumentationName = "github.com/fyrsmithlabs/taskd"

// newOTELCore bridges zap entries into the OpenTelemetry log pipeline.
func newOTELCore(provider log.LoggerProvider) zapcore.Core {
	return otelzap.NewCore(instrumentationName, otelzap.WithLoggerProvider(provider))
}

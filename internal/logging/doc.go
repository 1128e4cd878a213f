// Package logging provides structured logging for taskd.
//
// Logger wraps Zap with context-aware methods. Every call prepends the
// correlation fields found in the context: the OpenTelemetry trace and span
// ids, the agent and task a run belongs to, and the request id assigned by
// the HTTP layer.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithTask(ctx, "agent-1", "task-42")
//	logger.Info(ctx, "step completed", zap.String("step", "s1"))
//
// Components that only need a plain *zap.Logger take one in their
// constructor; Underlying bridges the two.
package logging

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/config"
)

// NATS publishes and subscribes through a NATS connection.
type NATS struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
	owned  bool
}

// Connect dials the configured server.
func Connect(cfg config.EventsConfig, logger *zap.Logger) (*NATS, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("taskd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}
	n := NewNATS(nc, cfg.Prefix, logger)
	n.owned = true
	return n, nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn, prefix string, logger *zap.Logger) *NATS {
	if prefix == "" {
		prefix = "tasks"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATS{nc: nc, prefix: prefix, logger: logger}
}

// Publish sends ev as JSON.
func (n *NATS) Publish(_ context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := Subject(n.prefix, ev)
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe streams the events of one task until ctx is done.
func (n *NATS) Subscribe(ctx context.Context, agentID, taskID string) (<-chan Event, error) {
	msgs := make(chan *nats.Msg, 32)
	sub, err := n.nc.ChanSubscribe(TaskSubject(n.prefix, agentID, taskID), msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Event, 32)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				var ev Event
				if err := json.Unmarshal(msg.Data, &ev); err != nil {
					n.logger.Warn("dropping malformed event", zap.String("subject", msg.Subject), zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Flush waits until the server has processed everything published so far.
func (n *NATS) Flush() error {
	return n.nc.Flush()
}

// Close drains and closes a connection opened by Connect.
func (n *NATS) Close() error {
	if !n.owned {
		return nil
	}
	return n.nc.Drain()
}

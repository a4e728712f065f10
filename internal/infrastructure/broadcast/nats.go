package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
)

// natsSubjectPrefix namespaces alert subjects on the shared broker.
const natsSubjectPrefix = "alerts"

// NATSTransport mirrors hub publishes onto NATS subjects so dashboards
// attached to other nodes receive them. Topic "tenant:{id}" maps to subject
// "alerts.tenant.{id}".
type NATSTransport struct {
	conn   *nats.Conn
	logger *zap.Logger
}

func NewNATSTransport(url string, logger *zap.Logger) (*NATSTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSTransport{conn: conn, logger: logger}, nil
}

func (t *NATSTransport) PublishAlert(_ context.Context, topic string, msg alert.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("alert encode: %w", err)
	}
	subject := natsSubjectPrefix + "." + strings.ReplaceAll(topic, ":", ".")
	if err := t.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close drains in-flight publishes before disconnecting.
func (t *NATSTransport) Close() {
	if err := t.conn.Drain(); err != nil {
		t.logger.Warn("nats drain failed", zap.Error(err))
	}
}

package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is the subject prefix for published events; the
// session id is appended, e.g. swarmd.events.<session-id>.
const DefaultSubjectPrefix = "swarmd.events"

// NATSEmitter publishes events as JSON to a per-session NATS subject.
// Publish writes to the client's internal buffer, so emission never
// blocks the orchestration loop; publish failures are logged and
// dropped.
type NATSEmitter struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewNATSEmitter creates a NATS-backed emitter.
func NewNATSEmitter(conn *nats.Conn, logger *zap.Logger) (*NATSEmitter, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSEmitter{conn: conn, prefix: DefaultSubjectPrefix, logger: logger}, nil
}

// Emit publishes the event to <prefix>.<session id>.
func (n *NATSEmitter) Emit(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("failed to marshal event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	subject := fmt.Sprintf("%s.%s", n.prefix, event.SessionID)
	if err := n.conn.Publish(subject, payload); err != nil {
		n.logger.Warn("failed to publish event",
			zap.String("subject", subject),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

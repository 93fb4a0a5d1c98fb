package publisher

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"line-monitor/internal/scheduler"
)

// MessagePublisher is satisfied by common/mqtt.Client
type MessagePublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTPublisher publishes each successful snapshot as a retained message
type MQTTPublisher struct {
	client MessagePublisher
	topic  string
	qos    byte
	logger *zap.Logger
}

func NewMQTTPublisher(client MessagePublisher, topic string, qos byte, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  topic,
		qos:    qos,
		logger: logger,
	}
}

func (p *MQTTPublisher) OnRefresh(_ context.Context, r scheduler.Refresh) {
	if r.Err != nil {
		return
	}
	payload, err := json.Marshal(r.Snapshot)
	if err != nil {
		p.logger.Error("Failed to marshal snapshot", zap.Error(err))
		return
	}
	if err := p.client.Publish(p.topic, p.qos, true, payload); err != nil {
		p.logger.Error("Failed to publish snapshot to mqtt",
			zap.String("topic", p.topic),
			zap.String("run_id", r.RunID),
			zap.Error(err),
		)
	}
}

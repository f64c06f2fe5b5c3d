package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"kakioki/internal/domain"
	"kakioki/internal/metrics"
)

// Publisher encodes conversation events onto their thread topics.
type Publisher struct {
	bus     domain.RealtimeBus
	log     *zap.Logger
	metrics *metrics.Metrics
	ceiling int
}

// NewPublisher wraps b. A non-positive ceiling uses DefaultPayloadCeiling.
func NewPublisher(b domain.RealtimeBus, log *zap.Logger, m *metrics.Metrics, ceiling int) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if ceiling <= 0 {
		ceiling = DefaultPayloadCeiling
	}
	return &Publisher{bus: b, log: log, metrics: metrics.OrNop(m), ceiling: ceiling}
}

// PublishMessage publishes evt, trimmed to the ceiling.
func (p *Publisher) PublishMessage(ctx context.Context, evt domain.MessageEvent) error {
	payload, trimmed, err := TrimMessageEvent(evt, p.ceiling)
	if err != nil {
		return fmt.Errorf("encode message event: %w", err)
	}
	if trimmed {
		p.log.Debug("message event trimmed",
			zap.String("thread_id", evt.ThreadID.String()),
			zap.String("client_message_id", evt.ClientMessageID),
		)
	}
	p.metrics.PublishedEvents.WithLabelValues(string(domain.EventMessage), strconv.FormatBool(trimmed)).Inc()
	return p.bus.Publish(ctx, MessageTopic(evt.ThreadID), payload)
}

func (p *Publisher) PublishStatus(ctx context.Context, evt domain.StatusEvent) error {
	evt.Type = domain.EventStatus
	return p.publish(ctx, StatusTopic(evt.ThreadID), evt.Type, evt)
}

func (p *Publisher) PublishControl(ctx context.Context, evt domain.ControlEvent) error {
	return p.publish(ctx, ControlTopic(evt.ThreadID), evt.Type, evt)
}

func (p *Publisher) publish(ctx context.Context, topic string, kind domain.EventType, evt any) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}
	p.metrics.PublishedEvents.WithLabelValues(string(kind), "false").Inc()
	return p.bus.Publish(ctx, topic, payload)
}

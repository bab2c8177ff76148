// Package kafka bridges notifications across service instances. Broadcasts
// are produced to a topic and every instance relays the topic into its local
// hub, so websocket listeners see events created on any instance.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"catalog/internal/notify"
	"catalog/internal/platform/metrics"
)

// Publisher implements the service notifier by producing to Kafka. Produce is
// asynchronous; delivery errors are logged from the callback.
type Publisher struct {
	client  *kgo.Client
	topic   string
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewPublisher(brokers []string, topic string, logger *slog.Logger, m *metrics.Metrics) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:  client,
		topic:   topic,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}, nil
}

func (p *Publisher) Broadcast(event string, payload any) {
	value, err := json.Marshal(notify.Message{
		Event:     event,
		Data:      payload,
		Timestamp: p.now().UTC(),
	})
	if err != nil {
		p.metrics.IncrementFanoutFailure("notifier")
		p.logger.Error("failed to encode notification", "event", event, "error", err)
		return
	}

	record := &kgo.Record{Topic: p.topic, Key: []byte(event), Value: value}
	p.client.Produce(context.Background(), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.metrics.IncrementFanoutFailure("notifier")
			p.logger.Warn("failed to publish notification",
				"event", event,
				"topic", r.Topic,
				"error", err,
			)
			return
		}
		p.metrics.IncrementNotificationSent(event)
	})
}

// Close flushes buffered records, bounded by ctx, then closes the client.
func (p *Publisher) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}

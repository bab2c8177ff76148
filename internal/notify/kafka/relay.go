package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"catalog/internal/notify"
)

// Relay consumes the notification topic from its latest offset and
// republishes every message to the local hub. Messages produced while the
// relay was down are never replayed.
type Relay struct {
	client *kgo.Client
	hub    *notify.Hub
	logger *slog.Logger
}

type wireMessage struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewRelay(brokers []string, topic string, hub *notify.Hub, logger *slog.Logger) (*Relay, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, hub: hub, logger: logger}, nil
}

// Run polls until ctx is cancelled. It always returns nil on cancellation.
func (r *Relay) Run(ctx context.Context) error {
	defer r.client.Close()

	for {
		fetches := r.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) {
				return nil
			}
			r.logger.Warn("notification relay fetch error",
				"topic", fe.Topic,
				"partition", fe.Partition,
				"error", fe.Err,
			)
		}
		fetches.EachRecord(r.handle)
	}
}

func (r *Relay) handle(rec *kgo.Record) {
	var msg wireMessage
	if err := json.Unmarshal(rec.Value, &msg); err != nil {
		// Malformed records are skipped; redelivery would not fix them.
		r.logger.Warn("dropping undecodable notification",
			"partition", rec.Partition,
			"offset", rec.Offset,
			"error", err,
		)
		return
	}
	r.hub.Publish(notify.Message{
		Event:     msg.Event,
		Data:      msg.Data,
		Timestamp: msg.Timestamp,
	})
}

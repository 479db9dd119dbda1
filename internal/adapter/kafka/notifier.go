package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/weather-mail-etl/internal/config"
	"github.com/couchcryptid/weather-mail-etl/internal/domain"
)

// Notifier announces converted files on a Kafka topic.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured notification topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes one conversion record, keyed by the attachment file name.
func (n *Notifier) Notify(ctx context.Context, c domain.Conversion) error {
	msg, err := serializeToMessage(c)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish conversion %s: %w", c.FileName, err)
	}
	n.logger.Debug("conversion published", "file", c.FileName, "topic", n.writer.Topic)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a Conversion into a Kafka message.
func serializeToMessage(c domain.Conversion) (kafkago.Message, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize conversion: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(c.FileName),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "format", Value: []byte(c.Format)},
			{Key: "run_id", Value: []byte(c.RunID)},
			{Key: "processed_at", Value: []byte(c.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}

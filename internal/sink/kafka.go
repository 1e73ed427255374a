package sink

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"market-voice-ledger/internal/config"
)

// Kafka publishes operation payloads to a transactions topic. When disabled
// (no brokers configured) it degrades to log-only delivery, which keeps the
// queue exercisable in development.
type Kafka struct {
	writer    *kafka.Writer
	topic     string
	principal string
	enabled   bool
}

// NewKafka creates the Kafka sink from configuration.
func NewKafka(cfg config.KafkaConfig) *Kafka {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, sink in log-only mode")
		return &Kafka{
			topic:     cfg.Topic,
			principal: cfg.Principal,
			enabled:   false,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("principal", cfg.Principal).
		Msg("Kafka sink initialized")

	return &Kafka{
		writer:    writer,
		topic:     cfg.Topic,
		principal: cfg.Principal,
		enabled:   true,
	}
}

// Deliver publishes one operation payload. The operation ID is both the
// message key and an idempotency header for downstream consumers.
func (k *Kafka) Deliver(ctx context.Context, operationId string, payload []byte) error {
	log.Debug().
		Str("operationId", operationId).
		Str("topic", k.topic).
		RawJSON("payload", payload).
		Msg("Delivering operation")

	if !k.enabled || k.writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(operationId),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "operationId", Value: []byte(operationId)},
			{Key: "principal", Value: []byte(k.principal)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("operationId", operationId).
			Str("topic", k.topic).
			Msg("Failed to write to Kafka")
		return err
	}
	return nil
}

// Close releases the Kafka writer.
func (k *Kafka) Close() error {
	if k.writer != nil {
		return k.writer.Close()
	}
	return nil
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"authbot/internal/address"
	"authbot/internal/metrics"
	"authbot/pkg/logging"

	"github.com/segmentio/kafka-go"
)

const transportKafka = "kafka"

const (
	defaultWriteTimeout = 10 * time.Second
	defaultBatchTimeout = 10 * time.Millisecond
	fetchRetryDelay     = time.Second
)

// messageWriter is the subset of *kafka.Writer used by KafkaMessenger.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader is the subset of *kafka.Reader used by KafkaConsumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMessenger publishes replies to a topic. Messages are keyed by the
// conversation address so replies to one conversation stay ordered.
type KafkaMessenger struct {
	writer messageWriter
	topic  string
}

// NewKafkaMessenger creates a synchronous writer for topic.
func NewKafkaMessenger(brokers []string, topic string) *KafkaMessenger {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           defaultBatchTimeout,
		WriteTimeout:           defaultWriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: false,
	}

	logging.Info("Kafka", "Reply writer created for topic %s (brokers: %s)", topic, strings.Join(brokers, ","))
	return &KafkaMessenger{writer: writer, topic: topic}
}

// Deliver implements Messenger.
func (k *KafkaMessenger) Deliver(ctx context.Context, addr address.Address, text string) error {
	value, err := json.Marshal(Envelope{Address: addr, Text: text})
	if err != nil {
		metrics.Deliveries.WithLabelValues(transportKafka, "serialization").Inc()
		return fmt.Errorf("kafka: marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(addr.Key()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "transport-id", Value: []byte(addr.TransportID)},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		errorType := classifyKafkaError(err)
		metrics.Deliveries.WithLabelValues(transportKafka, errorType).Inc()
		logging.Warn("Kafka", "Reply to conversation %s not written (%s): %v",
			logging.TruncateID(addr.ConversationID), errorType, err)
		return fmt.Errorf("kafka: write to %s (%s): %w", k.topic, errorType, err)
	}

	metrics.Deliveries.WithLabelValues(transportKafka, "success").Inc()
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaMessenger) Close() error {
	return k.writer.Close()
}

// KafkaConsumer reads inbound turns from a topic as part of a consumer group
// and passes them to a TurnHandler. Offsets are committed after the turn is
// handled, whatever its outcome; the dialog has already answered the user.
type KafkaConsumer struct {
	reader    messageReader
	handler   TurnHandler
	topic     string
	closeOnce sync.Once
	closeErr  error
}

// NewKafkaConsumer creates a group consumer for topic.
func NewKafkaConsumer(brokers []string, topic, groupID string, handler TurnHandler) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return &KafkaConsumer{reader: reader, handler: handler, topic: topic}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	logging.Info("Kafka", "Consuming turns from topic %s", c.topic)
	defer func() {
		if err := c.Close(); err != nil {
			logging.Warn("Kafka", "Closing reader: %v", err)
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			logging.Warn("Kafka", "Fetch from %s failed (%s): %v", c.topic, classifyKafkaError(err), err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		c.dispatch(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logging.Warn("Kafka", "Commit offset %d on %s failed: %v", msg.Offset, c.topic, err)
		}
	}
}

// Close leaves the consumer group. Safe to call more than once and without
// Run having been called.
func (c *KafkaConsumer) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.reader.Close()
	})
	return c.closeErr
}

func (c *KafkaConsumer) dispatch(ctx context.Context, msg kafka.Message) {
	env, err := DecodeEnvelope(msg.Value)
	if err != nil {
		logging.Warn("Kafka", "Skipping message at offset %d: %v", msg.Offset, err)
		return
	}
	if err := c.handler.HandleTurn(ctx, env.Address, env.Text); err != nil {
		logging.Error("Kafka", err, "Turn for conversation %s failed",
			logging.TruncateID(env.Address.ConversationID))
	}
}

// classifyKafkaError categorizes Kafka errors for metrics and logging.
func classifyKafkaError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "SASL") || strings.Contains(errStr, "authentication"):
		return "auth"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		return "network"
	case strings.Contains(errStr, "broker") || strings.Contains(errStr, "leader"):
		return "broker"
	case strings.Contains(errStr, "topic"):
		return "topic"
	default:
		return "other"
	}
}

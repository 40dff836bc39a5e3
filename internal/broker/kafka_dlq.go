package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mealdex/recipe-crawler/config"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress/lz4"
)

// DeadLetterClient receives URLs that exhausted the whole strategy ladder so
// a human (or a later replay job) can look at them.
type DeadLetterClient interface {
	SendURLToDLQ(url string, reason error)
	Close()
}

type dlqMessage struct {
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

type KafkaDLQClient struct {
	serviceName string
	kafkaWriter *kafka.Writer
	cfg         *config.ProducerConfig
}

func NewKafkaDLQ(serviceName string, cfg *config.ProducerConfig) *KafkaDLQClient {
	kafkaWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Addr...),
		Topic:        cfg.DeadLetterTopicName,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: 100 * time.Millisecond,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAsks),
		Async:        cfg.Async,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Error("failed to send messages to dlq.", slog.String("err", err.Error()))
			}
		},
		Compression: kafka.Compression(new(lz4.Codec).Code()),
	}
	return &KafkaDLQClient{
		serviceName: serviceName,
		kafkaWriter: kafkaWriter,
		cfg:         cfg,
	}
}

func (c *KafkaDLQClient) SendURLToDLQ(url string, reason error) {
	msg := dlqMessage{
		URL:       url,
		Service:   c.serviceName,
		Timestamp: time.Now().UTC(),
	}
	if reason != nil {
		msg.Error = reason.Error()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshaling error.", slog.String("err", err.Error()), slog.String("url", url))
		return
	}
	err = c.kafkaWriter.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(url),
		Value: body,
	})
	if err != nil {
		slog.Error("failed to send url to dlq.", slog.String("url", url),
			slog.String("err", err.Error()))
		return
	}
	slog.Debug("url sent to dlq.", slog.String("url", url))
}

func (c *KafkaDLQClient) Close() {
	if err := c.kafkaWriter.Close(); err != nil {
		slog.Error("failed to close kafka writer.", slog.String("err", err.Error()))
	}
}

// NoopDLQ is used when no kafka brokers are configured.
type NoopDLQ struct{}

func (NoopDLQ) SendURLToDLQ(string, error) {}
func (NoopDLQ) Close()                     {}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// ProducerConfig 生产者配置
type ProducerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Brokers     []string      `mapstructure:"brokers"`
	Topic       string        `mapstructure:"topic"`
	Compression string        `mapstructure:"compression"` // none, gzip, snappy, lz4, zstd
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EventProducer 把对话和压缩事件写入 Kafka
type EventProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewEventProducer 创建事件生产者
func NewEventProducer(config *ProducerConfig, logger *zap.Logger) (*EventProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = config.MaxRetries
	if config.Timeout > 0 {
		saramaConfig.Producer.Timeout = config.Timeout
	}
	saramaConfig.Producer.Compression = compressionCodec(config.Compression)

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return NewEventProducerWithClient(producer, config.Topic, logger), nil
}

// NewEventProducerWithClient 使用已有的 SyncProducer
func NewEventProducerWithClient(producer sarama.SyncProducer, topic string, logger *zap.Logger) *EventProducer {
	if topic == "" {
		topic = "copilot.events"
	}
	return &EventProducer{
		producer: producer,
		topic:    topic,
		logger:   logger.With(zap.String("module", "event-producer")),
	}
}

// Publish 发布事件，key 决定分区
func (p *EventProducer) Publish(ctx context.Context, key string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: time.Now(),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	p.logger.Debug("event published",
		zap.String("topic", p.topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close 关闭生产者
func (p *EventProducer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func compressionCodec(name string) sarama.CompressionCodec {
	switch name {
	case "gzip":
		return sarama.CompressionGZIP
	case "snappy":
		return sarama.CompressionSnappy
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	default:
		return sarama.CompressionNone
	}
}

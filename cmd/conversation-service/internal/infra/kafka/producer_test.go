package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEventProducer_Publish(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded map[string]any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		if decoded["event_type"] != "context.compressed" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewEventProducerWithClient(mock, "events", zap.NewNop())
	err := p.Publish(context.Background(), "42", map[string]any{"event_type": "context.compressed"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestEventProducer_PublishFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewEventProducerWithClient(mock, "", zap.NewNop())
	err := p.Publish(context.Background(), "1", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestEventProducer_CanceledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := NewEventProducerWithClient(mock, "events", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, "1", struct{}{}), context.Canceled)
	require.NoError(t, p.Close())
}

func TestCompressionCodec(t *testing.T) {
	assert.Equal(t, sarama.CompressionGZIP, compressionCodec("gzip"))
	assert.Equal(t, sarama.CompressionZSTD, compressionCodec("zstd"))
	assert.Equal(t, sarama.CompressionNone, compressionCodec("bogus"))
}

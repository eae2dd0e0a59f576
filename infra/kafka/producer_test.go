package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestProducerConfigValidate(t *testing.T) {
	_, err := NewProducer(ProducerConfig{Topic: "events"})
	require.Error(t, err)
	_, err = NewSaramaProducer(ProducerConfig{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)
}

func TestNewProducerWriterSettings(t *testing.T) {
	p, err := NewProducer(ProducerConfig{
		Brokers:  []string{"a:9092", "b:9092"},
		Topic:    "chainbook.events",
		ClientID: "chainbook-test",
	})
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, "chainbook.events", p.writer.Topic)
	require.Equal(t, kafka.RequireAll, p.writer.RequiredAcks)
	require.Equal(t, 10*time.Millisecond, p.writer.BatchTimeout)
	require.Equal(t, 5, p.writer.MaxAttempts)
	require.IsType(t, &kafka.Hash{}, p.writer.Balancer)
	require.NotNil(t, p.writer.Transport)
}

func TestSaramaConfig(t *testing.T) {
	sc := SaramaConfig(ProducerConfig{MaxRetries: 9, ClientID: "cb"})
	require.True(t, sc.Producer.Return.Successes)
	require.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	require.Equal(t, 9, sc.Producer.Retry.Max)
	require.Equal(t, "cb", sc.ClientID)
	require.NoError(t, sc.Validate())
}

func TestSaramaProducerSend(t *testing.T) {
	sp := mocks.NewSyncProducer(t, SaramaConfig(ProducerConfig{}))
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"type":"fill"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewSaramaProducerFrom(sp, "events")
	require.NoError(t, p.Send(context.Background(), []byte("XRD-USD"), []byte(`{"type":"fill"}`)))
	require.ErrorIs(t, p.Send(context.Background(), nil, []byte("x")), sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestSaramaProducerHonoursCancelledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewSaramaProducerFrom(sp, "events")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Send(ctx, nil, []byte("x")), context.Canceled)
	require.NoError(t, p.Close())
}

package kafka

import (
	"context"

	"github.com/IBM/sarama"
)

// SaramaProducer publishes through an IBM/sarama SyncProducer.
type SaramaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

// SaramaConfig returns the producer settings used for event delivery:
// acknowledged by all in-sync replicas, hash partitioned by key.
func SaramaConfig(cfg ProducerConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Retry.Max = 5
	if cfg.MaxRetries > 0 {
		sc.Producer.Retry.Max = cfg.MaxRetries
	}
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	return sc
}

func NewSaramaProducer(cfg ProducerConfig) (*SaramaProducer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, SaramaConfig(cfg))
	if err != nil {
		return nil, err
	}
	return NewSaramaProducerFrom(producer, cfg.Topic), nil
}

// NewSaramaProducerFrom wraps an existing SyncProducer.
func NewSaramaProducerFrom(producer sarama.SyncProducer, topic string) *SaramaProducer {
	return &SaramaProducer{producer: producer, topic: topic}
}

// Send blocks until the broker acknowledges the message. sarama has no
// per-call cancellation; ctx is only checked before sending.
func (p *SaramaProducer) Send(
	ctx context.Context,
	key []byte,
	value []byte,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != nil {
		msg.Key = sarama.ByteEncoder(key)
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *SaramaProducer) Close() error {
	return p.producer.Close()
}

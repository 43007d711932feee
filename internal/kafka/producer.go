package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// saramaProducer implements KafkaProducer on top of a sarama.SyncProducer.
// Every Send waits for the acknowledgement of all in-sync replicas.
type saramaProducer struct {
	producer sarama.SyncProducer
}

// newSaramaConfig returns the producer settings shared by every producer
// of the pool.
func newSaramaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	// Records of one pair share a key and therefore a partition, which keeps
	// them in stream order.
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

// newSaramaProducer dials the brokers of config.
func newSaramaProducer(config ProducerConfig) (KafkaProducer, error) {
	producer, err := sarama.NewSyncProducer(config.BrokerList, newSaramaConfig(config.ClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama producer: %w", err)
	}
	return &saramaProducer{producer: producer}, nil
}

// Send sends msg and waits for the broker acknowledgement or ctx.
func (p *saramaProducer) Send(ctx context.Context, msg Message) error {
	saramaMsg := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Value: sarama.ByteEncoder(msg.Payload),
	}
	if msg.Key != "" {
		saramaMsg.Key = sarama.StringEncoder(msg.Key)
	}
	for k, v := range msg.Headers {
		saramaMsg.Headers = append(saramaMsg.Headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := p.producer.SendMessage(saramaMsg)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the Sarama producer, releasing all associated resources.
func (p *saramaProducer) Close() error {
	return p.producer.Close()
}

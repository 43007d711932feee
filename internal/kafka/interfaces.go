package kafka

import "context"

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks . MessageSender

// MessageSender delivers one record to a Kafka topic.
type MessageSender interface {
	Send(ctx context.Context, msg Message) error
}

// PoolController starts and stops a producer pool
type PoolController interface {
	Start() error
	Stop() error
}

// ProducerPool defines the interface for a pool of Kafka producers.
type ProducerPool interface {
	MessageSender
	PoolController
}

// KafkaProducer defines the interface for a single producer
type KafkaProducer interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

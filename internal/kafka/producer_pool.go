package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Message represents a message to be sent to Kafka
type Message struct {
	Topic   string
	Key     string // Partitioning key, the pair for stream records
	Payload []byte
	Headers map[string]string
}

// ProducerConfig holds configuration for the producer pool
type ProducerConfig struct {
	BrokerList  []string      // List of Kafka brokers (i.e. ["localhost:9092"])
	PoolSize    int           // Number of producers in the pool
	ClientID    string        // Reported to the brokers
	SendTimeout time.Duration // Per record; defaults to 5s

	// newProducer creates the pool's producers; defaults to newSaramaProducer
	newProducer func(ProducerConfig) (KafkaProducer, error)
}

// producerPool manages a pool of KafkaProducers. Send borrows a producer
// from the pool for the duration of one record.
type producerPool struct {
	producers chan KafkaProducer
	config    ProducerConfig
	logger    *logrus.Entry
	wg        sync.WaitGroup
	ctx       context.Context    // Controls pool lifecycle
	cancel    context.CancelFunc // For shutting down the pool
	started   bool
	mu        sync.RWMutex // Protects started
}

// NewProducerPool creates a pool. No broker is contacted until Start.
func NewProducerPool(config ProducerConfig) (ProducerPool, error) {
	if config.PoolSize <= 0 {
		return nil, fmt.Errorf("pool size must be greater than 0")
	}
	if len(config.BrokerList) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 5 * time.Second
	}
	if config.newProducer == nil {
		config.newProducer = newSaramaProducer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &producerPool{
		producers: make(chan KafkaProducer, config.PoolSize),
		config:    config,
		logger:    logrus.WithField("component", "kafka_producer_pool"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start creates all producers
func (p *producerPool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("producer pool already started")
	}

	for i := 0; i < p.config.PoolSize; i++ {
		producer, err := p.config.newProducer(p.config)
		if err != nil {
			p.closeIdle()
			return fmt.Errorf("failed to create producer %d: %w", i, err)
		}
		p.producers <- producer
	}

	p.started = true
	p.logger.WithField("size", p.config.PoolSize).Info("Producer pool started successfully")
	return nil
}

// Stop waits for in-flight sends and closes every producer.
func (p *producerPool) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return fmt.Errorf("producer pool not started")
	}
	p.started = false
	p.mu.Unlock()

	p.logger.Info("Stopping producer pool...")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout while stopping producer pool")
	}

	if err := p.closeIdle(); err != nil {
		p.logger.WithError(err).Error("Errors occurred while closing producers")
		return err
	}
	p.logger.Info("Producer pool stopped successfully")
	return nil
}

// closeIdle closes the producers currently parked in the pool and returns
// the first error.
func (p *producerPool) closeIdle() error {
	var closeErr error
	for {
		select {
		case producer := <-p.producers:
			if err := producer.Close(); err != nil {
				p.logger.WithError(err).Error("Failed to close producer")
				if closeErr == nil {
					closeErr = err
				}
			}
		default:
			return closeErr
		}
	}
}

// Send borrows a producer and sends msg with it. It fails when ctx is done
// first, when the pool is stopping, or when the broker rejects the record.
func (p *producerPool) Send(ctx context.Context, msg Message) error {
	p.mu.RLock()
	started := p.started
	if started {
		p.wg.Add(1)
	}
	p.mu.RUnlock()
	if !started {
		return fmt.Errorf("producer pool is not running")
	}
	defer p.wg.Done()

	select {
	case producer := <-p.producers:
		defer func() { p.producers <- producer }()

		sendCtx, cancel := context.WithTimeout(ctx, p.config.SendTimeout)
		defer cancel()

		if err := producer.Send(sendCtx, msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		return nil

	case <-ctx.Done():
		return fmt.Errorf("operation cancelled by caller: %w", ctx.Err())

	case <-p.ctx.Done():
		return fmt.Errorf("producer pool is shutting down")
	}
}

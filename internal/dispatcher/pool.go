package dispatcher

import (
	"fmt"
	"sync"

	"github.com/alejoacosta74/kraken-ws/internal/subscription"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type job struct {
	handler subscription.Handler
	msg     subscription.Message
}

// handlerWorker runs the handlers of the subscriptions hashed to it, one at
// a time and in submission order.
type handlerWorker struct {
	id     int
	jobs   chan job
	wg     *sync.WaitGroup
	logger *logrus.Entry
}

func (w *handlerWorker) run() {
	defer w.wg.Done()
	for j := range w.jobs {
		w.handle(j)
	}
	w.logger.WithField("worker_id", w.id).Debug("Handler worker finished")
}

func (w *handlerWorker) handle(j job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.WithFields(logrus.Fields{
				"worker_id":    w.id,
				"subscription": j.msg.SubscriptionID,
			}).Errorf("Subscription handler panicked: %v", r)
		}
	}()
	j.handler(j.msg)
}

// HandlerPool runs subscription handlers off the frame processing path.
// Updates of one subscription always go to the same worker, so a handler sees
// them in arrival order. Each worker has a bounded queue; when it is full the
// update is dropped instead of blocking the reader.
type HandlerPool struct {
	workers []*handlerWorker
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	logger *logrus.Entry
}

// NewHandlerPool starts size workers, each with a queue of queueSize updates.
func NewHandlerPool(size, queueSize int) (*HandlerPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be greater than 0")
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("queue size must be greater than 0")
	}

	p := &HandlerPool{logger: logrus.WithField("component", "handler_pool")}
	for i := 0; i < size; i++ {
		w := &handlerWorker{
			id:     i,
			jobs:   make(chan job, queueSize),
			wg:     &p.wg,
			logger: p.logger,
		}
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go w.run()
	}
	p.logger.WithField("workers", size).Debug("Handler pool started")
	return p, nil
}

// Submit queues msg for handler. It returns false when the update was
// dropped because the worker queue is full or the pool is stopped.
func (p *HandlerPool) Submit(handler subscription.Handler, msg subscription.Message) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}

	w := p.workers[workerIndex(msg.SubscriptionID, len(p.workers))]
	select {
	case w.jobs <- job{handler: handler, msg: msg}:
		return true
	default:
		return false
	}
}

// Stop lets the workers drain their queues and waits for them to exit.
func (p *HandlerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, w := range p.workers {
		close(w.jobs)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("Handler pool stopped")
}

func workerIndex(id uuid.UUID, n int) int {
	var h uint32
	for _, b := range id {
		h = h*31 + uint32(b)
	}
	return int(h % uint32(n))
}

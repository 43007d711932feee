package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Observers is an ordered list of callbacks. Notify calls them in
// registration order; a panicking observer is logged and does not prevent
// the remaining observers from being called.
type Observers[T any] struct {
	mu     sync.RWMutex
	list   []observer[T]
	nextID int
	logger *logrus.Entry
}

type observer[T any] struct {
	id int
	fn func(T)
}

// NewObservers creates an empty observer list. name is used in log lines.
func NewObservers[T any](name string) *Observers[T] {
	return &Observers[T]{
		logger: logrus.WithFields(logrus.Fields{"component": "observers", "event": name}),
	}
}

// Add registers fn and returns a function removing it again.
func (o *Observers[T]) Add(fn func(T)) (remove func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	o.list = append(o.list, observer[T]{id: id, fn: fn})

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, obs := range o.list {
			if obs.id == id {
				o.list = append(o.list[:i:i], o.list[i+1:]...)
				return
			}
		}
	}
}

// Notify delivers v to every registered observer.
func (o *Observers[T]) Notify(v T) {
	o.mu.RLock()
	snapshot := make([]observer[T], len(o.list))
	copy(snapshot, o.list)
	o.mu.RUnlock()

	for _, obs := range snapshot {
		o.call(obs, v)
	}
}

func (o *Observers[T]) call(obs observer[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithField("observer", obs.id).Errorf("Observer panicked: %v", r)
		}
	}()
	obs.fn(v)
}

// Len returns the number of registered observers.
func (o *Observers[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.list)
}

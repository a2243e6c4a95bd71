package realtime

import (
	"context"
	"sync"
	"time"
)

// Topics identify which logical collection changed. Feed recomposition
// listens to all of them; the SSE layer forwards them verbatim.
const (
	TopicMessages   = "messages"
	TopicCuration   = "curation"
	TopicEngagement = "engagement"
	TopicSettings   = "settings"
)

// Event describes a change to one of the backing collections.
type Event struct {
	Topic      string
	MessageIDs []string
	Timestamp  time.Time
}

// Dispatcher broadcasts collection-change events to every subscriber.
// Publishing never blocks: slow subscribers drop events and catch up on
// the next recomposition, which always reads the latest state.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Event
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[int64]*subscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener for all collection changes. The returned
// cancel function is idempotent; the subscription also ends when ctx is done.
func (d *Dispatcher) Subscribe(ctx context.Context) (<-chan Event, func()) {
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Event, d.bufferSize),
	}
	d.register(sub)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.unregister(sub.id)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return sub.stream, cancel
}

// Publish fans the event out to every current subscriber.
func (d *Dispatcher) Publish(event Event) {
	if event.Topic == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*subscriber, 0, len(d.subscribers))
	for _, sub := range d.subscribers {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- event:
		default:
		}
	}
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[sub.id] = sub
}

func (d *Dispatcher) unregister(id int64) {
	d.mu.Lock()
	delete(d.subscribers, id)
	d.mu.Unlock()
}

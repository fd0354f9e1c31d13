package engine

import (
	"sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// closedTopicRetention bounds how many finished operations keep a closed
// marker for late subscribers.
const closedTopicRetention = 4096

// Event is one lifecycle transition of a queued operation.
type Event struct {
	OperationID string    `json:"operation_id"`
	Status      string    `json:"status"`
	WorkerID    *int      `json:"worker_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Broker fans out per-operation lifecycle events to subscribers.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers receive a
// closed channel instead of blocking forever. Only the most recent
// closedTopicRetention markers are kept.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
	closed []string
}

type eventTopic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*eventTopic),
	}
}

// Subscribe returns a channel that receives events for the given operation
// and an unsubscribe function. If the operation was already destroyed, the
// returned channel is immediately closed.
func (b *Broker) Subscribe(operationID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[operationID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[operationID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends an event to all subscribers of its operation. Events are
// dropped for subscribers whose buffers are full.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.OperationID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close signals that no more events will be published for the operation.
// All subscriber channels are closed and future Subscribe calls return a
// closed channel.
func (b *Broker) Close(operationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[operationID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[operationID] = t
	}
	if t.closed {
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}

	b.closed = append(b.closed, operationID)
	if len(b.closed) > closedTopicRetention {
		evict := b.closed[0]
		b.closed = b.closed[1:]
		delete(b.topics, evict)
	}
}

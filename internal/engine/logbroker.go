package engine

import "sync"

// subscriberBufferSize is the channel buffer for each log subscriber.
// Lines are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// maxClosedTopics bounds how many finished instances keep a closed marker.
const maxClosedTopics = 1024

// LogBroker fans out the output of running instances to subscribers, keyed
// by instance ID. It is safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers receive a
// closed channel instead of blocking forever. Only the most recent
// maxClosedTopics markers are kept; a subscriber to an instance older than
// that waits until it unsubscribes.
type LogBroker struct {
	mu     sync.Mutex
	topics map[string]*logTopic
	closed []string
}

type logTopic struct {
	subs   map[int]chan string
	nextID int
	closed bool
}

// NewLogBroker creates a new log broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{
		topics: make(map[string]*logTopic),
	}
}

// Subscribe returns a channel that receives log lines for the given instance
// and an unsubscribe function. If the instance has already finished, the
// returned channel is immediately closed.
func (b *LogBroker) Subscribe(instanceID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[instanceID]
	if !ok {
		t = &logTopic{subs: make(map[int]chan string)}
		b.topics[instanceID] = t
	}

	ch := make(chan string, subscriberBufferSize)
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

// Publish sends a log line to all subscribers of the given instance.
// Lines are dropped for subscribers whose buffers are full.
func (b *LogBroker) Publish(instanceID string, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[instanceID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- line:
		default:
			// Never block the instance on a slow reader.
		}
	}
}

// Close signals that no more lines will be published for the given
// instance. Subscriber channels are closed and later Subscribe calls return
// a closed channel.
func (b *LogBroker) Close(instanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[instanceID]
	if ok && t.closed {
		return
	}
	if !ok {
		t = &logTopic{subs: make(map[int]chan string)}
		b.topics[instanceID] = t
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}

	b.closed = append(b.closed, instanceID)
	if len(b.closed) > maxClosedTopics {
		delete(b.topics, b.closed[0])
		b.closed = b.closed[1:]
	}
}

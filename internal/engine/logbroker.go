package engine

import "sync"

// subscriberBuffer is the channel capacity per subscriber. A subscriber that
// falls this far behind misses lines.
const subscriberBuffer = 64

// LogBroker fans worker output lines out to live subscribers. It is safe for
// concurrent use.
//
// A worker's stream stays marked as finished after Finish so that a
// subscriber arriving late gets a closed channel instead of waiting forever.
type LogBroker struct {
	mu      sync.Mutex
	streams map[string]*stream
}

type stream struct {
	subs     map[int]chan string
	next     int
	finished bool
}

// NewLogBroker creates an empty broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{streams: make(map[string]*stream)}
}

func (b *LogBroker) stream(workerID string) *stream {
	s, ok := b.streams[workerID]
	if !ok {
		s = &stream{subs: make(map[int]chan string)}
		b.streams[workerID] = s
	}
	return s
}

// Subscribe returns a channel of output lines for workerID and a function
// that cancels the subscription. The channel is closed when the worker
// finishes, or immediately if it already has.
func (b *LogBroker) Subscribe(workerID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(workerID)
	ch := make(chan string, subscriberBuffer)
	if s.finished {
		close(ch)
		return ch, func() {}
	}

	id := s.next
	s.next++
	s.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(s.subs, id)
	}
}

// Publish delivers line to every current subscriber of workerID without
// blocking.
func (b *LogBroker) Publish(workerID, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.streams[workerID]
	if !ok || s.finished {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Finish closes every subscription for workerID.
func (b *LogBroker) Finish(workerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(workerID)
	s.finished = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

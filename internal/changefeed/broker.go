package changefeed

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBuffer = 64

// Broker delivers published changes to in-process subscribers. Each
// subscription has its own bounded queue and goroutine, so a slow
// subscriber never blocks Publish. When a queue overflows the excess is
// dropped and the subscriber later receives one Resync change.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int
	closed bool
	logger *log.Logger
}

type subscription struct {
	topic  Topic
	fn     func(Change)
	ch     chan Change
	kick   chan struct{}
	done   chan struct{}
	once   sync.Once
	lagged atomic.Bool
}

func NewBroker(buffer int, logger *log.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Broker{
		subs:   make(map[uint64]*subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers fn for changes matching topic. fn runs on the
// subscription's own goroutine, one change at a time. The returned func
// cancels the subscription and is safe to call more than once.
func (b *Broker) Subscribe(topic Topic, fn func(Change)) func() {
	s := &subscription{
		topic: topic,
		fn:    fn,
		ch:    make(chan Change, b.buffer),
		kick:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = s
	b.mu.Unlock()

	go s.run()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		s.stop()
	}
}

// Publish delivers c to every matching subscription without blocking.
func (b *Broker) Publish(c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if !s.topic.Match(c) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			if !s.lagged.Swap(true) {
				b.logger.Printf("changefeed: subscriber on %s lagging, dropping changes", s.topic.Table)
			}
			select {
			case s.kick <- struct{}{}:
			default:
			}
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close cancels all subscriptions. Later Subscribe calls are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*subscription)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case c := <-s.ch:
			s.fn(c)
		case <-s.kick:
		}
		if len(s.ch) == 0 && s.lagged.CompareAndSwap(true, false) {
			s.fn(Change{Table: s.topic.Table, Op: Resync, At: time.Now().UTC()})
		}
	}
}

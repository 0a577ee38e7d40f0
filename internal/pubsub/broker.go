package pubsub

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	defaultCacheSize  = 16
	subscriberBacklog = 128
)

// Broker a simple in-memory pub/sub system.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string][]chan []byte // topic -> list of subscriber channels
	cache       map[string][][]byte      // topic -> most recent messages
	cacheSize   int
}

type WsMessage struct {
	Stream string `json:"stream"`
	Data   string `json:"data"`
}

var (
	once   sync.Once
	broker *Broker
)

// GetBroker returns the process-wide Broker.
func GetBroker() *Broker {
	once.Do(func() {
		broker = NewBroker(defaultCacheSize)
	})
	return broker
}

// NewBroker creates a broker replaying at most cacheSize messages per topic to
// new subscribers.
func NewBroker(cacheSize int) *Broker {
	if cacheSize < 0 {
		cacheSize = 0
	}
	return &Broker{
		subscribers: make(map[string][]chan []byte),
		cache:       make(map[string][][]byte),
		cacheSize:   cacheSize,
	}
}

// Subscribe subscribes to a topic. The cached messages are queued on the
// channel before any live message.
func (b *Broker) Subscribe(topic string) (<-chan []byte, func()) {
	b.mu.Lock()
	ch := make(chan []byte, subscriberBacklog+b.cacheSize)
	history := b.cache[topic]
	for _, msg := range history {
		ch <- msg
	}
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()

	var unsubscribeOnce sync.Once
	unsubscribe := func() {
		unsubscribeOnce.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subscribers := b.subscribers[topic]
			for i, sub := range subscribers {
				if sub == ch {
					b.subscribers[topic] = append(subscribers[:i], subscribers[i+1:]...)
					close(ch)
					break
				}
			}
			if len(b.subscribers[topic]) == 0 {
				delete(b.subscribers, topic)
			}
			zap.S().Debugf("unsubscribed from topic %s", topic)
		})
	}

	zap.S().Debugf("new subscription to topic %s, sent %d cached messages", topic, len(history))
	return ch, unsubscribe
}

// Publish publishes a message to all subscribers of a topic and caches it.
func (b *Broker) Publish(topic string, msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cacheSize > 0 {
		cached := append(b.cache[topic], msg)
		if len(cached) > b.cacheSize {
			cached = cached[len(cached)-b.cacheSize:]
		}
		b.cache[topic] = cached
	}

	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- msg:
		default:
			// slow subscriber, drop
		}
	}
}

// CloseTopic closes all subscriber channels and clears the cache for a given topic.
func (b *Broker) CloseTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers[topic] {
		close(ch)
	}
	delete(b.subscribers, topic)
	delete(b.cache, topic)
	zap.S().Infof("closed pubsub topic %s and cleared cache", topic)
}

// FormatMessage wraps data in the websocket stream envelope.
func FormatMessage(streamType string, data string) []byte {
	msg := WsMessage{Stream: streamType, Data: data}
	bytes, err := json.Marshal(msg)
	if err != nil {
		return []byte(`{"stream": "error", "data": "json format error"}`)
	}
	return bytes
}

package memorybus

import (
	"slices"
	"sync"

	"github.com/Guilhem-Bonnet/signage-agent/internal/metrics"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

const subscriberBuffer = 64

type subscriber struct {
	ch     chan ports.Event
	topics []string
}

func (s *subscriber) wants(topic string) bool {
	return len(s.topics) == 0 || slices.Contains(s.topics, topic)
}

// Bus diffuse les évènements de l'agent aux abonnés locaux (SSE, statut).
type Bus struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func New() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Publish ne bloque jamais la boucle: un abonné lent perd l'évènement.
func (b *Bus) Publish(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	evt := ports.Event{Topic: topic, Payload: payload}
	for sub := range b.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			metrics.BusEventsDroppedTotal.WithLabelValues(topic).Inc()
		}
	}
}

// Subscribe sans topic reçoit tout. cancel est idempotent.
func (b *Bus) Subscribe(topics ...string) (<-chan ports.Event, func()) {
	sub := &subscriber{ch: make(chan ports.Event, subscriberBuffer), topics: topics}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub] = struct{}{}

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub.ch)
		}
	}
}

// Close ferme tous les abonnements (les flux SSE se terminent proprement).
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

package overlay

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// ReplicationEventKind enumerates the replication lifecycle notifications a
// Runtime publishes as it works through a Publish command.
type ReplicationEventKind string

const (
	PublishQueued ReplicationEventKind = "publish_queued"
	PublishAck    ReplicationEventKind = "publish_ack"
	PublishFailed ReplicationEventKind = "publish_failed"
	PublishRetry  ReplicationEventKind = "publish_retry"
)

// ReplicationEvent is one notification about the fate of an outbound
// envelope. Peer and Reason are populated only for the event kinds that
// carry them.
type ReplicationEvent struct {
	Kind      ReplicationEventKind
	MessageId string
	Peer      peer.ID
	Reason    string
}

// DiscoveryEventKind enumerates peer-set membership changes.
type DiscoveryEventKind string

const (
	PeerAdded   DiscoveryEventKind = "peer_added"
	PeerRemoved DiscoveryEventKind = "peer_removed"
)

// DiscoveryEvent is one membership change in the known peer set.
type DiscoveryEvent struct {
	Kind DiscoveryEventKind
	Peer peer.ID
}

// subscriptionManager is a broadcast hub: every Runtime event is fanned out
// to every currently-registered subscriber channel. Unlike the stubbed
// original, Publish here actually delivers — each subscriber gets its own
// buffered channel and a slow or gone subscriber drops events rather than
// blocking the publisher.
type subscriptionManager[T any] struct {
	mu          sync.Mutex
	subscribers map[int]chan T
	nextID      int
}

func newSubscriptionManager[T any]() *subscriptionManager[T] {
	return &subscriptionManager[T]{subscribers: make(map[int]chan T)}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is buffered so a burst of events
// doesn't stall the publisher; once full, further events to this
// subscriber are dropped until it drains.
func (m *subscriptionManager[T]) Subscribe(buffer int) (<-chan T, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan T, buffer)
	m.subscribers[id] = ch

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

// Publish fans event out to every live subscriber, non-blocking.
func (m *subscriptionManager[T]) Publish(event T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

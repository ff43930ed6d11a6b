package overlay

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
)

// Dialer is the subset of a host's dialing capability Discovery needs to
// bring bootstrap peers online.
type Dialer interface {
	Connect(ctx context.Context, pi peer.AddrInfo) error
}

// Discovery maintains the set of known peers, driven by routing table
// updates (peers added/removed as the DHT learns about them) and by the
// configured bootstrap list dialed at startup.
type Discovery struct {
	dialer Dialer
	events *subscriptionManager[DiscoveryEvent]

	mu    sync.Mutex
	peers map[peer.ID]struct{}
}

// NewDiscovery builds a Discovery bound to dialer for bootstrap dialing.
func NewDiscovery(dialer Dialer) *Discovery {
	return &Discovery{
		dialer: dialer,
		events: newSubscriptionManager[DiscoveryEvent](),
		peers:  make(map[peer.ID]struct{}),
	}
}

// Subscribe registers for discovery events (peer added/removed).
func (d *Discovery) Subscribe(buffer int) (<-chan DiscoveryEvent, func()) {
	return d.events.Subscribe(buffer)
}

// Bootstrap dials every configured bootstrap peer and inserts it into the
// known peer set regardless of whether the dial itself succeeds immediately
// — a transient dial failure shouldn't prevent later retries from finding
// the peer again through the DHT.
func (d *Discovery) Bootstrap(ctx context.Context, peers []BootstrapPeer) error {
	for _, bp := range peers {
		addr, err := multiaddr.NewMultiaddr(bp.Multiaddr)
		if err != nil {
			return newErr("Bootstrap", ErrInvalidAddress, fmt.Errorf("%s: %w", bp.Multiaddr, err))
		}
		pid, err := peer.Decode(bp.PeerID)
		if err != nil {
			return newErr("Bootstrap", ErrInvalidAddress, fmt.Errorf("%s: %w", bp.PeerID, err))
		}

		logrus.WithFields(logrus.Fields{"function": "Bootstrap", "peer": pid, "addr": addr}).Info("adding bootstrap peer")
		if err := d.dialer.Connect(ctx, peer.AddrInfo{ID: pid, Addrs: []multiaddr.Multiaddr{addr}}); err != nil {
			logrus.WithFields(logrus.Fields{"function": "Bootstrap", "peer": pid}).WithError(err).Warn("bootstrap dial failed")
		}
		d.InsertPeer(pid)
	}
	return nil
}

// InsertPeer adds peer to the known set, emitting PeerAdded if it wasn't
// already present. Meant to be wired as a DHT routing table's PeerAdded
// callback.
func (d *Discovery) InsertPeer(p peer.ID) {
	d.mu.Lock()
	_, existed := d.peers[p]
	if !existed {
		d.peers[p] = struct{}{}
	}
	d.mu.Unlock()

	if !existed {
		d.events.Publish(DiscoveryEvent{Kind: PeerAdded, Peer: p})
	}
}

// RemovePeer removes peer from the known set, emitting PeerRemoved if it
// was present. Meant to be wired as a DHT routing table's PeerRemoved
// callback, or as an UnroutablePeer notification.
func (d *Discovery) RemovePeer(p peer.ID) {
	d.mu.Lock()
	_, existed := d.peers[p]
	delete(d.peers, p)
	d.mu.Unlock()

	if existed {
		d.events.Publish(DiscoveryEvent{Kind: PeerRemoved, Peer: p})
	}
}

// Peers returns a snapshot of the known peer set.
func (d *Discovery) Peers() []peer.ID {
	d.mu.Lock()
	defer d.mu.Unlock()

	peers := make([]peer.ID, 0, len(d.peers))
	for p := range d.peers {
		peers = append(peers, p)
	}
	return peers
}

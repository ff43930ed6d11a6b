package overlay

import (
	"context"
	"testing"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	connected []peer.AddrInfo
	failFor   peer.ID
}

func (f *fakeDialer) Connect(ctx context.Context, pi peer.AddrInfo) error {
	if pi.ID == f.failFor {
		return assert.AnError
	}
	f.connected = append(f.connected, pi)
	return nil
}

func newTestPeerID(t *testing.T) peer.ID {
	t.Helper()
	_, pub, err := p2pcrypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	id, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)
	return id
}

func TestInsertPeerEmitsEventOnce(t *testing.T) {
	d := NewDiscovery(&fakeDialer{})
	events, unsubscribe := d.Subscribe(4)
	defer unsubscribe()

	p := newTestPeerID(t)
	d.InsertPeer(p)
	d.InsertPeer(p) // duplicate, should not emit twice

	assert.ElementsMatch(t, []peer.ID{p}, d.Peers())

	select {
	case ev := <-events:
		assert.Equal(t, PeerAdded, ev.Kind)
		assert.Equal(t, p, ev.Peer)
	default:
		t.Fatal("expected a PeerAdded event")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}
}

func TestRemovePeerEmitsEventOnlyIfPresent(t *testing.T) {
	d := NewDiscovery(&fakeDialer{})
	p := newTestPeerID(t)

	events, unsubscribe := d.Subscribe(4)
	defer unsubscribe()
	d.RemovePeer(p) // not present, no event

	d.InsertPeer(p)
	<-events // drain the add

	d.RemovePeer(p)
	select {
	case ev := <-events:
		assert.Equal(t, PeerRemoved, ev.Kind)
	default:
		t.Fatal("expected a PeerRemoved event")
	}
	assert.Empty(t, d.Peers())
}

func TestBootstrapDialsAndInsertsEvenOnFailure(t *testing.T) {
	peerA := newTestPeerID(t)
	dialer := &fakeDialer{failFor: peerA}
	d := NewDiscovery(dialer)

	err := d.Bootstrap(context.Background(), []BootstrapPeer{
		{Multiaddr: "/ip4/127.0.0.1/udp/4001/quic-v1", PeerID: peerA.String()},
	})
	require.NoError(t, err)

	// Dial failed, but the peer is still tracked for future discovery.
	assert.ElementsMatch(t, []peer.ID{peerA}, d.Peers())
	assert.Empty(t, dialer.connected)
}

func TestBootstrapRejectsInvalidMultiaddr(t *testing.T) {
	d := NewDiscovery(&fakeDialer{})
	err := d.Bootstrap(context.Background(), []BootstrapPeer{
		{Multiaddr: "not-a-multiaddr", PeerID: newTestPeerID(t).String()},
	})
	assert.Error(t, err)
}

package overlay

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/jakobs1900/cryptochat/envelope"
	"github.com/jakobs1900/cryptochat/store"
)

// InboundDeliveredFunc is invoked with every envelope accepted over the
// wire, after it has been durably stored, so a higher layer (the message
// pipeline) can react to delivery without the overlay knowing anything
// about plaintext or receipts.
type InboundDeliveredFunc func(env envelope.TransportEnvelope)

// Handle is the externally visible overlay node: a running Transport,
// Discovery, and Runtime sharing one persistent Store. It is the
// equivalent of the reference node's OverlayHandle.
type Handle struct {
	transport *Transport
	discovery *Discovery
	runtime   *Runtime
	store     *store.Store

	cancel context.CancelFunc
}

// Start brings up the full overlay stack: opens the store, builds the
// libp2p transport with its inbound envelope handler wired to persistence
// and onDelivered, wires DHT routing table events into discovery, starts
// the runtime loop, and dials every configured bootstrap peer.
func Start(ctx context.Context, cfg Config, onDelivered InboundDeliveredFunc) (*Handle, error) {
	st, err := store.Open(cfg.StoragePath)
	if err != nil {
		return nil, newErr("Start", ErrTransport, fmt.Errorf("open store: %w", err))
	}

	runCtx, cancel := context.WithCancel(ctx)

	onInbound := func(_ context.Context, from peer.ID, env envelope.TransportEnvelope) bool {
		if err := st.StoreInbound(env); err != nil {
			logrus.WithFields(logrus.Fields{"function": "Start", "peer": from, "message_id": env.MessageId}).WithError(err).Warn("failed to persist inbound envelope")
			return false
		}
		if onDelivered != nil {
			onDelivered(env)
		}
		return true
	}

	transport, err := NewTransport(runCtx, cfg, onInbound)
	if err != nil {
		cancel()
		st.Close()
		return nil, err
	}

	discovery := NewDiscovery(transport)
	transport.WireDiscovery(runCtx, discovery)

	runtime := NewRuntime(transport, discovery, st, cfg.ReplicationFactor, cfg.RetryInterval)
	go runtime.Run(runCtx)

	if err := discovery.Bootstrap(runCtx, cfg.BootstrapPeers); err != nil {
		cancel()
		transport.Close()
		st.Close()
		return nil, err
	}

	return &Handle{
		transport: transport,
		discovery: discovery,
		runtime:   runtime,
		store:     st,
		cancel:    cancel,
	}, nil
}

// ID returns the local node's peer id.
func (h *Handle) ID() peer.ID { return h.transport.ID() }

// SubscribeReplication registers for publish lifecycle events.
func (h *Handle) SubscribeReplication(buffer int) (<-chan ReplicationEvent, func()) {
	return h.runtime.Subscribe(buffer)
}

// SubscribeDiscovery registers for peer membership events.
func (h *Handle) SubscribeDiscovery(buffer int) (<-chan DiscoveryEvent, func()) {
	return h.discovery.Subscribe(buffer)
}

// Publish replicates env to the current peer set.
func (h *Handle) Publish(env envelope.TransportEnvelope) error {
	return h.runtime.Publish(env)
}

// Dial connects to an additional peer outside the configured bootstrap list.
func (h *Handle) Dial(addr multiaddr.Multiaddr) {
	h.runtime.Dial(addr)
}

// Store exposes the shared persistent store so the message pipeline can
// append and read receipts.
func (h *Handle) Store() *store.Store { return h.store }

// Shutdown stops the runtime loop and tears down the transport and store in
// order.
func (h *Handle) Shutdown() {
	h.runtime.Shutdown()
	h.cancel()
	if err := h.transport.Close(); err != nil {
		logrus.WithError(err).Warn("error closing transport during shutdown")
	}
	if err := h.store.Close(); err != nil {
		logrus.WithError(err).Warn("error closing store during shutdown")
	}
}

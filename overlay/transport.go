package overlay

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/protocol/identify"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"github.com/sirupsen/logrus"

	"github.com/jakobs1900/cryptochat/envelope"
)

// InboundHandler processes an envelope received from peer over the
// envelope protocol and reports whether it was accepted (persisted).
type InboundHandler func(ctx context.Context, from peer.ID, env envelope.TransportEnvelope) bool

// Transport owns the libp2p host, its Identify/ping/DHT behaviours, and the
// envelope request/response stream handler.
type Transport struct {
	host host.Host
	dht  *dht.IpfsDHT
	ping *ping.PingService
}

// NewTransport brings up a libp2p host listening on cfg.ListenAddrs with
// Identify, keepalive ping, a client-mode Kademlia DHT, and the envelope
// protocol's inbound stream handler wired to onInbound.
func NewTransport(ctx context.Context, cfg Config, onInbound InboundHandler) (*Transport, error) {
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(cfg.ListenAddrs...),
		libp2p.UserAgent(agentVersion),
	)
	if err != nil {
		return nil, newErr("NewTransport", ErrTransport, fmt.Errorf("create host: %w", err))
	}

	idService, err := identify.NewIDService(h, identify.UserAgent(agentVersion), identify.ProtocolVersion(identifyProtocol))
	if err != nil {
		h.Close()
		return nil, newErr("NewTransport", ErrTransport, fmt.Errorf("identify service: %w", err))
	}
	idService.Start()

	pingService := ping.NewPingService(h)

	kadDHT, err := dht.New(ctx, h,
		dht.Mode(dht.ModeClient),
		dht.ProtocolPrefix(protocol.ID(kademliaProtocolPrefix)),
	)
	if err != nil {
		h.Close()
		return nil, newErr("NewTransport", ErrTransport, fmt.Errorf("kademlia dht: %w", err))
	}

	t := &Transport{host: h, dht: kadDHT, ping: pingService}

	h.SetStreamHandler(protocol.ID(envelopeProtocol), func(s network.Stream) {
		t.handleInboundStream(s, onInbound)
	})

	logrus.WithFields(logrus.Fields{"function": "NewTransport", "peer_id": h.ID(), "addrs": h.Addrs()}).Info("overlay transport listening")
	return t, nil
}

func (t *Transport) handleInboundStream(s network.Stream, onInbound InboundHandler) {
	defer s.Close()

	frame, err := ReadFrame(s)
	if err != nil {
		logrus.WithError(err).Warn("failed to read inbound envelope frame")
		s.Reset()
		return
	}

	env, err := DecodeEnvelopeRequest(frame)
	if err != nil {
		logrus.WithError(err).Warn("failed to decode inbound envelope")
		s.Reset()
		return
	}

	accepted := onInbound(context.Background(), s.Conn().RemotePeer(), env)

	if err := WriteFrame(s, EncodeEnvelopeResponse(accepted)); err != nil {
		logrus.WithError(err).Warn("failed to write envelope response")
	}
}

// SendEnvelope opens a stream to p, sends env over the envelope protocol,
// and returns the peer's accepted flag.
func (t *Transport) SendEnvelope(ctx context.Context, p peer.ID, env envelope.TransportEnvelope) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	s, err := t.host.NewStream(ctx, p, protocol.ID(envelopeProtocol))
	if err != nil {
		return false, newErr("SendEnvelope", ErrTransport, fmt.Errorf("open stream to %s: %w", p, err))
	}
	defer s.Close()

	encoded, err := EncodeEnvelopeRequest(env)
	if err != nil {
		return false, newErr("SendEnvelope", ErrTransport, err)
	}
	if err := WriteFrame(s, encoded); err != nil {
		return false, newErr("SendEnvelope", ErrTransport, err)
	}

	responseFrame, err := ReadFrame(s)
	if err != nil {
		return false, newErr("SendEnvelope", ErrTransport, fmt.Errorf("read response from %s: %w", p, err))
	}
	accepted, err := DecodeEnvelopeResponse(responseFrame)
	if err != nil {
		return false, newErr("SendEnvelope", ErrTransport, err)
	}
	return accepted, nil
}

// Connect implements Dialer by delegating to the underlying host.
func (t *Transport) Connect(ctx context.Context, pi peer.AddrInfo) error {
	return t.host.Connect(ctx, pi)
}

// ID returns the local peer id.
func (t *Transport) ID() peer.ID { return t.host.ID() }

// WireDiscovery hooks the DHT routing table's peer-added/peer-removed
// callbacks into d, and issues a self-lookup to seed routing. The
// self-lookup is fire-and-forget: against an empty routing table (the
// default, bootstrap-peer-less configuration) it has no peers to query and
// returns an error, but that failure is not a precondition for the overlay
// starting — it's logged and the runtime proceeds regardless, the same way
// the reference node's bootstrap query result is never awaited.
func (t *Transport) WireDiscovery(ctx context.Context, d *Discovery) {
	rt := t.dht.RoutingTable()
	rt.PeerAdded = d.InsertPeer
	rt.PeerRemoved = d.RemovePeer

	if _, err := t.dht.GetClosestPeers(ctx, string(t.host.ID())); err != nil {
		logrus.WithFields(logrus.Fields{"function": "WireDiscovery", "peer_id": t.host.ID()}).WithError(err).Warn("dht self lookup failed, continuing with empty routing table")
	}
}

// Close shuts down the DHT and host.
func (t *Transport) Close() error {
	if err := t.dht.Close(); err != nil {
		logrus.WithError(err).Warn("error closing dht")
	}
	if err := t.host.Close(); err != nil {
		return newErr("Close", ErrTransport, err)
	}
	return nil
}

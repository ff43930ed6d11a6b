package overlay

import (
	"github.com/multiformats/go-multiaddr"

	"github.com/jakobs1900/cryptochat/envelope"
)

// commandKind discriminates the bounded command channel's payloads.
type commandKind int

const (
	cmdDial commandKind = iota
	cmdPublish
	cmdShutdown
)

type command struct {
	kind commandKind

	dialAddr multiaddr.Multiaddr

	publishEnvelope envelope.TransportEnvelope
	publishReply    chan error

	shutdownReply chan struct{}
}

// PublishErrNoPeers is returned by Publish when the peer set is empty at
// the moment of the call; the envelope is not persisted so it is not
// retryable until some peer becomes known.
var PublishErrNoPeers = newErr("Publish", ErrNoPeers, nil)

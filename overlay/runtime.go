package overlay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/jakobs1900/cryptochat/envelope"
	"github.com/jakobs1900/cryptochat/store"
)

// PersistentStore is the subset of *store.Store the runtime needs, kept as
// an interface so the event loop's publish/ack/retry bookkeeping can be
// exercised against a fake in tests without an on-disk database.
type PersistentStore interface {
	InsertOutbound(messageId envelope.MessageId, env envelope.TransportEnvelope, peers []peer.ID) error
	MarkPeerSuccess(messageId envelope.MessageId, p peer.ID) (completed bool, err error)
	LoadPending() ([]store.PendingOutbound, error)
	StoreInbound(env envelope.TransportEnvelope) error
}

// EnvelopeSender is the subset of *Transport the runtime needs to issue
// requests, kept as an interface for the same reason as PersistentStore.
type EnvelopeSender interface {
	SendEnvelope(ctx context.Context, p peer.ID, env envelope.TransportEnvelope) (accepted bool, err error)
	Connect(ctx context.Context, pi peer.AddrInfo) error
}

type inFlightRequest struct {
	messageId string
	peer      peer.ID
}

type responseResult struct {
	requestID uint64
	inFlightRequest
	accepted bool
	err      error
}

// Runtime is the single-threaded cooperative event loop that owns the
// in-flight request map, the swarm's dial/send operations, and the retry
// timer. Everything else talks to it only through Dial/Publish/Shutdown
// and the replication event stream.
type Runtime struct {
	sender            EnvelopeSender
	discovery         *Discovery
	store             PersistentStore
	replicationFactor int
	retryInterval     time.Duration

	events *subscriptionManager[ReplicationEvent]

	commandCh chan command
	responseCh chan responseResult

	nextRequestID uint64
	inFlight      map[uint64]inFlightRequest
}

// NewRuntime builds a Runtime. Call Run in its own goroutine to start the
// event loop.
func NewRuntime(sender EnvelopeSender, discovery *Discovery, persistentStore PersistentStore, replicationFactor int, retryInterval time.Duration) *Runtime {
	if replicationFactor < 1 {
		replicationFactor = 1
	}
	return &Runtime{
		sender:            sender,
		discovery:         discovery,
		store:             persistentStore,
		replicationFactor: replicationFactor,
		retryInterval:     retryInterval,
		events:            newSubscriptionManager[ReplicationEvent](),
		commandCh:         make(chan command, 64),
		responseCh:        make(chan responseResult, 64),
		inFlight:          make(map[uint64]inFlightRequest),
	}
}

// Subscribe registers for replication lifecycle events.
func (r *Runtime) Subscribe(buffer int) (<-chan ReplicationEvent, func()) {
	return r.events.Subscribe(buffer)
}

// Dial asks the runtime to connect to addr.
func (r *Runtime) Dial(addr multiaddr.Multiaddr) {
	r.commandCh <- command{kind: cmdDial, dialAddr: addr}
}

// Publish enqueues env for replication to the current peer set and blocks
// until the command is accepted into the runtime — not until any peer
// acknowledges it.
func (r *Runtime) Publish(env envelope.TransportEnvelope) error {
	reply := make(chan error, 1)
	r.commandCh <- command{kind: cmdPublish, publishEnvelope: env, publishReply: reply}
	return <-reply
}

// Shutdown stops the runtime and waits for its loop to exit.
func (r *Runtime) Shutdown() {
	reply := make(chan struct{})
	r.commandCh <- command{kind: cmdShutdown, shutdownReply: reply}
	<-reply
}

// Run is the cooperative event loop: suspension points are the command
// channel, pending send results, and the retry timer tick. Ack handling is
// serialized with retry handling because both run exclusively inside this
// loop — no ack can race a retry for the same (message_id, peer), since the
// in-flight map is only ever touched here.
func (r *Runtime) Run(ctx context.Context) {
	if err := r.replayPending(ctx); err != nil {
		logrus.WithError(err).Warn("failed to replay pending envelopes on startup")
	}

	ticker := time.NewTicker(r.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-r.commandCh:
			switch cmd.kind {
			case cmdDial:
				r.handleDial(ctx, cmd.dialAddr)
			case cmdPublish:
				r.handlePublish(ctx, cmd.publishEnvelope, cmd.publishReply)
			case cmdShutdown:
				close(cmd.shutdownReply)
				return
			}
		case result := <-r.responseCh:
			r.handleResponse(result)
		case <-ticker.C:
			if err := r.retryPending(ctx); err != nil {
				logrus.WithError(err).Warn("failed to retry pending envelopes")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runtime) handleDial(ctx context.Context, addr multiaddr.Multiaddr) {
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{"addr": addr}).WithError(err).Warn("dial address has no peer id")
		return
	}
	if err := r.sender.Connect(ctx, *info); err != nil {
		logrus.WithFields(logrus.Fields{"addr": addr}).WithError(err).Warn("dial failed")
	}
}

func (r *Runtime) handlePublish(ctx context.Context, env envelope.TransportEnvelope, reply chan error) {
	messageId := env.MessageId.String()

	peers := r.discovery.Peers()
	if len(peers) == 0 {
		reply <- PublishErrNoPeers
		r.events.Publish(ReplicationEvent{Kind: PublishFailed, MessageId: messageId, Reason: "no peers available"})
		return
	}

	targets := selectTargets(peers, r.replicationFactor)
	if err := r.store.InsertOutbound(env.MessageId, env, targets); err != nil {
		reason := fmt.Sprintf("failed to persist envelope: %v", err)
		reply <- newErr("Publish", ErrReplication, err)
		r.events.Publish(ReplicationEvent{Kind: PublishFailed, MessageId: messageId, Reason: reason})
		return
	}

	sentAny := false
	for _, p := range targets {
		if r.isInFlight(messageId, p) {
			continue
		}
		r.sendAsync(ctx, env, messageId, p)
		sentAny = true
	}

	if sentAny {
		r.events.Publish(ReplicationEvent{Kind: PublishQueued, MessageId: messageId})
	}
	reply <- nil
}

func (r *Runtime) handleResponse(result responseResult) {
	delete(r.inFlight, result.requestID)

	if result.err != nil {
		r.events.Publish(ReplicationEvent{Kind: PublishFailed, MessageId: result.messageId, Reason: fmt.Sprintf("outbound failure: %v", result.err)})
		return
	}

	if result.accepted {
		if _, err := r.store.MarkPeerSuccess(parseMessageIdOrZero(result.messageId), result.peer); err != nil {
			logrus.WithFields(logrus.Fields{"peer": result.peer, "message_id": result.messageId}).WithError(err).Warn("failed to update storage after ack")
			return
		}
		r.events.Publish(ReplicationEvent{Kind: PublishAck, MessageId: result.messageId, Peer: result.peer})
		return
	}

	r.events.Publish(ReplicationEvent{Kind: PublishFailed, MessageId: result.messageId, Reason: "replication rejected"})
}

func (r *Runtime) replayPending(ctx context.Context) error {
	return r.resendPending(ctx)
}

func (r *Runtime) retryPending(ctx context.Context) error {
	return r.resendPending(ctx)
}

func (r *Runtime) resendPending(ctx context.Context) error {
	records, err := r.store.LoadPending()
	if err != nil {
		return fmt.Errorf("overlay: resend pending: load pending: %w", err)
	}

	for _, record := range records {
		messageId := record.MessageId.String()
		for _, p := range record.PendingPeers {
			if r.isInFlight(messageId, p) {
				continue
			}
			r.events.Publish(ReplicationEvent{Kind: PublishRetry, MessageId: messageId, Peer: p})
			r.sendAsync(ctx, record.Envelope, messageId, p)
		}
	}
	return nil
}

// sendAsync reserves a request id and in-flight slot synchronously (inside
// the loop), then performs the actual network send in a goroutine and
// reports the outcome back over responseCh so the loop processes it in its
// own turn.
func (r *Runtime) sendAsync(ctx context.Context, env envelope.TransportEnvelope, messageId string, p peer.ID) {
	r.nextRequestID++
	requestID := r.nextRequestID
	r.inFlight[requestID] = inFlightRequest{messageId: messageId, peer: p}

	go func() {
		accepted, err := r.sender.SendEnvelope(ctx, p, env)
		r.responseCh <- responseResult{
			requestID:       requestID,
			inFlightRequest: inFlightRequest{messageId: messageId, peer: p},
			accepted:        accepted,
			err:             err,
		}
	}()
}

func (r *Runtime) isInFlight(messageId string, p peer.ID) bool {
	for _, req := range r.inFlight {
		if req.messageId == messageId && req.peer == p {
			return true
		}
	}
	return false
}

// selectTargets takes the first min(replicationFactor, len(peers)) peers
// from a deterministic (lexicographic) ordering, stable across retries
// within this process run.
func selectTargets(peers []peer.ID, replicationFactor int) []peer.ID {
	sorted := make([]peer.ID, len(peers))
	copy(sorted, peers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	if replicationFactor > len(sorted) {
		replicationFactor = len(sorted)
	}
	return sorted[:replicationFactor]
}

func parseMessageIdOrZero(s string) envelope.MessageId {
	id, err := uuid.Parse(s)
	if err != nil {
		return envelope.MessageId{}
	}
	return id
}

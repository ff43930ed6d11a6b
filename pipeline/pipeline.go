package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jakobs1900/cryptochat/crypto"
	"github.com/jakobs1900/cryptochat/envelope"
	"github.com/jakobs1900/cryptochat/store"
)

// Publisher is the subset of an overlay handle the pipeline needs to hand
// off an outbound envelope for replication.
type Publisher interface {
	Publish(env envelope.TransportEnvelope) error
}

// SendRequest is a request to send a message through the pipeline.
type SendRequest struct {
	ConversationId  envelope.ConversationId
	RecipientDevice envelope.DeviceId
	RecipientCert   *crypto.Keypair
	Body            []byte
}

// SendResponse is returned once a message has been wrapped and handed to
// the overlay for replication.
type SendResponse struct {
	MessageId  envelope.MessageId
	QueuedAtMs int64
}

// Pipeline is the single entry point a node uses to send and receive
// messages: it owns the active signing/encryption keypair, builds and tears
// down envelopes, hands outbound envelopes to the overlay, and keeps a
// durable receipt log for every message id it has touched.
type Pipeline struct {
	localDevice envelope.DeviceId
	publisher   Publisher
	store       *store.Store
	outbound    *outboundQueue

	mu      sync.RWMutex
	keypair *crypto.Keypair
}

// New builds a Pipeline for localDevice, publishing outbound envelopes
// through publisher and recording receipts in persistentStore.
func New(localDevice envelope.DeviceId, publisher Publisher, persistentStore *store.Store) *Pipeline {
	return &Pipeline{
		localDevice: localDevice,
		publisher:   publisher,
		store:       persistentStore,
		outbound:    newOutboundQueue(defaultQueueCapacity),
	}
}

// SetKeypair installs the keypair used for signing outbound messages and
// decrypting inbound ones. It may be called again to rotate keys.
func (p *Pipeline) SetKeypair(kp *crypto.Keypair) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keypair = kp
}

func (p *Pipeline) activeKeypair() (*crypto.Keypair, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.keypair == nil {
		return nil, newErr("activeKeypair", ErrNotInitialized, fmt.Errorf("no keypair installed"))
	}
	return p.keypair, nil
}

// Send wraps req's body for req.RecipientCert, hands the resulting envelope
// to the overlay for replication, and records a Queued receipt. A failure
// to wrap or publish instead records a Failed receipt and returns the
// error; the message id is still reported so a caller can look up that
// receipt.
func (p *Pipeline) Send(req SendRequest) (SendResponse, error) {
	log := logrus.WithFields(logrus.Fields{"function": "Send", "conversation_id": req.ConversationId, "recipient_device": req.RecipientDevice})

	keypair, err := p.activeKeypair()
	if err != nil {
		return SendResponse{}, err
	}

	messageId := uuid.New()
	queuedAtMs := time.Now().UnixMilli()

	msg := envelope.PlaintextMessage{
		MessageId:      messageId,
		ConversationId: req.ConversationId,
		SenderDevice:   p.localDevice,
		CreatedMs:      queuedAtMs,
		Body:           req.Body,
	}

	transportEnv, err := envelope.Wrap(msg, keypair, req.RecipientCert, req.RecipientDevice)
	if err != nil {
		p.recordReceipt(messageId, store.ReceiptFailed)
		return SendResponse{MessageId: messageId}, newErr("Send", ErrCrypto, err)
	}

	if err := p.publisher.Publish(transportEnv); err != nil {
		log.WithError(err).Warn("failed to hand envelope to overlay, queuing for replay")
		if dropped := p.outbound.push(queuedSend{plaintext: msg, recipientCert: req.RecipientCert, recipientDevice: req.RecipientDevice}); dropped {
			log.Warn("outbound replay queue full, dropped oldest queued send")
		}
		p.recordReceipt(messageId, store.ReceiptFailed)
		return SendResponse{MessageId: messageId}, newErr("Send", ErrReplication, err)
	}

	p.recordReceipt(messageId, store.ReceiptQueued)
	return SendResponse{MessageId: messageId, QueuedAtMs: queuedAtMs}, nil
}

// QueueLen reports how many sends are currently held in the replay queue
// awaiting RetryQueued.
func (p *Pipeline) QueueLen() int {
	return p.outbound.len()
}

// RetryQueued re-wraps and republishes every send currently held in the
// replay queue, using whatever keypair is active right now — which may
// differ from the one active when the original Send call failed, e.g.
// after a key rotation. Entries whose publish fails again are re-queued;
// entries that fail to re-wrap are dropped with a Failed receipt. If no
// keypair is installed, every drained entry is dropped and the error is
// returned.
func (p *Pipeline) RetryQueued() (sent int, err error) {
	items := p.outbound.drain()
	if len(items) == 0 {
		return 0, nil
	}

	keypair, kerr := p.activeKeypair()
	if kerr != nil {
		return 0, kerr
	}

	for _, item := range items {
		transportEnv, werr := envelope.Wrap(item.plaintext, keypair, item.recipientCert, item.recipientDevice)
		if werr != nil {
			logrus.WithFields(logrus.Fields{"function": "RetryQueued", "message_id": item.plaintext.MessageId}).WithError(werr).Warn("failed to re-wrap queued send, dropping")
			p.recordReceipt(item.plaintext.MessageId, store.ReceiptFailed)
			continue
		}

		if perr := p.publisher.Publish(transportEnv); perr != nil {
			p.outbound.push(item)
			err = newErr("RetryQueued", ErrReplication, perr)
			continue
		}

		p.recordReceipt(item.plaintext.MessageId, store.ReceiptQueued)
		sent++
	}
	return sent, err
}

// Receive decrypts and verifies env against senderCert and records a
// Delivered receipt on success. Unlike Send, a failure here records no
// receipt at all — the message was never successfully attributed to a
// message id this device can track.
func (p *Pipeline) Receive(env envelope.TransportEnvelope, senderCert *crypto.Keypair) (envelope.PlaintextMessage, error) {
	keypair, err := p.activeKeypair()
	if err != nil {
		return envelope.PlaintextMessage{}, err
	}

	plaintext, err := envelope.Unwrap(env, keypair, senderCert)
	if err != nil {
		return envelope.PlaintextMessage{}, newErr("Receive", ErrCrypto, err)
	}

	p.recordReceipt(plaintext.MessageId, store.ReceiptDelivered)
	return plaintext, nil
}

// MarkSent records that messageId was successfully handed off by the
// overlay to at least one peer. Meant to be wired to a ReplicationEvent
// subscription's PublishAck events.
func (p *Pipeline) MarkSent(messageId envelope.MessageId) {
	p.recordReceipt(messageId, store.ReceiptSent)
}

// MarkFailed records that replication of messageId failed. Meant to be
// wired to a ReplicationEvent subscription's PublishFailed events.
func (p *Pipeline) MarkFailed(messageId envelope.MessageId) {
	p.recordReceipt(messageId, store.ReceiptFailed)
}

// GetReceipts returns the durable receipt log for messageId.
func (p *Pipeline) GetReceipts(messageId envelope.MessageId) ([]store.Receipt, error) {
	receipts, err := p.store.GetReceipts(messageId)
	if err != nil {
		return nil, newErr("GetReceipts", ErrStorage, err)
	}
	return receipts, nil
}

func (p *Pipeline) recordReceipt(messageId envelope.MessageId, status store.ReceiptStatus) {
	receipt := store.Receipt{
		MessageId: messageId,
		Party:     p.localDevice,
		AtMs:      time.Now().UnixMilli(),
		Status:    status,
	}
	if err := p.store.AppendReceipt(receipt); err != nil {
		logrus.WithFields(logrus.Fields{"function": "recordReceipt", "message_id": messageId, "status": status}).WithError(err).Warn("failed to persist receipt")
	}
}

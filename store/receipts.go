package store

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/jakobs1900/cryptochat/envelope"
)

// ReceiptStatus is the lifecycle state of one party's handling of a message.
type ReceiptStatus string

const (
	ReceiptQueued    ReceiptStatus = "queued"
	ReceiptSent      ReceiptStatus = "sent"
	ReceiptDelivered ReceiptStatus = "delivered"
	ReceiptFailed    ReceiptStatus = "failed"
)

// Receipt is one append-only entry in a message's delivery log. Receipts are
// advisory bookkeeping, not cryptographic proof of delivery.
type Receipt struct {
	MessageId envelope.MessageId `json:"message_id"`
	Party     envelope.DeviceId  `json:"party"`
	AtMs      int64              `json:"at_ms"`
	Status    ReceiptStatus      `json:"status"`
}

// AppendReceipt adds r to the durable receipt log for its message id. The
// log persists across process restarts, unlike an in-memory-only broadcast
// channel, so get_receipts after a crash still sees prior history.
func (s *Store) AppendReceipt(r Receipt) error {
	key := []byte(r.MessageId.String())

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceipts)

		var log []Receipt
		if existing := b.Get(key); existing != nil {
			if err := json.Unmarshal(existing, &log); err != nil {
				return fmt.Errorf("store: append receipt: decode existing log: %w", err)
			}
		}
		log = append(log, r)

		encoded, err := json.Marshal(log)
		if err != nil {
			return fmt.Errorf("store: append receipt: encode log: %w", err)
		}
		return b.Put(key, encoded)
	})
}

// GetReceipts returns the append log for messageId, or an empty slice if
// none has been recorded.
func (s *Store) GetReceipts(messageId envelope.MessageId) ([]Receipt, error) {
	key := []byte(messageId.String())
	var log []Receipt

	err := s.db.View(func(tx *bolt.Tx) error {
		existing := tx.Bucket(bucketReceipts).Get(key)
		if existing == nil {
			return nil
		}
		return json.Unmarshal(existing, &log)
	})
	if err != nil {
		return nil, fmt.Errorf("store: get receipts: %w", err)
	}
	return log, nil
}

package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jakobs1900/cryptochat/envelope"
)

// InboundRecord is a received envelope as kept in the inbound tree, keyed by
// message id so at-least-once delivery from the overlay can be idempotent.
type InboundRecord struct {
	Envelope envelope.TransportEnvelope
	StoredMs int64
}

// StoreInbound upserts env keyed by its message id. A second store of the
// same id leaves the record semantically identical; only StoredMs is
// refreshed.
func (s *Store) StoreInbound(env envelope.TransportEnvelope) error {
	key := []byte(env.MessageId.String())
	record := InboundRecord{
		Envelope: env,
		StoredMs: time.Now().UnixMilli(),
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: store inbound: encode record: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInbound).Put(key, encoded)
	})
	if err != nil {
		return fmt.Errorf("store: store inbound: %w", err)
	}
	return nil
}

// GetInbound returns the stored record for messageId, or ok=false if none
// has been stored.
func (s *Store) GetInbound(messageId envelope.MessageId) (record InboundRecord, ok bool, err error) {
	key := []byte(messageId.String())

	err = s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketInbound).Get(key)
		if value == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(value, &record)
	})
	if err != nil {
		return InboundRecord{}, false, fmt.Errorf("store: get inbound: %w", err)
	}
	return record, ok, nil
}

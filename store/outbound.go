package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/jakobs1900/cryptochat/envelope"
)

// PendingOutbound is an envelope awaiting replication to one or more peers.
// Invariant: PendingPeers and AckedPeers never share a member; once
// PendingPeers is empty the record is deleted from the store.
type PendingOutbound struct {
	MessageId    envelope.MessageId
	Envelope     envelope.TransportEnvelope
	PendingPeers []peer.ID
	AckedPeers   []peer.ID
}

// storedOutbound is the on-disk encoding of a PendingOutbound record; peers
// are kept as their string form so that a peer ID which no longer parses
// under a future libp2p version doesn't corrupt the whole record.
type storedOutbound struct {
	Envelope     envelope.TransportEnvelope `json:"envelope"`
	PendingPeers []string                   `json:"pending_peers"`
	AckedPeers   []string                   `json:"acked_peers"`
}

// InsertOutbound upserts the outbound record for messageId. If a record
// already exists its envelope is overwritten and peers is unioned into
// pending_peers, excluding any peer already present in acked_peers — an
// acked peer is never resurrected into pending.
func (s *Store) InsertOutbound(messageId envelope.MessageId, env envelope.TransportEnvelope, peers []peer.ID) error {
	key := []byte(messageId.String())

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutbound)

		var record storedOutbound
		if existing := b.Get(key); existing != nil {
			if err := json.Unmarshal(existing, &record); err != nil {
				return fmt.Errorf("decode existing outbound record: %w", err)
			}
		}
		record.Envelope = env

		acked := toStringSet(record.AckedPeers)
		pending := toStringSet(record.PendingPeers)
		for _, p := range peers {
			ps := p.String()
			if acked[ps] {
				continue
			}
			pending[ps] = true
		}
		record.PendingPeers = sortedKeys(pending)

		encoded, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode outbound record: %w", err)
		}
		return b.Put(key, encoded)
	})
}

// MarkPeerSuccess moves peer from pending to acked for messageId. If
// pending becomes empty the record is deleted and completed is true. A
// missing record is a no-op that reports completed.
func (s *Store) MarkPeerSuccess(messageId envelope.MessageId, p peer.ID) (completed bool, err error) {
	key := []byte(messageId.String())
	log := logrus.WithFields(logrus.Fields{"function": "MarkPeerSuccess", "message_id": messageId, "peer": p})

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutbound)

		existing := b.Get(key)
		if existing == nil {
			completed = true
			return nil
		}

		var record storedOutbound
		if err := json.Unmarshal(existing, &record); err != nil {
			return fmt.Errorf("decode existing outbound record: %w", err)
		}

		ps := p.String()
		record.PendingPeers = removeString(record.PendingPeers, ps)
		if !containsString(record.AckedPeers, ps) {
			record.AckedPeers = append(record.AckedPeers, ps)
		}

		if len(record.PendingPeers) == 0 {
			completed = true
			return b.Delete(key)
		}

		encoded, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode outbound record: %w", err)
		}
		return b.Put(key, encoded)
	})
	if err != nil {
		log.WithError(err).Error("failed to mark peer success")
		return false, fmt.Errorf("store: mark peer success: %w", err)
	}
	return completed, nil
}

// LoadPending returns every outbound record with at least one pending peer,
// with peer strings parsed into peer.ID. A pending peer string that no
// longer parses is silently filtered rather than surfaced as an error; a
// record left with zero parseable peers is skipped entirely.
func (s *Store) LoadPending() ([]PendingOutbound, error) {
	var out []PendingOutbound

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutbound)
		return b.ForEach(func(key, value []byte) error {
			var record storedOutbound
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("decode outbound record %q: %w", key, err)
			}

			messageId, err := parseUUID(string(key))
			if err != nil {
				return fmt.Errorf("decode outbound key %q: %w", key, err)
			}

			var peers []peer.ID
			for _, ps := range record.PendingPeers {
				pid, err := peer.Decode(ps)
				if err != nil {
					continue
				}
				peers = append(peers, pid)
			}
			if len(peers) == 0 {
				return nil
			}

			var acked []peer.ID
			for _, ps := range record.AckedPeers {
				pid, err := peer.Decode(ps)
				if err != nil {
					continue
				}
				acked = append(acked, pid)
			}

			out = append(out, PendingOutbound{
				MessageId:    messageId,
				Envelope:     record.Envelope,
				PendingPeers: peers,
				AckedPeers:   acked,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: load pending: %w", err)
	}
	return out, nil
}

func toStringSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func removeString(items []string, target string) []string {
	out := items[:0]
	for _, i := range items {
		if i != target {
			out = append(out, i)
		}
	}
	return out
}

func containsString(items []string, target string) bool {
	for _, i := range items {
		if i == target {
			return true
		}
	}
	return false
}

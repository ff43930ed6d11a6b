package store

import (
	"path/filepath"
	"testing"
	"time"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakobs1900/cryptochat/envelope"
)

func newTestPeerID(t *testing.T) peer.ID {
	t.Helper()
	_, pub, err := p2pcrypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	id, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)
	return id
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "node.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEnvelope() envelope.TransportEnvelope {
	return envelope.TransportEnvelope{
		SchemaVersion:   envelope.SchemaVersion,
		MessageId:       uuid.New(),
		ConversationId:  uuid.New(),
		SenderDevice:    uuid.New(),
		RecipientDevice: uuid.New(),
		CreatedMs:       time.Now().UnixMilli(),
		PGPEnvelope: envelope.PGPEnvelope{
			Payload:           "cGF5bG9hZA==",
			SenderFingerprint: "DEADBEEF",
		},
	}
}

func TestInsertOutboundThenLoadPending(t *testing.T) {
	s := openTestStore(t)
	env := testEnvelope()
	peerA, peerB := newTestPeerID(t), newTestPeerID(t)

	require.NoError(t, s.InsertOutbound(env.MessageId, env, []peer.ID{peerA, peerB}))

	pending, err := s.LoadPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, env.MessageId, pending[0].MessageId)
	assert.ElementsMatch(t, []peer.ID{peerA, peerB}, pending[0].PendingPeers)
	assert.Empty(t, pending[0].AckedPeers)
}

func TestMarkPeerSuccessDeletesRecordWhenPendingEmpty(t *testing.T) {
	s := openTestStore(t)
	env := testEnvelope()
	peerA := newTestPeerID(t)

	require.NoError(t, s.InsertOutbound(env.MessageId, env, []peer.ID{peerA}))

	completed, err := s.MarkPeerSuccess(env.MessageId, peerA)
	require.NoError(t, err)
	assert.True(t, completed)

	pending, err := s.LoadPending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkPeerSuccessKeepsRecordWithRemainingPending(t *testing.T) {
	s := openTestStore(t)
	env := testEnvelope()
	peerA, peerB := newTestPeerID(t), newTestPeerID(t)

	require.NoError(t, s.InsertOutbound(env.MessageId, env, []peer.ID{peerA, peerB}))

	completed, err := s.MarkPeerSuccess(env.MessageId, peerA)
	require.NoError(t, err)
	assert.False(t, completed)

	pending, err := s.LoadPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.ElementsMatch(t, []peer.ID{peerB}, pending[0].PendingPeers)
	assert.ElementsMatch(t, []peer.ID{peerA}, pending[0].AckedPeers)
}

func TestMarkPeerSuccessOnMissingRecordIsNoopCompleted(t *testing.T) {
	s := openTestStore(t)
	completed, err := s.MarkPeerSuccess(uuid.New(), newTestPeerID(t))
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestLoadPendingSurvivesCloseAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.bolt")
	env := testEnvelope()
	peerA, peerB := newTestPeerID(t), newTestPeerID(t)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.InsertOutbound(env.MessageId, env, []peer.ID{peerA, peerB}))
	completed, err := s.MarkPeerSuccess(env.MessageId, peerA)
	require.NoError(t, err)
	require.False(t, completed)
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	pending, err := reopened.LoadPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, env.MessageId, pending[0].MessageId)
	assert.ElementsMatch(t, []peer.ID{peerB}, pending[0].PendingPeers)
	assert.ElementsMatch(t, []peer.ID{peerA}, pending[0].AckedPeers)
}

func TestInsertOutboundNeverResurrectsAckedPeer(t *testing.T) {
	s := openTestStore(t)
	env := testEnvelope()
	peerA, peerB, peerC := newTestPeerID(t), newTestPeerID(t), newTestPeerID(t)

	// peerA acks while peerB is still outstanding, so the record survives
	// with peerA recorded as acked.
	require.NoError(t, s.InsertOutbound(env.MessageId, env, []peer.ID{peerA, peerB}))
	completed, err := s.MarkPeerSuccess(env.MessageId, peerA)
	require.NoError(t, err)
	require.False(t, completed)

	// Re-insert with the acked peer plus a brand new one: acked peerA must
	// stay acked, not slide back into pending.
	require.NoError(t, s.InsertOutbound(env.MessageId, env, []peer.ID{peerA, peerC}))

	pending, err := s.LoadPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.ElementsMatch(t, []peer.ID{peerB, peerC}, pending[0].PendingPeers)
	assert.ElementsMatch(t, []peer.ID{peerA}, pending[0].AckedPeers)
}

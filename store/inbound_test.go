package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreInboundThenGet(t *testing.T) {
	s := openTestStore(t)
	env := testEnvelope()

	require.NoError(t, s.StoreInbound(env))

	record, ok, err := s.GetInbound(env.MessageId)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, env, record.Envelope)
	assert.NotZero(t, record.StoredMs)
}

func TestStoreInboundIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	env := testEnvelope()

	require.NoError(t, s.StoreInbound(env))
	first, _, err := s.GetInbound(env.MessageId)
	require.NoError(t, err)

	require.NoError(t, s.StoreInbound(env))
	second, _, err := s.GetInbound(env.MessageId)
	require.NoError(t, err)

	assert.Equal(t, first.Envelope, second.Envelope)
}

func TestGetInboundMissingRecord(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetInbound(testEnvelope().MessageId)
	require.NoError(t, err)
	assert.False(t, ok)
}

package envelope

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakobs1900/cryptochat/crypto"
)

func testMessage(t *testing.T) PlaintextMessage {
	t.Helper()
	return PlaintextMessage{
		MessageId:      uuid.New(),
		ConversationId: uuid.New(),
		SenderDevice:   uuid.New(),
		CreatedMs:      time.Now().UnixMilli(),
		Body:           []byte("hello, wire"),
	}
}

func TestWrapUnwrapRoundtrip(t *testing.T) {
	sender, err := crypto.Generate("sender@cryptochat.example")
	require.NoError(t, err)
	recipient, err := crypto.Generate("recipient@cryptochat.example")
	require.NoError(t, err)

	msg := testMessage(t)
	recipientDevice := uuid.New()

	env, err := Wrap(msg, sender, recipient, recipientDevice)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.Equal(t, sender.Fingerprint(), env.PGPEnvelope.SenderFingerprint)
	assert.Equal(t, recipientDevice, env.RecipientDevice)

	out, err := Unwrap(env, recipient, sender)
	require.NoError(t, err)
	assert.Equal(t, msg.MessageId, out.MessageId)
	assert.Equal(t, msg.ConversationId, out.ConversationId)
	assert.Equal(t, msg.SenderDevice, out.SenderDevice)
	assert.Equal(t, msg.CreatedMs, out.CreatedMs)
	assert.Equal(t, msg.Body, out.Body)
}

func TestUnwrapFailsUnderWrongSenderCert(t *testing.T) {
	sender, err := crypto.Generate("sender@cryptochat.example")
	require.NoError(t, err)
	impostor, err := crypto.Generate("impostor@cryptochat.example")
	require.NoError(t, err)
	recipient, err := crypto.Generate("recipient@cryptochat.example")
	require.NoError(t, err)

	env, err := Wrap(testMessage(t), sender, recipient, uuid.New())
	require.NoError(t, err)

	_, err = Unwrap(env, recipient, impostor)
	require.Error(t, err)
	var invalid *ErrInvalidEnvelope
	require.ErrorAs(t, err, &invalid)
}

func TestUnwrapFailsUnderWrongRecipientKeypair(t *testing.T) {
	sender, err := crypto.Generate("sender@cryptochat.example")
	require.NoError(t, err)
	recipient, err := crypto.Generate("recipient@cryptochat.example")
	require.NoError(t, err)
	other, err := crypto.Generate("other@cryptochat.example")
	require.NoError(t, err)

	env, err := Wrap(testMessage(t), sender, recipient, uuid.New())
	require.NoError(t, err)

	_, err = Unwrap(env, other, sender)
	assert.Error(t, err)
}

func TestUnwrapDetectsTamperedHeader(t *testing.T) {
	sender, err := crypto.Generate("sender@cryptochat.example")
	require.NoError(t, err)
	recipient, err := crypto.Generate("recipient@cryptochat.example")
	require.NoError(t, err)

	env, err := Wrap(testMessage(t), sender, recipient, uuid.New())
	require.NoError(t, err)

	// Swap in a different message_id on the cleartext header without
	// touching the sealed ciphertext: the envelope decrypts fine but its
	// header no longer matches the plaintext it carries.
	env.MessageId = uuid.New()

	_, err = Unwrap(env, recipient, sender)
	require.Error(t, err)
	var invalid *ErrInvalidEnvelope
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "message_id mismatch")
}

func TestUnwrapRejectsGarbagePayload(t *testing.T) {
	sender, err := crypto.Generate("sender@cryptochat.example")
	require.NoError(t, err)
	recipient, err := crypto.Generate("recipient@cryptochat.example")
	require.NoError(t, err)

	env, err := Wrap(testMessage(t), sender, recipient, uuid.New())
	require.NoError(t, err)
	env.PGPEnvelope.Payload = "not base64!!"

	_, err = Unwrap(env, recipient, sender)
	assert.Error(t, err)
}

package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakobs1900/cryptochat/envelope"
)

func TestSealWithFingerprintRoundtrip(t *testing.T) {
	sealed, err := SealWithFingerprint("ABCD1234", []byte("top secret history"))
	require.NoError(t, err)

	plaintext, err := OpenWithFingerprint("ABCD1234", sealed)
	require.NoError(t, err)
	assert.Equal(t, "top secret history", string(plaintext))
}

func TestOpenWithFingerprintFailsUnderWrongFingerprint(t *testing.T) {
	sealed, err := SealWithFingerprint("ABCD1234", []byte("top secret history"))
	require.NoError(t, err)

	_, err = OpenWithFingerprint("DIFFERENT", sealed)
	assert.Error(t, err)
}

func TestSaveAndLoadConversationsRoundtrip(t *testing.T) {
	dir := t.TempDir()
	conversations := []Conversation{{
		Id:           uuid.New(),
		Name:         "alice & bob",
		LastActivity: time.Now().UnixMilli(),
		Messages: []envelope.PlaintextMessage{{
			MessageId:      uuid.New(),
			ConversationId: uuid.New(),
			SenderDevice:   uuid.New(),
			CreatedMs:      time.Now().UnixMilli(),
			Body:           []byte("hi"),
		}},
	}}

	require.NoError(t, SaveConversations(dir, "FINGERPRINT", conversations))

	loaded, err := LoadConversations(dir, "FINGERPRINT")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, conversations[0].Name, loaded[0].Name)
	assert.Equal(t, conversations[0].Messages[0].Body, loaded[0].Messages[0].Body)
}

func TestLoadConversationsMissingFileReturnsEmpty(t *testing.T) {
	loaded, err := LoadConversations(t.TempDir(), "FINGERPRINT")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

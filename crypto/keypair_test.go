package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesUsableKeypair(t *testing.T) {
	kp, err := Generate("alice@cryptochat.example")
	require.NoError(t, err)
	assert.NotEmpty(t, kp.Fingerprint())
}

func TestExportPublicAndFromPublicRoundtrip(t *testing.T) {
	kp, err := Generate("bob@cryptochat.example")
	require.NoError(t, err)

	armored, err := kp.ExportPublic()
	require.NoError(t, err)
	assert.Contains(t, armored, "BEGIN PGP PUBLIC KEY BLOCK")

	pub, err := FromPublic(armored)
	require.NoError(t, err)
	assert.Equal(t, kp.Fingerprint(), pub.Fingerprint())
}

func TestExportSecretAndFromSecretRoundtrip(t *testing.T) {
	kp, err := Generate("carol@cryptochat.example")
	require.NoError(t, err)

	armored, err := kp.ExportSecret()
	require.NoError(t, err)
	assert.Contains(t, armored, "BEGIN PGP PRIVATE KEY BLOCK")

	restored, err := FromSecret(armored)
	require.NoError(t, err)
	assert.Equal(t, kp.Fingerprint(), restored.Fingerprint())
}

func TestFromPublicRejectsGarbage(t *testing.T) {
	_, err := FromPublic("not an armored key")
	assert.Error(t, err)
}

func TestFromPublicRejectsEmptyKeyring(t *testing.T) {
	_, err := FromPublic("-----BEGIN PGP PUBLIC KEY BLOCK-----\n\n-----END PGP PUBLIC KEY BLOCK-----\n")
	assert.Error(t, err)
}

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	recipient, err := Generate("recipient@cryptochat.example")
	require.NoError(t, err)

	plaintext := []byte("a secret only the recipient should read")
	ciphertext, err := Encrypt(recipient, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(recipient, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptAndSignDecryptAndVerifyRoundtrip(t *testing.T) {
	sender, err := Generate("sender@cryptochat.example")
	require.NoError(t, err)
	recipient, err := Generate("recipient@cryptochat.example")
	require.NoError(t, err)

	plaintext := []byte("authenticated and confidential")
	ciphertext, err := EncryptAndSign(sender, recipient, plaintext)
	require.NoError(t, err)

	decrypted, err := DecryptAndVerify(recipient, sender, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptAndVerifyFailsWithoutSignature(t *testing.T) {
	sender, err := Generate("sender@cryptochat.example")
	require.NoError(t, err)
	recipient, err := Generate("recipient@cryptochat.example")
	require.NoError(t, err)

	ciphertext, err := Encrypt(recipient, []byte("unsigned"))
	require.NoError(t, err)

	_, err = DecryptAndVerify(recipient, sender, ciphertext)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrVerificationFailed, cerr.Kind)
}

func TestDecryptAndVerifyFailsUnderWrongSenderCert(t *testing.T) {
	sender, err := Generate("sender@cryptochat.example")
	require.NoError(t, err)
	impostor, err := Generate("impostor@cryptochat.example")
	require.NoError(t, err)
	recipient, err := Generate("recipient@cryptochat.example")
	require.NoError(t, err)

	ciphertext, err := EncryptAndSign(sender, recipient, []byte("hello"))
	require.NoError(t, err)

	_, err = DecryptAndVerify(recipient, impostor, ciphertext)
	assert.Error(t, err)
}

func TestDecryptFailsUnderWrongRecipient(t *testing.T) {
	recipient, err := Generate("recipient@cryptochat.example")
	require.NoError(t, err)
	other, err := Generate("other@cryptochat.example")
	require.NoError(t, err)

	ciphertext, err := Encrypt(recipient, []byte("hello"))
	require.NoError(t, err)

	_, err = Decrypt(other, ciphertext)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrDecryptionFailed, cerr.Kind)
}

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundtrip(t *testing.T) {
	signer, err := Generate("signer@cryptochat.example")
	require.NoError(t, err)

	msg := []byte("the message that must be authentic")
	sig, err := Sign(signer, msg)
	require.NoError(t, err)

	assert.NoError(t, Verify(signer, msg, sig))
}

func TestVerifyFailsOnTamperedMessage(t *testing.T) {
	signer, err := Generate("signer@cryptochat.example")
	require.NoError(t, err)

	msg := []byte("original")
	sig, err := Sign(signer, msg)
	require.NoError(t, err)

	err = Verify(signer, []byte("tampered"), sig)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrVerificationFailed, cerr.Kind)
}

func TestVerifyFailsUnderWrongCertificate(t *testing.T) {
	signer, err := Generate("signer@cryptochat.example")
	require.NoError(t, err)
	other, err := Generate("other@cryptochat.example")
	require.NoError(t, err)

	msg := []byte("hello")
	sig, err := Sign(signer, msg)
	require.NoError(t, err)

	err = Verify(other, msg, sig)
	assert.Error(t, err)
}

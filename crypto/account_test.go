package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAccountAndLoginRoundtrip(t *testing.T) {
	kp, err := Generate("alice@cryptochat.example")
	require.NoError(t, err)

	account, err := CreateAccount("alice", "correct horse", kp)
	require.NoError(t, err)
	assert.Equal(t, kp.Fingerprint(), account.Fingerprint)
	assert.NotEmpty(t, account.PasswordHash)

	restored, err := Login("correct horse", account)
	require.NoError(t, err)
	assert.Equal(t, kp.Fingerprint(), restored.Fingerprint())
}

func TestLoginFailsWithWrongPassword(t *testing.T) {
	kp, err := Generate("alice@cryptochat.example")
	require.NoError(t, err)

	account, err := CreateAccount("alice", "correct horse", kp)
	require.NoError(t, err)

	_, err = Login("battery staple", account)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrWrongPassword, cerr.Kind)
}

func TestCreateAccountRejectsShortPassword(t *testing.T) {
	kp, err := Generate("alice@cryptochat.example")
	require.NoError(t, err)

	_, err = CreateAccount("alice", "abc", kp)
	assert.Error(t, err)
}

func TestTwoAccountsForSamePasswordHaveIndependentSalts(t *testing.T) {
	kp1, err := Generate("alice@cryptochat.example")
	require.NoError(t, err)
	kp2, err := Generate("bob@cryptochat.example")
	require.NoError(t, err)

	a1, err := CreateAccount("alice", "same password", kp1)
	require.NoError(t, err)
	a2, err := CreateAccount("bob", "same password", kp2)
	require.NoError(t, err)

	assert.NotEqual(t, a1.KeyDerivationSalt, a2.KeyDerivationSalt)
	assert.NotEqual(t, a1.PasswordHash, a2.PasswordHash)
}

package crypto

import (
	"bytes"
	"io"

	openpgp "github.com/ProtonMail/go-crypto/openpgp"
	"github.com/sirupsen/logrus"
)

// Encrypt encrypts plaintext to recipient's transport-encryption subkey
// without signing.
func Encrypt(recipient *Keypair, plaintext []byte) ([]byte, error) {
	return encryptTo(recipient, nil, plaintext)
}

// EncryptAndSign encrypts plaintext to recipient's transport-encryption
// subkey and signs it with sender's signing subkey in one OpenPGP message.
func EncryptAndSign(sender, recipient *Keypair, plaintext []byte) ([]byte, error) {
	return encryptTo(recipient, sender, plaintext)
}

func encryptTo(recipient, signer *Keypair, plaintext []byte) ([]byte, error) {
	var signerEntity *openpgp.Entity
	if signer != nil {
		signerEntity = signer.entity
	}

	var buf bytes.Buffer
	w, err := openpgp.Encrypt(&buf, []*openpgp.Entity{recipient.entity}, signerEntity, nil, packetConfig())
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "Encrypt", "plaintext_size": len(plaintext), "signed": signer != nil}).WithError(err).Error("failed to start encryption stream")
		return nil, newErr("Encrypt", ErrInternal, err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, newErr("Encrypt", ErrInternal, err)
	}
	if err := w.Close(); err != nil {
		return nil, newErr("Encrypt", ErrInternal, err)
	}
	return buf.Bytes(), nil
}

// Decrypt decrypts ciphertext using recipient's transport-encryption subkey,
// without checking any signature.
func Decrypt(recipient *Keypair, ciphertext []byte) ([]byte, error) {
	plaintext, _, err := decryptAndMaybeVerify(recipient, nil, ciphertext)
	return plaintext, err
}

// DecryptAndVerify decrypts ciphertext using recipient's transport-encryption
// subkey and requires that it carries a valid signature from sender's
// signing subkey. It fails with Crypto(VerificationFailed) if no suitable
// decryption subkey yields the session key, or if no signature validates
// under sender's signing subkey.
func DecryptAndVerify(recipient, sender *Keypair, ciphertext []byte) ([]byte, error) {
	return decryptAndVerify(recipient, sender, ciphertext)
}

func decryptAndVerify(recipient, sender *Keypair, ciphertext []byte) ([]byte, error) {
	plaintext, md, err := decryptAndMaybeVerify(recipient, sender, ciphertext)
	if err != nil {
		return nil, newErr("DecryptAndVerify", ErrVerificationFailed, err)
	}
	if !md.IsSigned || md.SignatureError != nil {
		return nil, newErr("DecryptAndVerify", ErrVerificationFailed, md.SignatureError)
	}
	return plaintext, nil
}

func decryptAndMaybeVerify(recipient, sender *Keypair, ciphertext []byte) ([]byte, *openpgp.MessageDetails, error) {
	keyring := openpgp.EntityList{recipient.entity}
	if sender != nil {
		keyring = append(keyring, sender.entity)
	}

	md, err := openpgp.ReadMessage(bytes.NewReader(ciphertext), keyring, nil, packetConfig())
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "Decrypt", "ciphertext_size": len(ciphertext), "verifying": sender != nil}).WithError(err).Warn("failed to open encrypted message")
		return nil, nil, newErr("Decrypt", ErrDecryptionFailed, err)
	}

	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, nil, newErr("Decrypt", ErrDecryptionFailed, err)
	}
	return plaintext, md, nil
}

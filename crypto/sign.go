package crypto

import (
	"bytes"

	openpgp "github.com/ProtonMail/go-crypto/openpgp"
	"github.com/sirupsen/logrus"
)

// Sign produces a detached OpenPGP signature over msg using signer's signing
// subkey.
func Sign(signer *Keypair, msg []byte) ([]byte, error) {
	var sig bytes.Buffer
	if err := openpgp.DetachSign(&sig, signer.entity, bytes.NewReader(msg), packetConfig()); err != nil {
		logrus.WithFields(logrus.Fields{"function": "Sign", "message_size": len(msg)}).WithError(err).Error("signing failed")
		return nil, newErr("Sign", ErrInternal, err)
	}
	return sig.Bytes(), nil
}

// Verify checks a detached signature over msg against cert's signing subkey
// under the standard OpenPGP policy. It returns Crypto(VerificationFailed)
// if no signature validates.
func Verify(cert *Keypair, msg, sig []byte) error {
	keyring := openpgp.EntityList{cert.entity}
	_, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(msg), bytes.NewReader(sig), packetConfig())
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "Verify"}).WithError(err).Warn("signature did not verify")
		return newErr("Verify", ErrVerificationFailed, err)
	}
	return nil
}

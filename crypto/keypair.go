package crypto

import (
	"bytes"
	"crypto"
	"errors"

	openpgp "github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/sirupsen/logrus"
)

// errEmptyKeyring is returned when an armored block parses without error but
// yields no OpenPGP entities.
var errEmptyKeyring = errors.New("armored text contained no OpenPGP entities")

// packetConfig pins the OpenPGP policy to a Curve25519-family cipher suite:
// EdDSA for signing, ECDH over Curve25519 for transport encryption.
func packetConfig() *packet.Config {
	return &packet.Config{
		Algorithm:     packet.PubKeyAlgoEdDSA,
		Curve:         packet.Curve25519,
		DefaultHash:   crypto.SHA256,
		DefaultCipher: packet.CipherAES256,
	}
}

// Keypair owns an OpenPGP certificate with at least one signing subkey and
// one transport-encryption subkey. Secret material, when present, lives only
// inside entity; exporting it is an explicit operation.
type Keypair struct {
	entity *openpgp.Entity
}

// Generate creates a new Keypair for userID with a dedicated signing subkey
// and transport-encryption subkey over the Curve25519 cipher suite.
func Generate(userID string) (*Keypair, error) {
	log := logrus.WithFields(logrus.Fields{"function": "Generate", "user_id": userID})

	cfg := packetConfig()
	entity, err := openpgp.NewEntity(userID, "", "", cfg)
	if err != nil {
		log.WithError(err).Error("failed to generate entity")
		return nil, newErr("Generate", ErrInternal, err)
	}

	if err := entity.AddSigningSubkey(cfg); err != nil {
		log.WithError(err).Error("failed to add signing subkey")
		return nil, newErr("Generate", ErrInternal, err)
	}

	if len(entity.Subkeys) == 0 {
		return nil, newErr("Generate", ErrInternal, errors.New("generated entity has no transport-encryption subkey"))
	}

	log.WithField("fingerprint", entity.PrimaryKey.Fingerprint).Info("keypair generated")
	return &Keypair{entity: entity}, nil
}

// Fingerprint returns the printable hex fingerprint of the certificate.
func (k *Keypair) Fingerprint() string {
	return k.entity.PrimaryKey.Fingerprint.String()
}

// ExportPublic serializes the certificate's public material as an
// ASCII-armored OpenPGP public key block.
func (k *Keypair) ExportPublic() (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", newErr("ExportPublic", ErrInternal, err)
	}
	if err := k.entity.Serialize(w); err != nil {
		return "", newErr("ExportPublic", ErrInternal, err)
	}
	if err := w.Close(); err != nil {
		return "", newErr("ExportPublic", ErrInternal, err)
	}
	return buf.String(), nil
}

// ExportSecret serializes the certificate's secret material as an
// ASCII-armored OpenPGP transferable secret key (TSK). Callers must treat
// the result as sensitive.
func (k *Keypair) ExportSecret() (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		return "", newErr("ExportSecret", ErrInternal, err)
	}
	if err := k.entity.SerializePrivate(w, nil); err != nil {
		return "", newErr("ExportSecret", ErrInternal, err)
	}
	if err := w.Close(); err != nil {
		return "", newErr("ExportSecret", ErrInternal, err)
	}
	return buf.String(), nil
}

// FromPublic parses an ASCII-armored public key block into a Keypair that
// can verify signatures and encrypt to the certificate, but cannot sign or
// decrypt.
func FromPublic(armored string) (*Keypair, error) {
	el, err := openpgp.ReadArmoredKeyRing(bytes.NewReader([]byte(armored)))
	if err != nil {
		return nil, newErr("FromPublic", ErrInvalidCert, err)
	}
	if len(el) == 0 {
		return nil, newErr("FromPublic", ErrInvalidCert, errEmptyKeyring)
	}
	return &Keypair{entity: el[0]}, nil
}

// FromSecret parses an ASCII-armored transferable secret key into a Keypair
// capable of signing and decrypting.
func FromSecret(armored string) (*Keypair, error) {
	el, err := openpgp.ReadArmoredKeyRing(bytes.NewReader([]byte(armored)))
	if err != nil {
		return nil, newErr("FromSecret", ErrInvalidCert, err)
	}
	if len(el) == 0 {
		return nil, newErr("FromSecret", ErrInvalidCert, errEmptyKeyring)
	}
	return &Keypair{entity: el[0]}, nil
}

// Entity exposes the parsed OpenPGP certificate for use as a recipient or
// verification key elsewhere in the node.
func (k *Keypair) Entity() *openpgp.Entity { return k.entity }

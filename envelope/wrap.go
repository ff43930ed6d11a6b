package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/jakobs1900/cryptochat/crypto"
)

// plaintextWire is the exact byte sequence sealed inside pgp_envelope: the
// header fields travel both inside the ciphertext and, in cleartext, on the
// TransportEnvelope itself, so Unwrap can catch any disagreement between
// the two.
type plaintextWire struct {
	MessageId      MessageId      `json:"message_id"`
	ConversationId ConversationId `json:"conversation_id"`
	SenderDevice   DeviceId       `json:"sender_device"`
	CreatedMs      int64          `json:"created_ms"`
	Body           []byte         `json:"body"`
}

// Wrap signs and encrypts msg for recipientCert, producing a TransportEnvelope
// addressed to recipientDevice. The sender's fingerprint is recorded
// alongside the ciphertext so a recipient can select the right certificate
// before attempting to decrypt.
func Wrap(msg PlaintextMessage, senderKeypair *crypto.Keypair, recipientCert *crypto.Keypair, recipientDevice DeviceId) (TransportEnvelope, error) {
	wire := plaintextWire{
		MessageId:      msg.MessageId,
		ConversationId: msg.ConversationId,
		SenderDevice:   msg.SenderDevice,
		CreatedMs:      msg.CreatedMs,
		Body:           msg.Body,
	}
	plaintext, err := json.Marshal(wire)
	if err != nil {
		return TransportEnvelope{}, fmt.Errorf("envelope: wrap: serialize plaintext: %w", err)
	}

	ciphertext, err := crypto.EncryptAndSign(senderKeypair, recipientCert, plaintext)
	if err != nil {
		return TransportEnvelope{}, fmt.Errorf("envelope: wrap: encrypt and sign: %w", err)
	}

	return TransportEnvelope{
		SchemaVersion:   SchemaVersion,
		MessageId:       msg.MessageId,
		ConversationId:  msg.ConversationId,
		SenderDevice:    msg.SenderDevice,
		RecipientDevice: recipientDevice,
		CreatedMs:       msg.CreatedMs,
		PGPEnvelope: PGPEnvelope{
			Payload:           base64.StdEncoding.EncodeToString(ciphertext),
			SenderFingerprint: senderKeypair.Fingerprint(),
		},
	}, nil
}

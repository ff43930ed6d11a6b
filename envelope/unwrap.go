package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/jakobs1900/cryptochat/crypto"
)

// Unwrap decrypts and verifies env against senderCert, then checks that the
// decrypted plaintext's header agrees with env's own header field for field.
// Any mismatch — whether from a corrupt envelope or a relay tampering with
// the cleartext header — is reported as ErrInvalidEnvelope.
func Unwrap(env TransportEnvelope, recipientKeypair *crypto.Keypair, senderCert *crypto.Keypair) (PlaintextMessage, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(env.PGPEnvelope.Payload)
	if err != nil {
		return PlaintextMessage{}, &ErrInvalidEnvelope{Reason: "payload is not valid base64", Err: err}
	}

	plaintext, err := crypto.DecryptAndVerify(recipientKeypair, senderCert, ciphertext)
	if err != nil {
		return PlaintextMessage{}, &ErrInvalidEnvelope{Reason: "decrypt and verify failed", Err: err}
	}

	var wire plaintextWire
	if err := json.Unmarshal(plaintext, &wire); err != nil {
		return PlaintextMessage{}, &ErrInvalidEnvelope{Reason: "decrypted plaintext is not well-formed", Err: err}
	}

	if wire.MessageId != env.MessageId {
		return PlaintextMessage{}, &ErrInvalidEnvelope{Reason: "message_id mismatch between header and sealed plaintext"}
	}
	if wire.ConversationId != env.ConversationId {
		return PlaintextMessage{}, &ErrInvalidEnvelope{Reason: "conversation_id mismatch between header and sealed plaintext"}
	}
	if wire.SenderDevice != env.SenderDevice {
		return PlaintextMessage{}, &ErrInvalidEnvelope{Reason: "sender_device mismatch between header and sealed plaintext"}
	}
	if wire.CreatedMs != env.CreatedMs {
		return PlaintextMessage{}, &ErrInvalidEnvelope{Reason: fmt.Sprintf("created_ms mismatch: header=%d sealed=%d", env.CreatedMs, wire.CreatedMs)}
	}

	return PlaintextMessage{
		MessageId:      wire.MessageId,
		ConversationId: wire.ConversationId,
		SenderDevice:   wire.SenderDevice,
		CreatedMs:      wire.CreatedMs,
		Body:           wire.Body,
	}, nil
}

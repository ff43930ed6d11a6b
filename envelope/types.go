package envelope

import "github.com/google/uuid"

// MessageId, ConversationId, and DeviceId are opaque 128-bit identifiers.
type (
	MessageId      = uuid.UUID
	ConversationId = uuid.UUID
	DeviceId       = uuid.UUID
)

// SchemaVersion tags the wire layout of TransportEnvelope so a future change
// to the envelope's binary schema can be detected by a peer still running an
// older build, instead of silently misparsing fields.
const SchemaVersion uint8 = 1

// PlaintextMessage is the application-authored message before it is wrapped
// for transport. MessageId is minted once, at send time, and identifies this
// logical message for its entire lifetime regardless of how many times it is
// retried.
type PlaintextMessage struct {
	MessageId      MessageId
	ConversationId ConversationId
	SenderDevice   DeviceId
	CreatedMs      int64
	Body           []byte
}

// PGPEnvelope carries the OpenPGP ciphertext produced by encrypt_and_sign,
// base64-encoded, together with the sender's fingerprint so a recipient can
// select the correct certificate to verify against before even attempting
// decryption.
type PGPEnvelope struct {
	Payload           string
	SenderFingerprint string
}

// TransportEnvelope is what actually crosses the wire. Its header fields
// duplicate values that are also sealed inside pgp_envelope.payload;
// Unwrap rejects any envelope where the two disagree.
type TransportEnvelope struct {
	SchemaVersion   uint8
	MessageId       MessageId
	ConversationId  ConversationId
	SenderDevice    DeviceId
	RecipientDevice DeviceId
	CreatedMs       int64
	PGPEnvelope     PGPEnvelope
}

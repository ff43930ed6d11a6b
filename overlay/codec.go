package overlay

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/jakobs1900/cryptochat/envelope"
)

// maxFrameSize bounds a single request/response frame so a misbehaving peer
// cannot force an unbounded read allocation.
const maxFrameSize = 16 * 1024 * 1024

// WriteFrame writes payload to w as a 4-byte big-endian length prefix
// followed by the bytes themselves — the length-delimited binary framing
// both directions of the envelope protocol use.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("overlay: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("overlay: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-delimited frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("overlay: read frame header: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return nil, fmt.Errorf("overlay: read frame: frame of %d bytes exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("overlay: read frame payload: %w", err)
	}
	return payload, nil
}

// EncodeEnvelopeRequest serializes env with a fixed field order and
// big-endian integers: schema_version, four 16-byte UUIDs, an 8-byte
// created_ms, then length-prefixed sender_fingerprint and payload strings.
// Byte-for-byte stability here is the interoperability contract for the
// envelope protocol.
func EncodeEnvelopeRequest(env envelope.TransportEnvelope) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(env.SchemaVersion)

	for _, id := range []uuid.UUID{env.MessageId, env.ConversationId, env.SenderDevice, env.RecipientDevice} {
		b := id // uuid.UUID is [16]byte
		buf.Write(b[:])
	}

	var createdMs [8]byte
	binary.BigEndian.PutUint64(createdMs[:], uint64(env.CreatedMs))
	buf.Write(createdMs[:])

	if err := writeLengthPrefixedString(&buf, env.PGPEnvelope.SenderFingerprint); err != nil {
		return nil, fmt.Errorf("overlay: encode envelope request: %w", err)
	}
	if err := writeLengthPrefixedString(&buf, env.PGPEnvelope.Payload); err != nil {
		return nil, fmt.Errorf("overlay: encode envelope request: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeEnvelopeRequest reverses EncodeEnvelopeRequest.
func DecodeEnvelopeRequest(data []byte) (envelope.TransportEnvelope, error) {
	r := bytes.NewReader(data)

	schemaVersion, err := r.ReadByte()
	if err != nil {
		return envelope.TransportEnvelope{}, fmt.Errorf("overlay: decode envelope request: schema version: %w", err)
	}

	ids := make([]uuid.UUID, 4)
	for i := range ids {
		var raw [16]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return envelope.TransportEnvelope{}, fmt.Errorf("overlay: decode envelope request: id %d: %w", i, err)
		}
		ids[i] = raw
	}

	var createdMsRaw [8]byte
	if _, err := io.ReadFull(r, createdMsRaw[:]); err != nil {
		return envelope.TransportEnvelope{}, fmt.Errorf("overlay: decode envelope request: created_ms: %w", err)
	}

	senderFingerprint, err := readLengthPrefixedString(r)
	if err != nil {
		return envelope.TransportEnvelope{}, fmt.Errorf("overlay: decode envelope request: sender_fingerprint: %w", err)
	}
	payload, err := readLengthPrefixedString(r)
	if err != nil {
		return envelope.TransportEnvelope{}, fmt.Errorf("overlay: decode envelope request: payload: %w", err)
	}

	return envelope.TransportEnvelope{
		SchemaVersion:   schemaVersion,
		MessageId:       ids[0],
		ConversationId:  ids[1],
		SenderDevice:    ids[2],
		RecipientDevice: ids[3],
		CreatedMs:       int64(binary.BigEndian.Uint64(createdMsRaw[:])),
		PGPEnvelope: envelope.PGPEnvelope{
			Payload:           payload,
			SenderFingerprint: senderFingerprint,
		},
	}, nil
}

// EncodeEnvelopeResponse serializes {accepted} as a single byte.
func EncodeEnvelopeResponse(accepted bool) []byte {
	if accepted {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeEnvelopeResponse reverses EncodeEnvelopeResponse.
func DecodeEnvelopeResponse(data []byte) (bool, error) {
	if len(data) != 1 {
		return false, fmt.Errorf("overlay: decode envelope response: expected 1 byte, got %d", len(data))
	}
	return data[0] == 1, nil
}

func writeLengthPrefixedString(buf *bytes.Buffer, s string) error {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(s)))
	buf.Write(length[:])
	buf.WriteString(s)
	return nil
}

func readLengthPrefixedString(r *bytes.Reader) (string, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(length[:])
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

package store

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Iterations is the iteration count used to derive a per-fingerprint
// AEAD key for local conversation and chat history storage. A fixed string salt
// is acceptable here because the derivation secret (the owner's fingerprint)
// is itself unpredictable to an attacker without filesystem access.
const PBKDF2Iterations = 100000

const fingerprintKeySalt = "cryptochat-fingerprint-storage-key-v1"

// sealedBlob is the on-disk JSON envelope for an AEAD-sealed local file:
// a 12-byte nonce plus the sealed ciphertext, both base64.
type sealedBlob struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

func deriveFingerprintKey(fingerprint string) []byte {
	return pbkdf2.Key([]byte(fingerprint), []byte(fingerprintKeySalt), PBKDF2Iterations, chacha20poly1305.KeySize, sha256.New)
}

// SealWithFingerprint encrypts plaintext under a key derived from
// ownerFingerprint, returning the JSON-serialized {iv, ciphertext} blob
// written to disk for conversations and chat history.
func SealWithFingerprint(ownerFingerprint string, plaintext []byte) ([]byte, error) {
	key := deriveFingerprintKey(ownerFingerprint)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("store: seal: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("store: seal: generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	blob := sealedBlob{
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	encoded, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("store: seal: encode blob: %w", err)
	}
	return encoded, nil
}

// OpenWithFingerprint reverses SealWithFingerprint.
func OpenWithFingerprint(ownerFingerprint string, sealed []byte) ([]byte, error) {
	var blob sealedBlob
	if err := json.Unmarshal(sealed, &blob); err != nil {
		return nil, fmt.Errorf("store: open: decode blob: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(blob.IV)
	if err != nil {
		return nil, fmt.Errorf("store: open: decode iv: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("store: open: decode ciphertext: %w", err)
	}

	key := deriveFingerprintKey(ownerFingerprint)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open: unseal failed: %w", err)
	}
	return plaintext, nil
}

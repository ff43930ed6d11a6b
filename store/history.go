package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jakobs1900/cryptochat/envelope"
)

// Contact is an application-facing peer record: a certificate fingerprint,
// its public key, and optional display metadata supplied by the owner.
type Contact struct {
	Fingerprint string  `json:"fingerprint"`
	PublicKey   string  `json:"public_key"`
	DisplayName *string `json:"display_name,omitempty"`
	Address     *string `json:"address,omitempty"`
}

// Conversation is an application-facing thread of messages with one
// counterpart or group.
type Conversation struct {
	Id           envelope.ConversationId     `json:"id"`
	Name         string                      `json:"name"`
	Messages     []envelope.PlaintextMessage `json:"messages"`
	LastActivity int64                       `json:"last_activity"`
	PeerAddress  *string                     `json:"peer_address,omitempty"`
}

func conversationsPath(dir, ownerFingerprint string) string {
	return filepath.Join(dir, fmt.Sprintf("conversations_%s.enc", ownerFingerprint))
}

// SaveConversations AEAD-seals conversations under a key derived from
// ownerFingerprint and writes the result to conversations_<fp>.enc inside
// dir.
func SaveConversations(dir, ownerFingerprint string, conversations []Conversation) error {
	plaintext, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("store: save conversations: encode: %w", err)
	}

	sealed, err := SealWithFingerprint(ownerFingerprint, plaintext)
	if err != nil {
		return fmt.Errorf("store: save conversations: %w", err)
	}

	if err := os.WriteFile(conversationsPath(dir, ownerFingerprint), sealed, 0o600); err != nil {
		return fmt.Errorf("store: save conversations: write file: %w", err)
	}
	return nil
}

// LoadConversations reverses SaveConversations. A missing file returns an
// empty slice, matching a fresh identity with no history yet.
func LoadConversations(dir, ownerFingerprint string) ([]Conversation, error) {
	sealed, err := os.ReadFile(conversationsPath(dir, ownerFingerprint))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load conversations: read file: %w", err)
	}

	plaintext, err := OpenWithFingerprint(ownerFingerprint, sealed)
	if err != nil {
		return nil, fmt.Errorf("store: load conversations: %w", err)
	}

	var conversations []Conversation
	if err := json.Unmarshal(plaintext, &conversations); err != nil {
		return nil, fmt.Errorf("store: load conversations: decode: %w", err)
	}
	return conversations, nil
}

func chatHistoryPath(dir string) string {
	return filepath.Join(dir, "chat_history.enc")
}

// SaveChatHistory AEAD-seals messages under a key derived from
// ownerFingerprint and writes chat_history.enc inside dir.
func SaveChatHistory(dir, ownerFingerprint string, messages []envelope.PlaintextMessage) error {
	plaintext, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("store: save chat history: encode: %w", err)
	}

	sealed, err := SealWithFingerprint(ownerFingerprint, plaintext)
	if err != nil {
		return fmt.Errorf("store: save chat history: %w", err)
	}

	if err := os.WriteFile(chatHistoryPath(dir), sealed, 0o600); err != nil {
		return fmt.Errorf("store: save chat history: write file: %w", err)
	}
	return nil
}

// LoadChatHistory reverses SaveChatHistory. A missing file returns an empty
// slice.
func LoadChatHistory(dir, ownerFingerprint string) ([]envelope.PlaintextMessage, error) {
	sealed, err := os.ReadFile(chatHistoryPath(dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load chat history: read file: %w", err)
	}

	plaintext, err := OpenWithFingerprint(ownerFingerprint, sealed)
	if err != nil {
		return nil, fmt.Errorf("store: load chat history: %w", err)
	}

	var messages []envelope.PlaintextMessage
	if err := json.Unmarshal(plaintext, &messages); err != nil {
		return nil, fmt.Errorf("store: load chat history: decode: %w", err)
	}
	return messages, nil
}

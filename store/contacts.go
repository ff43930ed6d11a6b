package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func contactsPath(dir string) string {
	return filepath.Join(dir, "simple_contacts.json")
}

// SaveContacts writes contacts to simple_contacts.json inside dir as plain
// JSON. Unlike conversation and chat history, the contact list is not
// AEAD-sealed: it carries no message content, only fingerprints and display
// metadata already visible to anyone who can reach the directory.
func SaveContacts(dir string, contacts []Contact) error {
	encoded, err := json.MarshalIndent(contacts, "", "  ")
	if err != nil {
		return fmt.Errorf("store: save contacts: encode: %w", err)
	}
	if err := os.WriteFile(contactsPath(dir), encoded, 0o600); err != nil {
		return fmt.Errorf("store: save contacts: write file: %w", err)
	}
	return nil
}

// LoadContacts reverses SaveContacts. A missing file returns an empty
// slice, matching a fresh identity with no contacts yet.
func LoadContacts(dir string) ([]Contact, error) {
	raw, err := os.ReadFile(contactsPath(dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load contacts: read file: %w", err)
	}

	var contacts []Contact
	if err := json.Unmarshal(raw, &contacts); err != nil {
		return nil, fmt.Errorf("store: load contacts: decode: %w", err)
	}
	return contacts, nil
}

package store

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jakobs1900/cryptochat/envelope"
)

func parseUUID(s string) (envelope.MessageId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return envelope.MessageId{}, fmt.Errorf("parse uuid %q: %w", s, err)
	}
	return id, nil
}

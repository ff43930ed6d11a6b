package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jakobs1900/cryptochat/envelope"
)

func testPlaintext(t *testing.T, seed byte) envelope.PlaintextMessage {
	t.Helper()
	return envelope.PlaintextMessage{MessageId: envelope.MessageId{seed}}
}

func TestOutboundQueueDropsOldestWhenFull(t *testing.T) {
	q := newOutboundQueue(2)

	first := queuedSend{plaintext: testPlaintext(t, 1)}
	second := queuedSend{plaintext: testPlaintext(t, 2)}
	third := queuedSend{plaintext: testPlaintext(t, 3)}

	assert.False(t, q.push(first))
	assert.False(t, q.push(second))
	assert.True(t, q.push(third))

	items := q.drain()
	assert.Equal(t, []queuedSend{second, third}, items)
}

func TestOutboundQueueDrainEmptiesQueue(t *testing.T) {
	q := newOutboundQueue(4)
	q.push(queuedSend{plaintext: testPlaintext(t, 1)})

	assert.Equal(t, 1, q.len())
	items := q.drain()
	assert.Len(t, items, 1)
	assert.Equal(t, 0, q.len())
}

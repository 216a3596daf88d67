package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOutWithPrefix(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe("", 4)
	defer unsubAll()
	sent, unsubSent := b.Subscribe("notifier.sent", 4)
	defer unsubSent()

	b.Publish(Event{Type: "notifier.queued"})
	b.Publish(Event{Type: "notifier.sent", Data: "x"})

	require.Len(t, all, 2)
	require.Len(t, sent, 1)
	e := <-sent
	assert.Equal(t, "x", e.Data)
	assert.False(t, e.Time.IsZero())
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("", 1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	b.Publish(Event{Type: "after"})
}

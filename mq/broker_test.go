package mq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rueda/feed"
	"rueda/rdx"
)

func TestChannelNames(t *testing.T) {
	ch := channel(feed.ParticipantTopic("p1"))
	assert.Equal(t, "rueda:feed:participant:p1", ch)
	assert.Equal(t, "participant:p1", topicOf(ch))
}

func TestBrokerRoundTrip(t *testing.T) {
	addr := os.Getenv("RUEDA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RUEDA_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := rdx.NewClient(ctx, addr, os.Getenv("RUEDA_TEST_REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	defer rdb.Close()

	b := NewBroker(rdb, 8)
	topic := "test:" + uuid.NewString()
	sub, err := b.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, feed.Event{Topic: "other", Kind: feed.KindSlotUpdated}))
	require.NoError(t, b.Publish(ctx, feed.Event{Topic: topic, Kind: feed.KindAgendaChanged, Count: 6}))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, topic, ev.Topic)
		assert.Equal(t, feed.KindAgendaChanged, ev.Kind)
		assert.Equal(t, 6, ev.Count)
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	require.NoError(t, sub.Close())
	for range sub.Events() {
	}
}

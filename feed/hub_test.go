package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rueda/models"
)

func startHub(t *testing.T, buffer int) *Hub {
	t.Helper()
	hub := NewHub(buffer)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestHubSubscribePublishUnsubscribe(t *testing.T) {
	hub := startHub(t, 10)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, TopicAgenda)
	require.NoError(t, err)
	waitFor(t, func() bool { return hub.Subscribers(TopicAgenda) == 1 })

	ev := Event{Topic: TopicAgenda, Kind: KindSlotUpdated, ID: "s1"}
	require.NoError(t, hub.Publish(ctx, ev))

	select {
	case got := <-sub.Events():
		assert.Equal(t, ev, got)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	require.NoError(t, sub.Close())
	waitFor(t, func() bool { return hub.Subscribers(TopicAgenda) == 0 })

	_, open := <-sub.Events()
	assert.False(t, open, "events channel must be closed after Close")
	assert.NoError(t, sub.Close(), "Close is idempotent")
}

func TestHubRoutesByTopic(t *testing.T) {
	hub := startHub(t, 10)
	ctx := context.Background()

	alice, err := hub.Subscribe(ctx, ParticipantTopic("alice"))
	require.NoError(t, err)
	defer alice.Close()
	bob, err := hub.Subscribe(ctx, ParticipantTopic("bob"))
	require.NoError(t, err)
	defer bob.Close()
	waitFor(t, func() bool { return hub.Subscribers(ParticipantTopic("bob")) == 1 })

	require.NoError(t, hub.Publish(ctx, Event{Topic: ParticipantTopic("bob"), Kind: KindNotification}))

	select {
	case got := <-bob.Events():
		assert.Equal(t, KindNotification, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("bob did not receive his event")
	}
	select {
	case got := <-alice.Events():
		t.Fatalf("alice received %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubContextCancelTearsDownSubscription(t *testing.T) {
	hub := startHub(t, 10)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := hub.Subscribe(ctx, TopicAgenda)
	require.NoError(t, err)
	waitFor(t, func() bool { return hub.Subscribers(TopicAgenda) == 1 })

	cancel()
	waitFor(t, func() bool { return hub.Subscribers(TopicAgenda) == 0 })
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := startHub(t, 1)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, TopicAgenda)
	require.NoError(t, err)
	defer sub.Close()
	waitFor(t, func() bool { return hub.Subscribers(TopicAgenda) == 1 })

	require.NoError(t, hub.Publish(ctx, Event{Topic: TopicAgenda, ID: "1"}))
	require.NoError(t, hub.Publish(ctx, Event{Topic: TopicAgenda, ID: "2"}))
	waitFor(t, func() bool { return hub.Subscribers(TopicAgenda) == 0 })

	got := <-sub.Events()
	assert.Equal(t, "1", got.ID)
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestHubStop(t *testing.T) {
	hub := NewHub(4)
	go hub.Run()
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, TopicAgenda)
	require.NoError(t, err)

	hub.Stop()
	<-hub.Done()

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.ErrorIs(t, hub.Publish(ctx, Event{Topic: TopicAgenda}), ErrClosed)
	_, err = hub.Subscribe(ctx, TopicAgenda)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, sub.Close())
}

func TestMeetingEvents(t *testing.T) {
	m := models.NewMeetingRequest("r1", "p", "q", time.Now())
	evs := MeetingEvents(KindMeetingCreated, m, time.Now())
	require.Len(t, evs, 2)
	assert.Equal(t, ParticipantTopic("p"), evs[0].Topic)
	assert.Equal(t, ParticipantTopic("q"), evs[1].Topic)
	assert.Equal(t, "r1", evs[1].Meeting.ID)
}

func TestServeWSStreamsEvents(t *testing.T) {
	hub := startHub(t, 10)

	router := httprouter.New()
	router.GET("/ws", ServeWS(hub, func(r *http.Request) ([]string, error) {
		return []string{TopicAgenda}, nil
	}))
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	waitFor(t, func() bool { return hub.Subscribers(TopicAgenda) == 1 })
	require.NoError(t, hub.Publish(context.Background(), Event{Topic: TopicAgenda, Kind: KindAgendaChanged, Count: 6}))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, KindAgendaChanged, got.Kind)
	assert.Equal(t, 6, got.Count)

	conn.Close()
	waitFor(t, func() bool { return hub.Subscribers(TopicAgenda) == 0 })
}

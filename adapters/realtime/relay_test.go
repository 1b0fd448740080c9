package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayDeliversPublishedEvents(t *testing.T) {
	logger := watermill.NopLogger{}
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, logger)
	defer pubSub.Close()

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	require.NoError(t, err)

	hub := NewHub(nil)
	NewRelay(hub, nil).Register(router, pubSub, events.TopicSessionConnected)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	defer router.Close()

	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	sub := NewSubscriber("a", 4)
	hub.Join("s1", sub)

	notifier := events.NewWatermillNotifier(pubSub, "")
	require.NoError(t, notifier.NotifySessionConnected(ctx, "s1", "0xabc"))

	select {
	case env := <-sub.Send:
		assert.Equal(t, EventSessionConnected, env.Event)
		var data ConnectedData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, ConnectedData{SessionID: "s1", Address: "0xabc"}, data)
	case <-time.After(5 * time.Second):
		t.Fatal("event not relayed")
	}
}

func TestRelayDropsMalformedMessages(t *testing.T) {
	hub := NewHub(nil)
	sub := NewSubscriber("a", 4)
	hub.Join("s1", sub)

	relay := NewRelay(hub, nil)
	assert.NoError(t, relay.Handle(message.NewMessage(watermill.NewUUID(), []byte("not json"))))
	assert.NoError(t, relay.Handle(message.NewMessage(watermill.NewUUID(), []byte(`{"address":"0x1"}`))))
	assert.Empty(t, sub.Send)
}

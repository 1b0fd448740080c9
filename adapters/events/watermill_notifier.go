package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/walletauth/ports"
)

// TopicSessionConnected carries SessionConnected events
const TopicSessionConnected = "session.connected"

// SessionConnected is published once a session proves its signer
type SessionConnected struct {
	SessionID string `json:"sessionId"`
	Address   string `json:"address"`
}

// WatermillNotifier implements the SessionNotifier interface using Watermill
type WatermillNotifier struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillNotifier creates a notifier publishing to topic
func NewWatermillNotifier(publisher message.Publisher, topic string) ports.SessionNotifier {
	if topic == "" {
		topic = TopicSessionConnected
	}
	return &WatermillNotifier{
		publisher: publisher,
		topic:     topic,
	}
}

// NotifySessionConnected publishes a SessionConnected event.
// The message outlives the request, so ctx is not attached to it.
func (p *WatermillNotifier) NotifySessionConnected(_ context.Context, sessionID string, address string) error {
	payload, err := json.Marshal(SessionConnected{
		SessionID: sessionID,
		Address:   address,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("session_id", sessionID)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// DecodeSessionConnected parses a SessionConnected message payload
func DecodeSessionConnected(msg *message.Message) (SessionConnected, error) {
	var ev SessionConnected
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return SessionConnected{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.SessionID == "" {
		return SessionConnected{}, fmt.Errorf("event without session id")
	}
	return ev, nil
}

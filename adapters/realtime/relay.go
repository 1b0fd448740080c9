package realtime

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/walletauth/adapters/events"
	"go.uber.org/zap"
)

// Relay forwards SessionConnected messages from a watermill subscriber to hub rooms
type Relay struct {
	hub *Hub
	log *zap.Logger
}

// NewRelay creates a relay into hub
func NewRelay(hub *Hub, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{hub: hub, log: log}
}

// Register adds the relay as a handler of topic on router
func (r *Relay) Register(router *message.Router, subscriber message.Subscriber, topic string) {
	if topic == "" {
		topic = events.TopicSessionConnected
	}
	router.AddNoPublisherHandler("realtime_session_connected", topic, subscriber, r.Handle)
}

// Handle emits the event to its session room. Undecodable messages are acked
// and dropped since redelivery cannot fix them.
func (r *Relay) Handle(msg *message.Message) error {
	ev, err := events.DecodeSessionConnected(msg)
	if err != nil {
		r.log.Warn("dropping malformed session event", zap.String("message_uuid", msg.UUID), zap.Error(err))
		return nil
	}

	n := r.hub.Emit(ev.SessionID, NewEnvelope(EventSessionConnected, ConnectedData(ev)))
	r.log.Debug("session connected relayed", zap.String("session_id", ev.SessionID), zap.Int("subscribers", n))
	return nil
}

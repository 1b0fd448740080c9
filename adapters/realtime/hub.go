package realtime

import (
	"context"
	"sync"

	"github.com/layer-3/walletauth/ports"
	"go.uber.org/zap"
)

// Hub groups subscribers into rooms named by session id
type Hub struct {
	log *zap.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Subscriber]struct{}
}

var _ ports.SessionNotifier = (*Hub)(nil)

// NewHub creates an empty hub
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:   log,
		rooms: make(map[string]map[*Subscriber]struct{}),
	}
}

// Join adds sub to room
func (h *Hub) Join(room string, sub *Subscriber) {
	if room == "" || sub == nil {
		return
	}

	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Subscriber]struct{})
		h.rooms[room] = members
	}
	members[sub] = struct{}{}
	h.mu.Unlock()

	h.log.Debug("realtime room joined", zap.String("session_id", room), zap.String("subscriber", sub.ID))
}

// Leave removes sub from room, dropping the room when empty
func (h *Hub) Leave(room string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(room, sub)
}

// LeaveAll removes sub from every room it joined
func (h *Hub) LeaveAll(sub *Subscriber, rooms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, room := range rooms {
		h.leaveLocked(room, sub)
	}
}

func (h *Hub) leaveLocked(room string, sub *Subscriber) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Emit queues env for every current member of room and returns how many accepted it.
// Never blocks: full queues drop the frame.
func (h *Hub) Emit(room string, env Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.rooms[room] {
		if sub.deliver(env) {
			delivered++
		} else {
			h.log.Warn("realtime frame dropped", zap.String("session_id", room), zap.String("subscriber", sub.ID))
		}
	}
	return delivered
}

// RoomSize returns the number of subscribers in room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[room])
}

// NotifySessionConnected emits session:connected to the session's room
func (h *Hub) NotifySessionConnected(_ context.Context, sessionID string, address string) error {
	n := h.Emit(sessionID, NewEnvelope(EventSessionConnected, ConnectedData{
		SessionID: sessionID,
		Address:   address,
	}))
	h.log.Debug("session connected emitted", zap.String("session_id", sessionID), zap.Int("subscribers", n))
	return nil
}

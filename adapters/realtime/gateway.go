package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSendQueue    = 16
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
	maxFrameBytes       = 4 << 10
	maxRoomsPerConn     = 8
)

// GatewayConfig tunes the websocket gateway
type GatewayConfig struct {
	// OriginPatterns authorises cross-origin handshakes, see websocket.AcceptOptions
	OriginPatterns []string
	SendQueue      int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

// Gateway is the websocket entrypoint subscribers use to join session rooms
type Gateway struct {
	hub *Hub
	log *zap.Logger
	cfg GatewayConfig
}

// NewGateway creates a gateway over hub
func NewGateway(hub *Hub, cfg GatewayConfig, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	return &Gateway{hub: hub, log: log, cfg: cfg}
}

// ServeHTTP upgrades the request and joins the room named by the sessionId
// query parameter, if present. Further rooms are joined with join frames.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.cfg.OriginPatterns,
	})
	if err != nil {
		g.log.Info("websocket handshake rejected", zap.Error(err), zap.String("origin", r.Header.Get("Origin")))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := NewSubscriber(uuid.NewString(), g.cfg.SendQueue)
	rooms := newRoomSet()
	defer func() {
		g.hub.LeaveAll(sub, rooms.list())
		sub.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		g.writeLoop(ctx, conn, sub)
	}()

	if room := r.URL.Query().Get("sessionId"); room != "" {
		g.join(sub, rooms, room)
	}

	g.readLoop(ctx, conn, sub, rooms)

	cancel()
	wg.Wait()
}

func (g *Gateway) join(sub *Subscriber, rooms *roomSet, room string) {
	if !rooms.add(room) {
		sub.deliver(NewEnvelope(EventError, map[string]string{"message": "too many rooms"}))
		return
	}
	g.hub.Join(room, sub)
	sub.deliver(NewEnvelope(EventJoined, RoomData{SessionID: room}))
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber, rooms *roomSet) {
	for {
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				g.log.Debug("websocket read failed", zap.String("subscriber", sub.ID), zap.Error(err))
			}
			return
		}

		var data RoomData
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &data)
		}

		switch env.Event {
		case EventJoin:
			if data.SessionID == "" {
				sub.deliver(NewEnvelope(EventError, map[string]string{"message": "sessionId is required"}))
				continue
			}
			g.join(sub, rooms, data.SessionID)
		case EventLeave:
			g.hub.Leave(data.SessionID, sub)
			rooms.remove(data.SessionID)
		default:
			sub.deliver(NewEnvelope(EventError, map[string]string{"message": "unknown event"}))
		}
	}
}

func (g *Gateway) writeLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber) {
	ping := time.NewTicker(g.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case env := <-sub.Send:
			wctx, cancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
			err := wsjson.Write(wctx, conn, env)
			cancel()
			if err != nil {
				g.log.Debug("websocket write failed", zap.String("subscriber", sub.ID), zap.Error(err))
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				g.log.Debug("websocket ping failed", zap.String("subscriber", sub.ID), zap.Error(err))
				return
			}
		}
	}
}

type roomSet struct {
	mu    sync.Mutex
	rooms map[string]struct{}
}

func newRoomSet() *roomSet {
	return &roomSet{rooms: make(map[string]struct{})}
}

func (s *roomSet) add(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room]; ok {
		return true
	}
	if len(s.rooms) >= maxRoomsPerConn {
		return false
	}
	s.rooms[room] = struct{}{}
	return true
}

func (s *roomSet) remove(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, room)
}

func (s *roomSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		out = append(out, room)
	}
	return out
}

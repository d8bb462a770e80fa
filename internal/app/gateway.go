package app

import (
	"encoding/json"

	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

// Deliverer enqueues an encoded event for one transport session without
// blocking. It reports false when the session is gone.
type Deliverer interface {
	Deliver(sessionID string, data []byte) bool
}

// Mirror forwards room events to other instances. Publish must not block.
type Mirror interface {
	Publish(roomName string, data []byte)
}

// Gateway fans events out to sessions. Events are encoded once per call so
// every recipient sees the same snapshot.
type Gateway struct {
	sink   Deliverer
	mirror Mirror
	logger *zap.Logger
}

func NewGateway(sink Deliverer, mirror Mirror, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{sink: sink, mirror: mirror, logger: logger}
}

// toRoom delivers ev to every member's current session. The caller holds
// room.mu, which keeps per-room delivery FIFO.
func (g *Gateway) toRoom(room *Room, ev domain.Event) {
	data, ok := g.encode(ev)
	if !ok {
		return
	}
	for _, p := range room.members {
		if p.SessionID == "" {
			continue
		}
		g.sink.Deliver(p.SessionID, data)
	}
	if g.mirror != nil {
		g.mirror.Publish(room.name, data)
	}
}

// toSession delivers ev to one session; a vanished session is ignored.
func (g *Gateway) toSession(sessionID string, ev domain.Event) {
	if sessionID == "" {
		return
	}
	data, ok := g.encode(ev)
	if !ok {
		return
	}
	if !g.sink.Deliver(sessionID, data) {
		g.logger.Debug("session gone, event dropped",
			zap.String("session", sessionID),
			zap.String("event", string(ev.Type)),
		)
	}
}

func (g *Gateway) encode(ev domain.Event) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		g.logger.Error("encode event", zap.String("event", string(ev.Type)), zap.Error(err))
		return nil, false
	}
	return data, true
}

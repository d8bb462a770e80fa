package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventSource streams the events of one room, whichever instance hosts it.
type EventSource interface {
	Subscribe(ctx context.Context, roomName string, handler func(origin string, data []byte)) (cancel func(), err error)
}

// WatchHandler lets read-only spectators follow a room's event stream.
type WatchHandler struct {
	events   EventSource
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWatchHandler(events EventSource, logger *zap.Logger) *WatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchHandler{
		events: events,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWatch handles GET /rooms/{name}/watch.
func (h *WatchHandler) ServeWatch(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("name")
	if room == "" {
		http.Error(w, "missing room name", http.StatusBadRequest)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	c := newConn("watch-"+uuid.NewString(), ws)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stop, err := h.events.Subscribe(ctx, room, func(_ string, data []byte) {
		c.offer(data)
	})
	if err != nil {
		h.logger.Warn("watch subscribe failed", zap.String("room", room), zap.Error(err))
		_ = ws.Close()
		return
	}
	go c.writePump(h.logger)
	defer func() {
		stop()
		c.closeSend()
	}()

	// Spectators never send commands; reading only services pings and close.
	c.prepareRead()
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

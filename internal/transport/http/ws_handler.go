package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
)

// Sessions is the part of the room service a websocket session drives.
type Sessions interface {
	OpenSession(sessionID string, identity domain.Identity)
	Handle(ctx context.Context, sessionID string, cmd domain.Command)
	Disconnect(ctx context.Context, sessionID string) error
}

var _ Sessions = (*app.Service)(nil)

type WSHandler struct {
	sessions Sessions
	hub      *Hub
	tokens   *auth.TokenService
	logger   *zap.Logger
	upgrader websocket.Upgrader
	newID    func() string
}

// NewWSHandler wires websocket sessions into the room service. tokens may be
// nil, in which case identity comes from the userId and name query parameters.
func NewWSHandler(sessions Sessions, hub *Hub, tokens *auth.TokenService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		sessions: sessions,
		hub:      hub,
		tokens:   tokens,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		newID: uuid.NewString,
	}
}

// ServeWS upgrades HTTP requests to websockets and feeds every inbound
// message to the room service as a command.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, status, err := h.identify(r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	sessionID := h.newID()
	c := newConn(sessionID, ws)
	h.hub.register(c)
	h.sessions.OpenSession(sessionID, identity)
	go c.writePump(h.logger)

	h.logger.Debug("session opened", zap.String("session", sessionID), zap.String("user", identity.UserID))
	ctx := r.Context()
	defer func() {
		if err := h.sessions.Disconnect(ctx, sessionID); err != nil {
			h.logger.Warn("disconnect", zap.String("session", sessionID), zap.Error(err))
		}
		h.hub.unregister(c)
		h.logger.Debug("session closed", zap.String("session", sessionID))
	}()

	c.prepareRead()
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read error", zap.String("session", sessionID), zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		cmd, err := decodeCommand(data)
		if err != nil {
			h.reply(sessionID, domain.ErrorEvent(err))
			continue
		}
		h.sessions.Handle(ctx, sessionID, cmd)
	}
}

// identify resolves the caller from a bearer token when a token service is
// configured, otherwise from query parameters.
func (h *WSHandler) identify(r *http.Request) (domain.Identity, int, error) {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if h.tokens != nil && token != "" {
		claims, err := h.tokens.Validate(token)
		if err != nil {
			return domain.Identity{}, http.StatusUnauthorized, domain.ErrUnauthenticated
		}
		return domain.Identity{UserID: claims.UserID, Name: claims.Name}, 0, nil
	}
	if h.tokens != nil {
		return domain.Identity{}, http.StatusUnauthorized, domain.ErrUnauthenticated
	}

	userID := strings.TrimSpace(q.Get("userId"))
	if userID == "" {
		return domain.Identity{}, http.StatusBadRequest, errMissingUser
	}
	return domain.Identity{UserID: userID, Name: strings.TrimSpace(q.Get("name"))}, 0, nil
}

func (h *WSHandler) reply(sessionID string, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode reply", zap.Error(err))
		return
	}
	h.hub.Deliver(sessionID, data)
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "quiz:events:"
	publishTimeout = 5 * time.Second
)

// mirrorPayload is the message published to Redis for cross-instance fan-out.
type mirrorPayload struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Data   json.RawMessage `json:"data"`
	At     int64           `json:"at"`
}

type mirrorMessage struct {
	room string
	data []byte
}

// EventMirror republishes room events on Redis pub/sub. Publish only
// enqueues; Run does the network work so room locks are never held on I/O.
type EventMirror struct {
	client *redis.Client
	origin string
	queue  chan mirrorMessage
	logger *zap.Logger
}

func NewEventMirror(client *redis.Client, origin string, buffer int, logger *zap.Logger) *EventMirror {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventMirror{
		client: client,
		origin: origin,
		queue:  make(chan mirrorMessage, buffer),
		logger: logger,
	}
}

// Publish enqueues an event, dropping it when the queue is full.
func (m *EventMirror) Publish(roomName string, data []byte) {
	select {
	case m.queue <- mirrorMessage{room: roomName, data: data}:
	default:
		m.logger.Warn("event mirror queue full, dropping", zap.String("room", roomName))
	}
}

// Run drains the queue until ctx is done.
func (m *EventMirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-m.queue:
			if err := m.publish(ctx, msg); err != nil {
				m.logger.Warn("mirror publish failed", zap.String("room", msg.room), zap.Error(err))
			}
		}
	}
}

func (m *EventMirror) publish(ctx context.Context, msg mirrorMessage) error {
	body, err := json.Marshal(mirrorPayload{
		Origin: m.origin,
		Room:   msg.room,
		Data:   msg.data,
		At:     time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return m.client.Publish(ctx, channelPrefix+msg.room, body).Err()
}

// Subscribe calls handler for every event mirrored for roomName by any
// instance, including this one. The returned cancel stops the subscription.
func (m *EventMirror) Subscribe(ctx context.Context, roomName string, handler func(origin string, data []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := m.client.Subscribe(ctx, channelPrefix+roomName)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p mirrorPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					m.logger.Debug("bad mirror payload", zap.Error(err))
					continue
				}
				handler(p.Origin, p.Data)
			}
		}
	}()
	return cancelCtx, nil
}

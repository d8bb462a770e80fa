package app

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

// Registry maps active room names to rooms. Its mutex only guards the map;
// room state is guarded by each room's own mutex. Lock order is room then
// registry, never the reverse.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Get returns the active room with the given name.
func (r *Registry) Get(name string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// Len reports the number of active rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) reserve(room *Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.name]; ok {
		return domain.ErrDuplicateRoom
	}
	r.rooms[room.name] = room
	return nil
}

// remove drops name only while it still maps to room.
func (r *Registry) remove(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.rooms[room.name]; ok && current == room {
		delete(r.rooms, room.name)
	}
}

func (r *Registry) snapshot() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}

// CreateRoom creates a room and joins the calling session as its host.
func (s *Service) CreateRoom(ctx context.Context, sessionID string, cmd domain.CreateRoom) error {
	identity, ok := s.sessions.Identity(sessionID)
	if !ok {
		return domain.ErrSessionClosed
	}
	name := strings.TrimSpace(cmd.RoomName)
	if name == "" || cmd.Passcode == "" || identity.UserID == "" || cmd.TimerDuration < 0 {
		return domain.ErrInvalidConfig
	}
	displayName := displayNameFor(identity, cmd.Username)

	if cmd.QuizID != "" {
		if _, err := s.quizzes.GetQuiz(ctx, cmd.QuizID); err != nil {
			return domain.Transient("load quiz", err)
		}
	}
	hash, err := s.hasher.Hash(cmd.Passcode)
	if err != nil {
		return domain.Internal("hash passcode", err)
	}

	// A session is bound to at most one room.
	s.leaveCurrent(sessionID, nil)

	room := newRoom(s.newID(), name, hash, identity.UserID, cmd, s.now())
	room.mu.Lock()
	defer room.mu.Unlock()
	if err := s.rooms.reserve(room); err != nil {
		return err
	}

	host := &domain.Participant{
		UserID:      identity.UserID,
		DisplayName: displayName,
		SessionID:   sessionID,
		JoinedAt:    s.now(),
	}
	rec := room.record()
	rec.Participants = append(rec.Participants, domain.ParticipantRecord{
		UserID:      host.UserID,
		DisplayName: host.DisplayName,
	})

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.store.CreateRoom(storeCtx, rec)
	cancel()
	if err != nil {
		room.closed = true
		s.rooms.remove(room)
		return domain.Transient("create room", err)
	}

	if err := s.sessions.bind(sessionID, room); err != nil {
		// The creator went away; the empty room is left for the sweeper.
		return err
	}
	room.members[host.UserID] = host
	room.lastActive = s.now()

	s.logger.Info("room created",
		zap.String("room", room.name),
		zap.String("room_id", room.id),
		zap.String("host", host.UserID),
	)
	s.gateway.toSession(sessionID, domain.Event{Type: domain.EventRoomCreated, Payload: room.info()})
	s.gateway.toRoom(room, domain.Event{Type: domain.EventUsersInRoom, Payload: room.memberList()})
	return nil
}

// CloseRoom lets the host tear the room down immediately.
func (s *Service) CloseRoom(ctx context.Context, sessionID string, cmd domain.CloseRoom) error {
	return s.withHost(sessionID, cmd.RoomName, func(room *Room, _ *domain.Participant) error {
		return s.removeLocked(ctx, room, "closed by host")
	})
}

// RemoveRoom tears down the named room. It is a no-op for unknown rooms.
func (s *Service) RemoveRoom(ctx context.Context, name string) error {
	room, err := s.rooms.Get(name)
	if err != nil {
		return nil
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return nil
	}
	return s.removeLocked(ctx, room, "removed")
}

// removeLocked archives the room, cancels its timer and notifies members.
// The caller holds room.mu.
func (s *Service) removeLocked(ctx context.Context, room *Room, reason string) error {
	storeCtx, cancel := s.storeCtx(ctx)
	err := s.store.ArchiveRoom(storeCtx, room.id)
	cancel()
	if err != nil {
		return domain.Transient("archive room", err)
	}

	s.cancelTimer(room)
	s.gateway.toRoom(room, domain.Event{Type: domain.EventRoomClosed, Payload: domain.RoomRef{RoomName: room.name}})
	for _, p := range room.members {
		s.sessions.unbind(p.SessionID, room)
	}
	room.members = make(map[string]*domain.Participant)
	room.livePoll = nil
	room.closed = true
	s.rooms.remove(room)

	if s.directory != nil {
		dirCtx, cancel := s.storeCtx(ctx)
		err := s.directory.Remove(dirCtx, room.name)
		cancel()
		if err != nil {
			s.logger.Warn("directory remove failed", zap.String("room", room.name), zap.Error(err))
		}
	}
	s.logger.Info("room removed", zap.String("room", room.name), zap.String("reason", reason))
	return nil
}

func displayNameFor(identity domain.Identity, requested string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	if identity.Name != "" {
		return identity.Name
	}
	return identity.UserID
}

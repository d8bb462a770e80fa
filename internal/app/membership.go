package app

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

// Tracker owns the session -> room association. A session is bound to at
// most one room at a time. Callers may hold a room lock while calling into
// the tracker; the tracker never calls back into a room.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*binding
}

type binding struct {
	identity domain.Identity
	room     *Room
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*binding)}
}

// Open registers a live session.
func (t *Tracker) Open(sessionID string, identity domain.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.sessions[sessionID]; ok {
		b.identity = identity
		return
	}
	t.sessions[sessionID] = &binding{identity: identity}
}

// Identity returns who an open session speaks for.
func (t *Tracker) Identity(sessionID string) (domain.Identity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.sessions[sessionID]
	if !ok {
		return domain.Identity{}, false
	}
	return b.identity, true
}

// Room returns the room the session is bound to, if any.
func (t *Tracker) Room(sessionID string) *Room {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.sessions[sessionID]; ok {
		return b.room
	}
	return nil
}

// Close forgets the session and returns the room it was bound to.
func (t *Tracker) Close(sessionID string) *Room {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(t.sessions, sessionID)
	return b.room
}

// Len reports the number of open sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) bind(sessionID string, room *Room) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.sessions[sessionID]
	if !ok {
		return domain.ErrSessionClosed
	}
	b.room = room
	return nil
}

// unbind clears the binding only if it still points at room.
func (t *Tracker) unbind(sessionID string, room *Room) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.sessions[sessionID]; ok && b.room == room {
		b.room = nil
	}
}

// JoinRoom adds the session's user to a room. Rejoining only rebinds the
// session; the participant is never duplicated.
func (s *Service) JoinRoom(ctx context.Context, sessionID string, cmd domain.JoinRoom) error {
	identity, ok := s.sessions.Identity(sessionID)
	if !ok {
		return domain.ErrSessionClosed
	}
	if identity.UserID == "" {
		return domain.ErrInvalidInput
	}
	room, err := s.rooms.Get(strings.TrimSpace(cmd.RoomName))
	if err != nil {
		return err
	}
	if !s.hasher.Matches(room.passcodeHash, cmd.Passcode) {
		return domain.ErrAuthMismatch
	}

	name := displayNameFor(identity, cmd.Username)
	if err := s.persistParticipant(ctx, room, identity.UserID, name); err != nil {
		return err
	}

	// The previous room is left only once the new seat is stored, and never
	// while holding this room's lock.
	s.leaveCurrent(sessionID, room)

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return domain.ErrRoomNotFound
	}
	p, existing := room.members[identity.UserID]
	if err := s.sessions.bind(sessionID, room); err != nil {
		return err
	}
	now := s.now()
	if existing {
		if p.SessionID != sessionID {
			s.sessions.unbind(p.SessionID, room)
		}
		p.SessionID = sessionID
		p.DisplayName = name
	} else {
		p = &domain.Participant{
			UserID:      identity.UserID,
			DisplayName: name,
			SessionID:   sessionID,
			JoinedAt:    now,
		}
		room.members[p.UserID] = p
	}
	room.lastActive = now

	s.logger.Debug("joined room",
		zap.String("room", room.name),
		zap.String("user", p.UserID),
		zap.Bool("rejoin", existing),
	)
	s.gateway.toSession(sessionID, domain.Event{Type: domain.EventRoomJoined, Payload: room.info()})
	s.gateway.toRoom(room, domain.Event{Type: domain.EventUsersInRoom, Payload: room.memberList()})

	// Late joiners catch up on whatever is in progress.
	if room.livePoll != nil {
		s.gateway.toSession(sessionID, domain.Event{Type: domain.EventPollStarted, Payload: copyLivePoll(room.livePoll)})
	}
	if room.quiz.lifecycle == domain.LifecycleStarted && p.UserID != room.hostID {
		if _, done := room.quiz.completions[p.UserID]; !done {
			s.gateway.toSession(sessionID, domain.Event{Type: domain.EventQuizStarted, Payload: room.quizStarted()})
		}
	}
	return nil
}

// persistParticipant stores the participant row unless the user already holds
// a seat. AddParticipant is idempotent, so a later concurrent join is harmless.
func (s *Service) persistParticipant(ctx context.Context, room *Room, userID, name string) error {
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return domain.ErrRoomNotFound
	}
	if _, ok := room.members[userID]; ok {
		return nil
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.AddParticipant(storeCtx, room.id, domain.ParticipantRecord{
		UserID:      userID,
		DisplayName: name,
	}); err != nil {
		return domain.Transient("add participant", err)
	}
	return nil
}

// LeaveRoom removes the session's participant from its room.
func (s *Service) LeaveRoom(_ context.Context, sessionID string) error {
	room := s.sessions.Room(sessionID)
	if room == nil {
		return nil
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	removed := !room.closed && s.removeMemberLocked(room, sessionID)
	s.sessions.unbind(sessionID, room)
	if removed {
		s.gateway.toSession(sessionID, domain.Event{Type: domain.EventLeftRoom, Payload: domain.RoomRef{RoomName: room.name}})
	}
	return nil
}

// Disconnect closes the session and drops its participant, but only if that
// participant is still bound to this session.
func (s *Service) Disconnect(_ context.Context, sessionID string) error {
	room := s.sessions.Close(sessionID)
	if room == nil {
		return nil
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return nil
	}
	s.removeMemberLocked(room, sessionID)
	return nil
}

// leaveCurrent leaves the session's current room unless it is keep.
func (s *Service) leaveCurrent(sessionID string, keep *Room) {
	current := s.sessions.Room(sessionID)
	if current == nil || current == keep {
		return
	}
	current.mu.Lock()
	defer current.mu.Unlock()
	if !current.closed {
		s.removeMemberLocked(current, sessionID)
	}
	s.sessions.unbind(sessionID, current)
}

func (s *Service) removeMemberLocked(room *Room, sessionID string) bool {
	for id, p := range room.members {
		if p.SessionID != sessionID {
			continue
		}
		delete(room.members, id)
		room.lastActive = s.now()
		s.logger.Debug("left room", zap.String("room", room.name), zap.String("user", id))
		s.gateway.toRoom(room, domain.Event{Type: domain.EventUsersInRoom, Payload: room.memberList()})
		return true
	}
	return false
}

// withMember runs fn under the room lock after checking that the session is
// the current binding of a room member.
func (s *Service) withMember(sessionID, roomName string, fn func(room *Room, actor *domain.Participant) error) error {
	identity, ok := s.sessions.Identity(sessionID)
	if !ok {
		return domain.ErrSessionClosed
	}
	room, err := s.rooms.Get(strings.TrimSpace(roomName))
	if err != nil {
		return err
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return domain.ErrRoomNotFound
	}
	actor, ok := room.members[identity.UserID]
	if !ok || actor.SessionID != sessionID {
		return domain.ErrNotInRoom
	}
	return fn(room, actor)
}

func (s *Service) withHost(sessionID, roomName string, fn func(room *Room, host *domain.Participant) error) error {
	return s.withMember(sessionID, roomName, func(room *Room, actor *domain.Participant) error {
		if actor.UserID != room.hostID {
			return domain.ErrHostOnly
		}
		return fn(room, actor)
	})
}

package memory

import (
	"context"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore.
type RoomStore struct {
	mu     sync.RWMutex
	rooms  map[string]*storedRoom
	active map[string]string
}

type storedRoom struct {
	rec      domain.RoomRecord
	archived bool
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:  make(map[string]*storedRoom),
		active: make(map[string]string),
	}
}

func (s *RoomStore) CreateRoom(_ context.Context, rec domain.RoomRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prevID, ok := s.active[rec.Name]; ok {
		if prev, ok := s.rooms[prevID]; ok {
			prev.archived = true
		}
	}
	rec.Participants = append([]domain.ParticipantRecord(nil), rec.Participants...)
	s.rooms[rec.ID] = &storedRoom{rec: rec}
	s.active[rec.Name] = rec.ID
	return nil
}

func (s *RoomStore) FindRoom(_ context.Context, name string) (domain.RoomRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[name]
	if !ok {
		return domain.RoomRecord{}, domain.ErrRoomNotFound
	}
	rec := s.rooms[id].rec
	rec.Participants = append([]domain.ParticipantRecord(nil), rec.Participants...)
	return rec, nil
}

func (s *RoomStore) AddParticipant(_ context.Context, roomID string, p domain.ParticipantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for _, existing := range room.rec.Participants {
		if existing.UserID == p.UserID {
			return nil
		}
	}
	room.rec.Participants = append(room.rec.Participants, p)
	return nil
}

func (s *RoomStore) SetCompleted(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for i := range room.rec.Participants {
		if room.rec.Participants[i].UserID == userID {
			room.rec.Participants[i].Completed = true
			return nil
		}
	}
	return domain.ErrParticipantNotFound
}

func (s *RoomStore) StartRun(_ context.Context, roomID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.rec.Lifecycle = domain.LifecycleStarted
	room.rec.StartedAt = startedAt
	for i := range room.rec.Participants {
		room.rec.Participants[i].Completed = false
	}
	return nil
}

func (s *RoomStore) SetLifecycle(_ context.Context, roomID string, lifecycle domain.Lifecycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.rec.Lifecycle = lifecycle
	return nil
}

func (s *RoomStore) ArchiveRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	room.archived = true
	if s.active[room.rec.Name] == roomID {
		delete(s.active, room.rec.Name)
	}
	return nil
}

// Archived reports whether the room with id was archived.
func (s *RoomStore) Archived(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return ok && room.archived
}

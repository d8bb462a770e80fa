package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"live-quiz-service/internal/domain"
)

type roomModel struct {
	bun.BaseModel `bun:"table:quiz_rooms,alias:qr"`

	ID            string    `bun:"id,pk"`
	Name          string    `bun:"name,notnull"`
	PasscodeHash  string    `bun:"passcode_hash,notnull"`
	HostID        string    `bun:"host_id,notnull"`
	QuizID        string    `bun:"quiz_id,nullzero"`
	TimerEnabled  bool      `bun:"timer_enabled,notnull"`
	TimerDuration int       `bun:"timer_duration,notnull"`
	Lifecycle     string    `bun:"lifecycle,notnull"`
	StartedAt     time.Time `bun:"started_at,nullzero"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	ArchivedAt    time.Time `bun:"archived_at,nullzero"`
}

type participantModel struct {
	bun.BaseModel `bun:"table:room_participants,alias:rp"`

	RoomID      string    `bun:"room_id,pk"`
	UserID      string    `bun:"user_id,pk"`
	DisplayName string    `bun:"display_name,notnull"`
	Completed   bool      `bun:"completed,notnull"`
	JoinedAt    time.Time `bun:"joined_at,notnull"`
}

// RoomStore persists rooms and their participants with bun.
type RoomStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewRoomStore(db *bun.DB) *RoomStore {
	return &RoomStore{db: db, now: time.Now}
}

func (s *RoomStore) CreateRoom(ctx context.Context, rec domain.RoomRecord) error {
	now := s.now()
	room := &roomModel{
		ID:            rec.ID,
		Name:          rec.Name,
		PasscodeHash:  rec.PasscodeHash,
		HostID:        rec.HostID,
		QuizID:        rec.QuizID,
		TimerEnabled:  rec.TimerEnabled,
		TimerDuration: rec.TimerDuration,
		Lifecycle:     string(rec.Lifecycle),
		StartedAt:     rec.StartedAt,
		CreatedAt:     rec.CreatedAt,
	}
	if room.Lifecycle == "" {
		room.Lifecycle = string(domain.LifecycleIdle)
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// A previous active room with this name belonged to a lost instance.
		if _, err := tx.NewUpdate().Model((*roomModel)(nil)).
			Set("archived_at = ?", now).
			Where("name = ?", rec.Name).
			Where("archived_at IS NULL").
			Exec(ctx); err != nil {
			return fmt.Errorf("archive previous room: %w", err)
		}
		if _, err := tx.NewInsert().Model(room).Exec(ctx); err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		if len(rec.Participants) == 0 {
			return nil
		}
		participants := make([]participantModel, 0, len(rec.Participants))
		for _, p := range rec.Participants {
			participants = append(participants, participantModel{
				RoomID:      rec.ID,
				UserID:      p.UserID,
				DisplayName: p.DisplayName,
				Completed:   p.Completed,
				JoinedAt:    now,
			})
		}
		if _, err := tx.NewInsert().Model(&participants).
			On("CONFLICT (room_id, user_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		return nil
	})
}

func (s *RoomStore) FindRoom(ctx context.Context, name string) (domain.RoomRecord, error) {
	var room roomModel
	err := s.db.NewSelect().Model(&room).
		Where("name = ?", name).
		Where("archived_at IS NULL").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RoomRecord{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.RoomRecord{}, fmt.Errorf("find room %s: %w", name, err)
	}

	var participants []participantModel
	if err := s.db.NewSelect().Model(&participants).
		Where("room_id = ?", room.ID).
		OrderExpr("joined_at ASC, user_id ASC").
		Scan(ctx); err != nil {
		return domain.RoomRecord{}, fmt.Errorf("find participants %s: %w", name, err)
	}

	rec := domain.RoomRecord{
		ID:            room.ID,
		Name:          room.Name,
		PasscodeHash:  room.PasscodeHash,
		HostID:        room.HostID,
		QuizID:        room.QuizID,
		TimerEnabled:  room.TimerEnabled,
		TimerDuration: room.TimerDuration,
		Lifecycle:     domain.Lifecycle(room.Lifecycle),
		StartedAt:     room.StartedAt,
		CreatedAt:     room.CreatedAt,
		Participants:  make([]domain.ParticipantRecord, 0, len(participants)),
	}
	for _, p := range participants {
		rec.Participants = append(rec.Participants, domain.ParticipantRecord{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Completed:   p.Completed,
		})
	}
	return rec, nil
}

func (s *RoomStore) AddParticipant(ctx context.Context, roomID string, p domain.ParticipantRecord) error {
	model := &participantModel{
		RoomID:      roomID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Completed:   p.Completed,
		JoinedAt:    s.now(),
	}
	if _, err := s.db.NewInsert().Model(model).
		On("CONFLICT (room_id, user_id) DO NOTHING").
		Exec(ctx); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (s *RoomStore) SetCompleted(ctx context.Context, roomID, userID string) error {
	res, err := s.db.NewUpdate().Model((*participantModel)(nil)).
		Set("completed = TRUE").
		Where("room_id = ?", roomID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set completed: %w", err)
	}
	return requireRow(res, domain.ErrParticipantNotFound)
}

func (s *RoomStore) StartRun(ctx context.Context, roomID string, startedAt time.Time) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*roomModel)(nil)).
			Set("lifecycle = ?", string(domain.LifecycleStarted)).
			Set("started_at = ?", startedAt).
			Where("id = ?", roomID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("start run: %w", err)
		}
		if err := requireRow(res, domain.ErrRoomNotFound); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model((*participantModel)(nil)).
			Set("completed = FALSE").
			Where("room_id = ?", roomID).
			Exec(ctx); err != nil {
			return fmt.Errorf("reset completions: %w", err)
		}
		return nil
	})
}

func (s *RoomStore) SetLifecycle(ctx context.Context, roomID string, lifecycle domain.Lifecycle) error {
	res, err := s.db.NewUpdate().Model((*roomModel)(nil)).
		Set("lifecycle = ?", string(lifecycle)).
		Where("id = ?", roomID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set lifecycle: %w", err)
	}
	return requireRow(res, domain.ErrRoomNotFound)
}

// ArchiveRoom is idempotent.
func (s *RoomStore) ArchiveRoom(ctx context.Context, roomID string) error {
	if _, err := s.db.NewUpdate().Model((*roomModel)(nil)).
		Set("archived_at = ?", s.now()).
		Where("id = ?", roomID).
		Where("archived_at IS NULL").
		Exec(ctx); err != nil {
		return fmt.Errorf("archive room: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

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

type userPointsModel struct {
	bun.BaseModel `bun:"table:user_points,alias:up"`

	UserID      string    `bun:"user_id,pk"`
	DisplayName string    `bun:"display_name,notnull"`
	RoomID      string    `bun:"room_id,nullzero"`
	RunKey      string    `bun:"run_key,nullzero"`
	LastScore   int       `bun:"last_score,notnull"`
	TotalScore  int       `bun:"total_score,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func (m userPointsModel) entry() domain.ScoreEntry {
	return domain.ScoreEntry{
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		RoomID:      m.RoomID,
		RunKey:      m.RunKey,
		LastScore:   m.LastScore,
		TotalScore:  m.TotalScore,
		UpdatedAt:   m.UpdatedAt,
	}
}

// upsertPointsSQL adds the score once per run key. When the stored run key
// already matches, the conflict update is skipped and nothing is returned.
const upsertPointsSQL = `
INSERT INTO user_points AS up
    (user_id, display_name, room_id, run_key, last_score, total_score, created_at, updated_at)
VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    room_id      = EXCLUDED.room_id,
    run_key      = EXCLUDED.run_key,
    last_score   = EXCLUDED.last_score,
    total_score  = up.total_score + EXCLUDED.last_score,
    updated_at   = EXCLUDED.updated_at
WHERE EXCLUDED.run_key IS NULL OR up.run_key IS DISTINCT FROM EXCLUDED.run_key
RETURNING user_id, display_name, room_id, run_key, last_score, total_score, created_at, updated_at`

// ScoreLedger keeps per-user last and total quiz scores in Postgres.
type ScoreLedger struct {
	db  *bun.DB
	now func() time.Time
}

func NewScoreLedger(db *bun.DB) *ScoreLedger {
	return &ScoreLedger{db: db, now: time.Now}
}

func (l *ScoreLedger) Upsert(ctx context.Context, entry domain.ScoreEntry) (domain.ScoreEntry, error) {
	now := l.now()
	var row userPointsModel
	err := l.db.NewRaw(upsertPointsSQL,
		entry.UserID, entry.DisplayName, entry.RoomID, entry.RunKey,
		entry.LastScore, entry.LastScore, now, now,
	).Scan(ctx, &row)
	if errors.Is(err, sql.ErrNoRows) {
		// Same run already applied.
		return l.get(ctx, entry.UserID)
	}
	if err != nil {
		return domain.ScoreEntry{}, fmt.Errorf("upsert points: %w", err)
	}
	return row.entry(), nil
}

func (l *ScoreLedger) TopN(ctx context.Context, userIDs []string, n int) ([]domain.ScoreEntry, error) {
	out := []domain.ScoreEntry{}
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []userPointsModel
	q := l.db.NewSelect().Model(&rows).
		Where("user_id IN (?)", bun.In(userIDs)).
		OrderExpr("last_score DESC, updated_at ASC, user_id ASC")
	if n > 0 {
		q = q.Limit(n)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("top points: %w", err)
	}
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

func (l *ScoreLedger) get(ctx context.Context, userID string) (domain.ScoreEntry, error) {
	var row userPointsModel
	err := l.db.NewSelect().Model(&row).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		return domain.ScoreEntry{}, fmt.Errorf("get points: %w", err)
	}
	return row.entry(), nil
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// ScoreLedger is an in-memory implementation of app.ScoreLedger.
type ScoreLedger struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]domain.ScoreEntry
}

func NewScoreLedger() *ScoreLedger {
	return NewScoreLedgerWithClock(time.Now)
}

// NewScoreLedgerWithClock is test-only for deterministic update times.
func NewScoreLedgerWithClock(now func() time.Time) *ScoreLedger {
	return &ScoreLedger{now: now, entries: make(map[string]domain.ScoreEntry)}
}

func (l *ScoreLedger) Upsert(_ context.Context, entry domain.ScoreEntry) (domain.ScoreEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.entries[entry.UserID]
	if ok && entry.RunKey != "" && current.RunKey == entry.RunKey {
		return current, nil
	}
	current.UserID = entry.UserID
	current.DisplayName = entry.DisplayName
	current.RoomID = entry.RoomID
	current.RunKey = entry.RunKey
	current.LastScore = entry.LastScore
	current.TotalScore += entry.LastScore
	current.UpdatedAt = l.now()
	l.entries[entry.UserID] = current
	return current, nil
}

func (l *ScoreLedger) TopN(_ context.Context, userIDs []string, n int) ([]domain.ScoreEntry, error) {
	l.mu.Lock()
	out := make([]domain.ScoreEntry, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if entry, ok := l.entries[id]; ok {
			out = append(out, entry)
		}
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastScore != out[j].LastScore {
			return out[i].LastScore > out[j].LastScore
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Get returns the ledger row for a user.
func (l *ScoreLedger) Get(userID string) (domain.ScoreEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[userID]
	return entry, ok
}

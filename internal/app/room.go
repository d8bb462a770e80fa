package app

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// Room is the in-memory state of one live room. Every field below mu is
// guarded by it; the identity fields above are immutable after creation.
type Room struct {
	id            string
	name          string
	passcodeHash  string
	hostID        string
	quizID        string
	timerEnabled  bool
	timerDuration int
	createdAt     time.Time

	mu sync.Mutex
	// closed is set once the room leaves the registry; holders of a stale
	// pointer must treat the room as gone.
	closed     bool
	dirty      bool
	lastActive time.Time
	members    map[string]*domain.Participant
	polls      []domain.PollDraft
	livePoll   *domain.LivePoll
	quiz       quizSession
	timer      timerHandle
}

// quizSession is the current quiz run of a room.
type quizSession struct {
	lifecycle   domain.Lifecycle
	startedAt   time.Time
	run         int
	completions map[string]completion
}

type completion struct {
	displayName string
	score       int
	total       int
	at          time.Time
}

func newRoom(id, name, passcodeHash, hostID string, cmd domain.CreateRoom, now time.Time) *Room {
	return &Room{
		id:            id,
		name:          name,
		passcodeHash:  passcodeHash,
		hostID:        hostID,
		quizID:        cmd.QuizID,
		timerEnabled:  cmd.TimerEnabled,
		timerDuration: cmd.TimerDuration,
		createdAt:     now,
		lastActive:    now,
		members:       make(map[string]*domain.Participant),
		quiz: quizSession{
			lifecycle:   domain.LifecycleIdle,
			completions: make(map[string]completion),
		},
	}
}

func (r *Room) record() domain.RoomRecord {
	rec := domain.RoomRecord{
		ID:            r.id,
		Name:          r.name,
		PasscodeHash:  r.passcodeHash,
		HostID:        r.hostID,
		QuizID:        r.quizID,
		TimerEnabled:  r.timerEnabled,
		TimerDuration: r.timerDuration,
		Lifecycle:     r.quiz.lifecycle,
		StartedAt:     r.quiz.startedAt,
		CreatedAt:     r.createdAt,
	}
	for _, p := range r.sortedMembers() {
		_, done := r.quiz.completions[p.UserID]
		rec.Participants = append(rec.Participants, domain.ParticipantRecord{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Completed:   done,
		})
	}
	return rec
}

// sortedMembers returns participants in join order.
func (r *Room) sortedMembers() []*domain.Participant {
	out := make([]*domain.Participant, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (r *Room) memberList() domain.MemberList {
	members := r.sortedMembers()
	users := make([]domain.Member, 0, len(members))
	for _, p := range members {
		_, done := r.quiz.completions[p.UserID]
		users = append(users, domain.Member{
			UserID:    p.UserID,
			Name:      p.DisplayName,
			IsHost:    p.UserID == r.hostID,
			Completed: done,
		})
	}
	return domain.MemberList{RoomName: r.name, Users: users}
}

func (r *Room) info() domain.RoomInfo {
	return domain.RoomInfo{
		ID:            r.id,
		Name:          r.name,
		HostID:        r.hostID,
		QuizID:        r.quizID,
		TimerEnabled:  r.timerEnabled,
		TimerDuration: r.timerDuration,
		Lifecycle:     r.quiz.lifecycle,
		Members:       r.memberList().Users,
		Polls:         len(r.polls),
		LivePoll:      r.livePoll != nil,
		CreatedAt:     r.createdAt,
	}
}

// quizParticipants counts non-host users that are present or finished this run.
func (r *Room) quizParticipants() int {
	seen := make(map[string]struct{}, len(r.members)+len(r.quiz.completions))
	for id := range r.members {
		if id != r.hostID {
			seen[id] = struct{}{}
		}
	}
	for id := range r.quiz.completions {
		seen[id] = struct{}{}
	}
	return len(seen)
}

func (r *Room) hostSession() string {
	if host, ok := r.members[r.hostID]; ok {
		return host.SessionID
	}
	return ""
}

func (r *Room) runKey() string {
	return r.id + "#" + strconv.Itoa(r.quiz.run)
}

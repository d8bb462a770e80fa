package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// RoomStore persists room records. Implementations must make AddParticipant
// and SetCompleted idempotent.
type RoomStore interface {
	// CreateRoom inserts a new active room, archiving any active record with the same name.
	CreateRoom(ctx context.Context, rec domain.RoomRecord) error
	FindRoom(ctx context.Context, name string) (domain.RoomRecord, error)
	AddParticipant(ctx context.Context, roomID string, p domain.ParticipantRecord) error
	SetCompleted(ctx context.Context, roomID, userID string) error
	// StartRun marks the room started and clears every completion flag.
	StartRun(ctx context.Context, roomID string, startedAt time.Time) error
	SetLifecycle(ctx context.Context, roomID string, lifecycle domain.Lifecycle) error
	ArchiveRoom(ctx context.Context, roomID string) error
}

// ScoreLedger is the durable per-user score store.
type ScoreLedger interface {
	// Upsert applies entry.LastScore once per entry.RunKey and returns the stored row.
	Upsert(ctx context.Context, entry domain.ScoreEntry) (domain.ScoreEntry, error)
	// TopN ranks the given users by last score desc, earliest update first on ties.
	TopN(ctx context.Context, userIDs []string, n int) ([]domain.ScoreEntry, error)
}

// PasscodeHasher hides the credential hashing scheme.
type PasscodeHasher interface {
	Hash(passcode string) (string, error)
	Matches(hash, passcode string) bool
}

// Directory publishes room summaries for other instances.
type Directory interface {
	Put(ctx context.Context, info domain.RoomInfo) error
	Get(ctx context.Context, name string) (domain.RoomInfo, error)
	Remove(ctx context.Context, name string) error
}

// Dependencies groups the collaborators of Service. Quizzes, Rooms, Ledger,
// Hasher and Sink are required.
type Dependencies struct {
	Quizzes   QuizRepository
	Rooms     RoomStore
	Ledger    ScoreLedger
	Hasher    PasscodeHasher
	Sink      Deliverer
	Mirror    Mirror
	Directory Directory
	Scheduler Scheduler
	Logger    *zap.Logger
}

// Options tunes room behaviour.
type Options struct {
	StoreTimeout  time.Duration
	IdleTTL       time.Duration
	SweepInterval time.Duration
	TopN          int
}

func (o Options) withDefaults() Options {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 3 * time.Second
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = 30 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.TopN <= 0 {
		o.TopN = 3
	}
	return o
}

// Service coordinates live rooms: membership, polls, quiz runs and timers.
type Service struct {
	rooms     *Registry
	sessions  *Tracker
	quizzes   QuizRepository
	store     RoomStore
	ledger    ScoreLedger
	hasher    PasscodeHasher
	gateway   *Gateway
	directory Directory
	timers    Scheduler
	logger    *zap.Logger
	opts      Options

	now   func() time.Time
	newID func() string
}

func NewService(deps Dependencies, opts Options) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = ClockScheduler{}
	}
	return &Service{
		rooms:     NewRegistry(),
		sessions:  NewTracker(),
		quizzes:   deps.Quizzes,
		store:     deps.Rooms,
		ledger:    deps.Ledger,
		hasher:    deps.Hasher,
		gateway:   NewGateway(deps.Sink, deps.Mirror, logger),
		directory: deps.Directory,
		timers:    scheduler,
		logger:    logger,
		opts:      opts.withDefaults(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// storeCtx bounds a persistence call made while a room lock is held.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// OpenSession registers a transport session; it must precede any room command.
func (s *Service) OpenSession(sessionID string, identity domain.Identity) {
	s.sessions.Open(sessionID, identity)
}

// RoomInfo returns a summary of the named room. Rooms hosted by another
// instance are resolved through the directory when one is configured.
func (s *Service) RoomInfo(ctx context.Context, name string) (domain.RoomInfo, error) {
	if room, err := s.rooms.Get(name); err == nil {
		room.mu.Lock()
		info, closed := room.info(), room.closed
		room.mu.Unlock()
		if !closed {
			return info, nil
		}
	}
	if s.directory != nil {
		info, derr := s.directory.Get(ctx, name)
		if derr == nil {
			return info, nil
		}
		s.logger.Debug("directory lookup failed", zap.String("room", name), zap.Error(derr))
	}
	return domain.RoomInfo{}, domain.ErrRoomNotFound
}

package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
)

type stack struct {
	db     *bun.DB
	pool   *pgxpool.Pool
	redis  *goredis.Client
	rooms  *postgres.RoomStore
	ledger *postgres.ScoreLedger
}

func TestQuizRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := setup(t, ctx)
	sink := &recordingSink{}

	service := app.NewService(app.Dependencies{
		Quizzes:   infraredis.NewQuizRepository(s.redis, postgres.NewQuizLoader(s.pool), 5*time.Minute),
		Rooms:     s.rooms,
		Ledger:    s.ledger,
		Hasher:    auth.NewPasscodeHasher(bcrypt.MinCost),
		Sink:      sink,
		Directory: infraredis.NewDirectory(s.redis, time.Minute),
		Logger:    zaptest.NewLogger(t),
	}, app.Options{SweepInterval: 100 * time.Millisecond})

	open := func(session, user string) {
		service.OpenSession(session, domain.Identity{UserID: user, Name: user})
	}
	open("s-host", "host")
	open("s1", "u1")
	open("s2", "u2")

	if err := service.CreateRoom(ctx, "s-host", domain.CreateRoom{RoomName: "R1", Passcode: "p", QuizID: "quiz-1"}); err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, session := range []string{"s1", "s2"} {
		if err := service.JoinRoom(ctx, session, domain.JoinRoom{RoomName: "R1", Passcode: "p"}); err != nil {
			t.Fatalf("join %s: %v", session, err)
		}
	}
	if err := service.StartQuiz(ctx, "s-host", domain.StartQuiz{RoomName: "R1"}); err != nil {
		t.Fatalf("start quiz: %v", err)
	}

	answers := map[string][]domain.AnswerValue{
		"s1": {{"3"}, {"Paris"}},
		"s2": {{"4"}, {" paris "}},
	}
	for session, a := range answers {
		if err := service.RecordCompletion(ctx, session, domain.RecordCompletion{RoomName: "R1", QuizID: "quiz-1", Answers: a}); err != nil {
			t.Fatalf("complete %s: %v", session, err)
		}
	}
	// A resubmission must not be scored twice.
	if err := service.RecordCompletion(ctx, "s2", domain.RecordCompletion{RoomName: "R1", QuizID: "quiz-1", Answers: answers["s2"]}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	top, err := s.ledger.TopN(ctx, []string{"u1", "u2"}, 3)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "u2" || top[0].TotalScore != 2 || top[1].TotalScore != 1 {
		t.Fatalf("unexpected ranking %+v", top)
	}

	rec, err := s.rooms.FindRoom(ctx, "R1")
	if err != nil {
		t.Fatalf("find room: %v", err)
	}
	if rec.Lifecycle != domain.LifecycleStarted || len(rec.Participants) != 3 {
		t.Fatalf("unexpected stored room %+v", rec)
	}
	completed := 0
	for _, p := range rec.Participants {
		if p.Completed {
			completed++
		}
	}
	if completed != 2 {
		t.Fatalf("expected 2 stored completions, got %d", completed)
	}

	var stats domain.QuizStats
	if !sink.last("s-host", domain.EventQuizStats, &stats) || stats.CompletedCount != 2 {
		t.Fatalf("expected host stats with two completions, got %+v", stats)
	}

	// A second instance sees the room through the shared directory.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = service.Run(runCtx) }()

	peer := app.NewService(app.Dependencies{
		Quizzes:   infraredis.NewQuizRepository(s.redis, postgres.NewQuizLoader(s.pool), 5*time.Minute),
		Rooms:     s.rooms,
		Ledger:    s.ledger,
		Hasher:    auth.NewPasscodeHasher(bcrypt.MinCost),
		Sink:      &recordingSink{},
		Directory: infraredis.NewDirectory(s.redis, time.Minute),
	}, app.Options{})
	deadline := time.Now().Add(5 * time.Second)
	for {
		info, err := peer.RoomInfo(ctx, "R1")
		if err == nil {
			if info.HostID != "host" || len(info.Members) != 3 {
				t.Fatalf("unexpected directory entry %+v", info)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("room never reached the directory: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := service.CloseRoom(ctx, "s-host", domain.CloseRoom{RoomName: "R1"}); err != nil {
		t.Fatalf("close room: %v", err)
	}
	if _, err := s.rooms.FindRoom(ctx, "R1"); err != domain.ErrRoomNotFound {
		t.Fatalf("expected archived room, got %v", err)
	}
}

func TestScoreLedgerAccumulatesAcrossRuns(t *testing.T) {
	ctx := context.Background()
	s := setup(t, ctx)

	entry := domain.ScoreEntry{UserID: "u1", DisplayName: "Alice", RoomID: "room-a", RunKey: "room-a#1", LastScore: 3}
	for i := 0; i < 2; i++ {
		got, err := s.ledger.Upsert(ctx, entry)
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if got.TotalScore != 3 {
			t.Fatalf("expected idempotent total 3, got %d", got.TotalScore)
		}
	}

	entry.RunKey, entry.LastScore = "room-a#2", 2
	got, err := s.ledger.Upsert(ctx, entry)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got.TotalScore != 5 || got.LastScore != 2 {
		t.Fatalf("expected total 5 last 2, got %+v", got)
	}
}

func TestRoomStoreReplacesActiveRoomWithSameName(t *testing.T) {
	ctx := context.Background()
	s := setup(t, ctx)

	first := domain.RoomRecord{ID: "room-1", Name: "R1", PasscodeHash: "h", HostID: "host", Lifecycle: domain.LifecycleIdle, CreatedAt: time.Now()}
	if err := s.rooms.CreateRoom(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.rooms.AddParticipant(ctx, "room-1", domain.ParticipantRecord{UserID: "u1", DisplayName: "Alice"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.rooms.AddParticipant(ctx, "room-1", domain.ParticipantRecord{UserID: "u1", DisplayName: "Alice"}); err != nil {
		t.Fatalf("add again: %v", err)
	}
	if err := s.rooms.SetCompleted(ctx, "room-1", "ghost"); err != domain.ErrParticipantNotFound {
		t.Fatalf("expected participant not found, got %v", err)
	}

	second := first
	second.ID = "room-2"
	if err := s.rooms.CreateRoom(ctx, second); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	rec, err := s.rooms.FindRoom(ctx, "R1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.ID != "room-2" || len(rec.Participants) != 0 {
		t.Fatalf("expected fresh room-2, got %+v", rec)
	}
}

func setup(t *testing.T, ctx context.Context) *stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(pgURL))), pgdialect.New())
	t.Cleanup(func() { db.Close() })
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := postgres.NewQuizLoader(pool).SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	return &stack{
		db:     db,
		pool:   pool,
		redis:  redisClient,
		rooms:  postgres.NewRoomStore(db),
		ledger: postgres.NewScoreLedger(db),
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Warm-up",
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionSingleChoice, Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: domain.AnswerValue{"4"}},
			{ID: "q2", Type: domain.QuestionShortAnswer, Text: "Capital of France?", CorrectAnswer: domain.AnswerValue{"Paris"}},
		},
	}
}

// recordingSink keeps every payload delivered per session.
type recordingSink struct {
	mu     sync.Mutex
	events map[string][][]byte
}

func (r *recordingSink) Deliver(sessionID string, data []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string][][]byte)
	}
	r.events[sessionID] = append(r.events[sessionID], data)
	return true
}

func (r *recordingSink) last(sessionID string, typ domain.EventType, out any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.events[sessionID]
	for i := len(list) - 1; i >= 0; i-- {
		var env struct {
			Type    domain.EventType `json:"type"`
			Payload json.RawMessage  `json:"payload"`
		}
		if err := json.Unmarshal(list[i], &env); err == nil && env.Type == typ {
			return json.Unmarshal(env.Payload, out) == nil
		}
	}
	return false
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

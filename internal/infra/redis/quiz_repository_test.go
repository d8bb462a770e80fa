package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr := startRedis(t)
	client := newClient(mr)

	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{
			"quiz-1": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(client, loader, time.Minute)

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls.Load())
	}
	if !mr.Exists("quiz:quiz-1:questions") || !mr.Exists("quiz:quiz-1:meta") {
		t.Fatalf("expected quiz keys in redis")
	}
	if ttl := mr.TTL("quiz:quiz-1:questions"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get cached quiz: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}
	if cached.Title != quiz.Title || len(cached.Questions) != len(quiz.Questions) {
		t.Fatalf("cached quiz differs: %+v", cached)
	}
	for i, q := range cached.Questions {
		if q.Text != quiz.Questions[i].Text {
			t.Fatalf("question %d out of order: %q", i, q.Text)
		}
	}
	if got := cached.Questions[1].CorrectAnswer; len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("multi answer lost in cache: %v", got)
	}
}

func TestQuizRepositoryInvalidateReloads(t *testing.T) {
	mr := startRedis(t)
	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(newClient(mr), loader, time.Minute)
	ctx := context.Background()

	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if err := repo.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls.Load())
	}

	mr.FastForward(2 * time.Minute)
	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls.Load() != 3 {
		t.Fatalf("expected reload after expiry, loader calls=%d", loader.calls.Load())
	}
}

func TestQuizRepositorySharesConcurrentMisses(t *testing.T) {
	mr := startRedis(t)
	gate := make(chan struct{})
	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}),
		gate:       gate,
	}
	repo := NewQuizRepository(newClient(mr), loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
				t.Errorf("get quiz: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected one shared load, got %d", loader.calls.Load())
	}
}

func TestQuizRepositoryMissingQuiz(t *testing.T) {
	mr := startRedis(t)
	repo := NewQuizRepository(newClient(mr), memory.NewStaticQuizLoader(nil), time.Minute)

	_, err := repo.GetQuiz(context.Background(), "nope")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
	if mr.Exists("quiz:nope:questions") {
		t.Fatalf("missing quiz must not be cached")
	}
}

type countingLoader struct {
	memory.QuizLoader
	calls atomic.Int32
	gate  chan struct{}
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Basics",
		Questions: []domain.Question{
			{
				ID:            "q1",
				Type:          domain.QuestionSingleChoice,
				Text:          "What is 2 + 2?",
				Options:       []string{"3", "4", "5"},
				CorrectAnswer: domain.AnswerValue{"4"},
			},
			{
				ID:            "q2",
				Type:          domain.QuestionMultipleChoice,
				Text:          "Pick the vowels",
				Options:       []string{"A", "B", "C"},
				CorrectAnswer: domain.AnswerValue{"A", "C"},
			},
		},
	}
}

func startRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

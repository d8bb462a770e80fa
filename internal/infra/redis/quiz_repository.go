package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"live-quiz-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches quiz definitions in Redis and falls back to a loader on cache miss.
// Questions are stored as: HSET quiz:{quizID}:questions {index} {question JSON}
// Metadata is stored as:   HSET quiz:{quizID}:meta title {title} description {description}
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		// Best effort: a failed write only means the next miss reloads.
		_ = r.store(ctx, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached copy of a quiz.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) error {
	return r.client.Del(ctx, r.questionsKey(quizID), r.metaKey(quizID)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	pipe := r.client.Pipeline()
	questionsCmd := pipe.HGetAll(ctx, r.questionsKey(quizID))
	metaCmd := pipe.HGetAll(ctx, r.metaKey(quizID))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Quiz{}, false
	}
	raw := questionsCmd.Val()
	if len(raw) == 0 {
		return domain.Quiz{}, false
	}
	quiz, err := buildQuizFromCache(quizID, raw, metaCmd.Val())
	if err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) store(ctx context.Context, quiz domain.Quiz) error {
	if len(quiz.Questions) == 0 {
		return nil
	}
	questions := make(map[string]interface{}, len(quiz.Questions))
	for i, q := range quiz.Questions {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode question %d: %w", i, err)
		}
		questions[strconv.Itoa(i)] = data
	}

	questionsKey, metaKey := r.questionsKey(quiz.ID), r.metaKey(quiz.ID)
	ttl := r.ttlWithJitter()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, questionsKey, metaKey)
		pipe.HSet(ctx, questionsKey, questions)
		pipe.HSet(ctx, metaKey, "title", quiz.Title, "description", quiz.Description)
		if ttl > 0 {
			pipe.Expire(ctx, questionsKey, ttl)
			pipe.Expire(ctx, metaKey, ttl)
		}
		return nil
	})
	return err
}

func (r *QuizRepository) questionsKey(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (r *QuizRepository) metaKey(quizID string) string {
	return "quiz:" + quizID + ":meta"
}

func buildQuizFromCache(quizID string, raw map[string]string, meta map[string]string) (domain.Quiz, error) {
	type indexed struct {
		pos int
		q   domain.Question
	}
	entries := make([]indexed, 0, len(raw))
	for field, data := range raw {
		pos, err := strconv.Atoi(field)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("question index %q: %w", field, err)
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			return domain.Quiz{}, fmt.Errorf("decode question %d: %w", pos, err)
		}
		entries = append(entries, indexed{pos: pos, q: q})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })

	quiz := domain.Quiz{
		ID:          quizID,
		Title:       meta["title"],
		Description: meta["description"],
		Questions:   make([]domain.Question, 0, len(entries)),
	}
	for _, e := range entries {
		quiz.Questions = append(quiz.Questions, e.q)
	}
	return quiz, nil
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

package app

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

// StartQuiz starts a quiz run. Starting a running quiz is rejected; an ended
// quiz may be restarted, which opens a fresh run.
func (s *Service) StartQuiz(ctx context.Context, sessionID string, cmd domain.StartQuiz) error {
	return s.withHost(sessionID, cmd.RoomName, func(room *Room, host *domain.Participant) error {
		if room.quiz.lifecycle == domain.LifecycleStarted {
			return domain.ErrQuizAlreadyStarted
		}
		now := s.now()
		storeCtx, cancel := s.storeCtx(ctx)
		err := s.store.StartRun(storeCtx, room.id, now)
		cancel()
		if err != nil {
			return domain.Transient("start quiz", err)
		}

		room.quiz = quizSession{
			lifecycle:   domain.LifecycleStarted,
			startedAt:   now,
			run:         room.quiz.run + 1,
			completions: make(map[string]completion),
		}
		room.dirty = false
		room.lastActive = now
		if room.timerEnabled {
			s.armTimer(room, room.timerDuration)
		}

		s.logger.Info("quiz started",
			zap.String("room", room.name),
			zap.Int("run", room.quiz.run),
			zap.Bool("timer", room.timer.live()),
		)
		started := domain.Event{Type: domain.EventQuizStarted, Payload: room.quizStarted()}
		for _, p := range room.sortedMembers() {
			if p.UserID == room.hostID {
				continue
			}
			s.gateway.toSession(p.SessionID, started)
		}
		s.gateway.toSession(host.SessionID, domain.Event{Type: domain.EventQuizStats, Payload: domain.QuizStats{
			RoomName:          room.name,
			TotalParticipants: room.quizParticipants(),
			Top:               []domain.ScoreEntry{},
		}})
		return nil
	})
}

// RecordCompletion scores a participant's answers once per run and records
// the result in the ledger and the room store before anything is broadcast.
func (s *Service) RecordCompletion(ctx context.Context, sessionID string, cmd domain.RecordCompletion) error {
	identity, ok := s.sessions.Identity(sessionID)
	if !ok {
		return domain.ErrSessionClosed
	}
	if cmd.UserID != "" && cmd.UserID != identity.UserID {
		return domain.ErrUserMismatch
	}
	room, err := s.rooms.Get(strings.TrimSpace(cmd.RoomName))
	if err != nil {
		return err
	}
	quizID, err := resolveQuizID(room.quizID, cmd.QuizID)
	if err != nil {
		return err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Transient("load quiz", err)
	}
	score := Score(quiz, cmd.Answers)

	return s.withMember(sessionID, cmd.RoomName, func(r *Room, actor *domain.Participant) error {
		if r != room {
			// Recreated under the same name while the quiz was loading.
			return domain.ErrRoomNotFound
		}
		if actor.UserID == r.hostID {
			return domain.ErrHostCannotVote
		}
		if r.quiz.lifecycle == domain.LifecycleIdle {
			return domain.ErrQuizNotStarted
		}
		if prev, done := r.quiz.completions[actor.UserID]; done {
			s.gateway.toSession(sessionID, domain.Event{Type: domain.EventQuizResult, Payload: domain.CompletionResult{
				RoomName: r.name,
				UserID:   actor.UserID,
				Score:    prev.score,
				Total:    prev.total,
			}})
			return nil
		}

		completers := make([]string, 0, len(r.quiz.completions)+1)
		for id := range r.quiz.completions {
			completers = append(completers, id)
		}
		completers = append(completers, actor.UserID)

		storeCtx, cancel := s.storeCtx(ctx)
		defer cancel()
		// SetCompleted is idempotent and goes first, so a failure never
		// leaves the ledger ahead of the room record.
		if err := s.store.SetCompleted(storeCtx, r.id, actor.UserID); err != nil {
			return domain.Transient("mark completed", err)
		}
		stored, err := s.ledger.Upsert(storeCtx, domain.ScoreEntry{
			UserID:      actor.UserID,
			DisplayName: actor.DisplayName,
			RoomID:      r.id,
			RunKey:      r.runKey(),
			LastScore:   score,
		})
		if err != nil {
			return domain.Transient("update score ledger", err)
		}
		top, err := s.ledger.TopN(storeCtx, completers, s.opts.TopN)
		if err != nil {
			return domain.Transient("rank scores", err)
		}

		now := s.now()
		r.quiz.completions[actor.UserID] = completion{
			displayName: actor.DisplayName,
			score:       score,
			total:       len(quiz.Questions),
			at:          now,
		}
		r.lastActive = now

		s.logger.Info("quiz completed",
			zap.String("room", r.name),
			zap.String("user", actor.UserID),
			zap.Int("score", score),
			zap.Int("total_score", stored.TotalScore),
		)
		s.gateway.toSession(sessionID, domain.Event{Type: domain.EventQuizResult, Payload: domain.CompletionResult{
			RoomName: r.name,
			UserID:   actor.UserID,
			Score:    score,
			Total:    len(quiz.Questions),
		}})
		s.gateway.toRoom(r, domain.Event{Type: domain.EventParticipantsUpdate, Payload: r.memberList()})
		s.gateway.toRoom(r, domain.Event{Type: domain.EventQuizStats, Payload: domain.QuizStats{
			RoomName:          r.name,
			CompletedCount:    len(r.quiz.completions),
			TotalParticipants: r.quizParticipants(),
			Top:               top,
		}})
		return nil
	})
}

// EndQuiz force-ends a running quiz. Ending a quiz that is not running is a no-op.
func (s *Service) EndQuiz(ctx context.Context, sessionID string, cmd domain.EndQuiz) error {
	return s.withHost(sessionID, cmd.RoomName, func(room *Room, _ *domain.Participant) error {
		return s.endQuizLocked(ctx, room, domain.EndedByHost)
	})
}

// endQuizLocked moves a started room to ended. A host-triggered end that
// cannot be persisted changes nothing. A timer-triggered end always takes
// effect in memory; the room is marked dirty for Reconcile instead.
func (s *Service) endQuizLocked(ctx context.Context, room *Room, source string) error {
	if room.quiz.lifecycle != domain.LifecycleStarted {
		return nil
	}
	storeCtx, cancel := s.storeCtx(ctx)
	err := s.store.SetLifecycle(storeCtx, room.id, domain.LifecycleEnded)
	cancel()
	if err != nil {
		if source == domain.EndedByHost {
			return domain.Transient("end quiz", err)
		}
		room.dirty = true
		s.logger.Error("persist quiz end",
			zap.String("room", room.name),
			zap.String("source", source),
			zap.Error(err),
		)
		if hostSession := room.hostSession(); hostSession != "" {
			s.gateway.toSession(hostSession, domain.ErrorEvent(domain.Transient("end quiz", err)))
		}
	}

	s.cancelTimer(room)
	room.quiz.lifecycle = domain.LifecycleEnded
	room.lastActive = s.now()
	s.logger.Info("quiz ended", zap.String("room", room.name), zap.String("source", source))
	s.gateway.toRoom(room, domain.Event{Type: domain.EventQuizForceEnded, Payload: domain.QuizEnded{
		RoomName: room.name,
		Source:   source,
	}})
	return nil
}

func (r *Room) quizStarted() domain.QuizStarted {
	duration := 0
	if r.timerEnabled {
		duration = r.timerDuration
	}
	return domain.QuizStarted{
		RoomName:        r.name,
		QuizID:          r.quizID,
		StartedAt:       r.quiz.startedAt,
		TimerEnabled:    r.timerEnabled && duration > 0,
		DurationSeconds: duration,
	}
}

func resolveQuizID(roomQuiz, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	switch {
	case roomQuiz == "" && requested == "":
		return "", domain.ErrInvalidInput
	case roomQuiz == "":
		return requested, nil
	case requested != "" && requested != roomQuiz:
		return "", domain.ErrQuizMismatch
	default:
		return roomQuiz, nil
	}
}

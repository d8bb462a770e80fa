package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

// Stopper cancels a scheduled callback. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

// ClockScheduler schedules on the wall clock.
type ClockScheduler struct{}

func (ClockScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// timerHandle is the room's single quiz deadline. gen changes on every arm
// and cancel so a callback that lost the race to the room lock can tell it
// is stale.
type timerHandle struct {
	gen  uint64
	stop Stopper
}

func (h timerHandle) live() bool {
	return h.stop != nil
}

// armTimer replaces any pending deadline. The caller holds room.mu.
func (s *Service) armTimer(room *Room, seconds int) {
	s.cancelTimer(room)
	if seconds <= 0 {
		return
	}
	gen := room.timer.gen
	room.timer.stop = s.timers.AfterFunc(time.Duration(seconds)*time.Second, func() {
		s.onTimerFired(room, gen)
	})
}

// cancelTimer is idempotent. The caller holds room.mu.
func (s *Service) cancelTimer(room *Room) {
	if room.timer.stop != nil {
		room.timer.stop.Stop()
		room.timer.stop = nil
	}
	room.timer.gen++
}

func (s *Service) onTimerFired(room *Room, gen uint64) {
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed || room.timer.gen != gen || !room.timer.live() {
		return
	}
	room.timer.stop = nil
	if room.quiz.lifecycle != domain.LifecycleStarted {
		return
	}
	s.logger.Info("quiz timer expired", zap.String("room", room.name))
	if err := s.endQuizLocked(context.Background(), room, domain.EndedByTimer); err != nil {
		s.logger.Error("end quiz on timer", zap.String("room", room.name), zap.Error(err))
	}
}

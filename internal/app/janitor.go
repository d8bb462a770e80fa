package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

// Run sweeps idle rooms, repairs store divergence and refreshes the room
// directory every sweep interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Reconcile(ctx)
			s.Sweep(ctx)
			s.publishDirectory(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// Sweep removes rooms that have had no members for longer than the idle TTL
// and no running quiz. It returns the number of rooms removed.
func (s *Service) Sweep(ctx context.Context) int {
	removed := 0
	cutoff := s.now().Add(-s.opts.IdleTTL)
	for _, room := range s.rooms.snapshot() {
		room.mu.Lock()
		idle := !room.closed &&
			len(room.members) == 0 &&
			room.quiz.lifecycle != domain.LifecycleStarted &&
			room.lastActive.Before(cutoff)
		if idle {
			if err := s.removeLocked(ctx, room, "idle"); err != nil {
				s.logger.Warn("sweep room", zap.String("room", room.name), zap.Error(err))
			} else {
				removed++
			}
		}
		room.mu.Unlock()
	}
	return removed
}

// Reconcile rewrites the stored lifecycle of rooms whose last transition
// could not be persisted. It returns the number of rooms still dirty.
func (s *Service) Reconcile(ctx context.Context) int {
	pending := 0
	for _, room := range s.rooms.snapshot() {
		room.mu.Lock()
		if !room.closed && room.dirty {
			if err := s.reconcileLocked(ctx, room); err != nil {
				pending++
				s.logger.Warn("reconcile room", zap.String("room", room.name), zap.Error(err))
			}
		}
		room.mu.Unlock()
	}
	return pending
}

func (s *Service) reconcileLocked(ctx context.Context, room *Room) error {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	rec, err := s.store.FindRoom(storeCtx, room.name)
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		// Archived underneath us; nothing to repair.
	case err != nil:
		return err
	case rec.ID != room.id:
		s.logger.Warn("stored room belongs to another instance",
			zap.String("room", room.name),
			zap.String("stored_id", rec.ID),
			zap.String("local_id", room.id),
		)
	case rec.Lifecycle != room.quiz.lifecycle:
		if err := s.store.SetLifecycle(storeCtx, room.id, room.quiz.lifecycle); err != nil {
			return err
		}
		s.logger.Info("room reconciled",
			zap.String("room", room.name),
			zap.String("lifecycle", string(room.quiz.lifecycle)),
		)
	}
	room.dirty = false
	return nil
}

// publishDirectory refreshes every open room's directory entry. Each Put runs
// under the room lock so it cannot land after the room's Remove.
func (s *Service) publishDirectory(ctx context.Context) {
	if s.directory == nil {
		return
	}
	for _, room := range s.rooms.snapshot() {
		room.mu.Lock()
		if !room.closed {
			dirCtx, cancel := s.storeCtx(ctx)
			if err := s.directory.Put(dirCtx, room.info()); err != nil {
				s.logger.Warn("directory put failed", zap.String("room", room.name), zap.Error(err))
			}
			cancel()
		}
		room.mu.Unlock()
	}
}

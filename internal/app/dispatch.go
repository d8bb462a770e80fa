package app

import (
	"context"

	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

// Dispatch routes a decoded command to its operation.
func (s *Service) Dispatch(ctx context.Context, sessionID string, cmd domain.Command) error {
	switch c := cmd.(type) {
	case domain.CreateRoom:
		return s.CreateRoom(ctx, sessionID, c)
	case domain.JoinRoom:
		return s.JoinRoom(ctx, sessionID, c)
	case domain.SavePoll:
		return s.SavePoll(ctx, sessionID, c)
	case domain.ActivatePoll:
		return s.ActivatePoll(ctx, sessionID, c)
	case domain.SubmitVote:
		return s.SubmitVote(ctx, sessionID, c)
	case domain.EndPoll:
		return s.EndPoll(ctx, sessionID, c)
	case domain.StartQuiz:
		return s.StartQuiz(ctx, sessionID, c)
	case domain.RecordCompletion:
		return s.RecordCompletion(ctx, sessionID, c)
	case domain.EndQuiz:
		return s.EndQuiz(ctx, sessionID, c)
	case domain.CloseRoom:
		return s.CloseRoom(ctx, sessionID, c)
	case domain.LeaveRoom:
		return s.LeaveRoom(ctx, sessionID)
	case domain.Disconnect:
		return s.Disconnect(ctx, sessionID)
	default:
		return domain.ErrUnknownCommand
	}
}

// Handle dispatches cmd and reports any failure back to the session as an
// error notification.
func (s *Service) Handle(ctx context.Context, sessionID string, cmd domain.Command) {
	err := s.Dispatch(ctx, sessionID, cmd)
	if err == nil {
		return
	}
	kind := domain.KindOf(err)
	fields := []zap.Field{
		zap.String("session", sessionID),
		zap.String("command", domain.CommandName(cmd)),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	switch kind {
	case domain.KindTransient, domain.KindInternal:
		s.logger.Warn("command failed", fields...)
	default:
		s.logger.Debug("command rejected", fields...)
	}
	s.gateway.toSession(sessionID, domain.ErrorEvent(err))
}

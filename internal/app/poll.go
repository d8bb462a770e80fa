package app

import (
	"context"
	"strings"

	"live-quiz-service/internal/domain"
)

// SavePoll appends a poll draft to the room and broadcasts the saved list.
func (s *Service) SavePoll(_ context.Context, sessionID string, cmd domain.SavePoll) error {
	draft, err := normalizeDraft(cmd.Poll)
	if err != nil {
		return err
	}
	return s.withHost(sessionID, cmd.RoomName, func(room *Room, _ *domain.Participant) error {
		room.polls = append(room.polls, draft)
		s.gateway.toRoom(room, domain.Event{Type: domain.EventPollsUpdated, Payload: domain.PollList{
			RoomName: room.name,
			Polls:    append([]domain.PollDraft(nil), room.polls...),
		}})
		return nil
	})
}

// ActivatePoll makes a saved poll live, discarding any previous live poll.
func (s *Service) ActivatePoll(_ context.Context, sessionID string, cmd domain.ActivatePoll) error {
	return s.withHost(sessionID, cmd.RoomName, func(room *Room, _ *domain.Participant) error {
		if cmd.PollIndex < 0 || cmd.PollIndex >= len(room.polls) {
			return domain.ErrPollIndexOutOfRange
		}
		draft := room.polls[cmd.PollIndex]
		live := &domain.LivePoll{
			RoomName:       room.name,
			Question:       draft.Question,
			Options:        append([]string(nil), draft.Options...),
			VoteCounts:     make(map[string]int, len(draft.Options)),
			CorrectAnswers: append([]string(nil), draft.CorrectAnswers...),
		}
		for _, opt := range draft.Options {
			live.VoteCounts[opt] = 0
		}
		room.livePoll = live
		s.gateway.toRoom(room, domain.Event{Type: domain.EventPollStarted, Payload: copyLivePoll(live)})
		return nil
	})
}

// SubmitVote counts one vote for every valid selected option. The total
// moves by one per submission regardless of how many options it selects.
func (s *Service) SubmitVote(_ context.Context, sessionID string, cmd domain.SubmitVote) error {
	return s.withMember(sessionID, cmd.RoomName, func(room *Room, voter *domain.Participant) error {
		if voter.UserID == room.hostID {
			return domain.ErrHostCannotVote
		}
		live := room.livePoll
		if live == nil {
			return nil
		}
		seen := make(map[string]struct{}, len(cmd.SelectedOptions))
		for _, opt := range cmd.SelectedOptions {
			if _, dup := seen[opt]; dup {
				continue
			}
			seen[opt] = struct{}{}
			if _, ok := live.VoteCounts[opt]; ok {
				live.VoteCounts[opt]++
			}
		}
		live.TotalVotes++
		s.gateway.toRoom(room, domain.Event{Type: domain.EventVoteCountUpdated, Payload: domain.VoteUpdate{
			RoomName:   room.name,
			VoteCounts: copyCounts(live.VoteCounts),
			TotalVotes: live.TotalVotes,
		}})
		return nil
	})
}

// EndPoll broadcasts the final tally and clears the live poll.
func (s *Service) EndPoll(_ context.Context, sessionID string, cmd domain.EndPoll) error {
	return s.withHost(sessionID, cmd.RoomName, func(room *Room, _ *domain.Participant) error {
		live := room.livePoll
		if live == nil {
			return nil
		}
		correct := live.CorrectAnswers
		if correct == nil {
			correct = []string{}
		}
		room.livePoll = nil
		s.gateway.toRoom(room, domain.Event{Type: domain.EventPollEnded, Payload: domain.PollResults{
			RoomName:       room.name,
			Results:        copyCounts(live.VoteCounts),
			CorrectAnswers: correct,
		}})
		return nil
	})
}

func normalizeDraft(d domain.PollDraft) (domain.PollDraft, error) {
	d.Question = strings.TrimSpace(d.Question)
	if d.Question == "" || len(d.Options) == 0 {
		return d, domain.ErrInvalidInput
	}
	options := make([]string, 0, len(d.Options))
	seen := make(map[string]struct{}, len(d.Options))
	for _, opt := range d.Options {
		if opt == "" {
			return d, domain.ErrInvalidInput
		}
		if _, dup := seen[opt]; dup {
			continue
		}
		seen[opt] = struct{}{}
		options = append(options, opt)
	}
	d.Options = options
	return d, nil
}

func copyLivePoll(p *domain.LivePoll) domain.LivePoll {
	out := *p
	out.Options = append([]string(nil), p.Options...)
	out.VoteCounts = copyCounts(p.VoteCounts)
	out.CorrectAnswers = append([]string(nil), p.CorrectAnswers...)
	return out
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

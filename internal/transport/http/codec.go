package http

import (
	"encoding/json"

	"live-quiz-service/internal/domain"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// decodeCommand turns an inbound envelope into a command variant.
func decodeCommand(data []byte) (domain.Command, error) {
	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, domain.ErrInvalidInput
	}

	switch in.Type {
	case "create_room":
		return decodePayload[domain.CreateRoom](in.Payload)
	case "join_room":
		return decodePayload[domain.JoinRoom](in.Payload)
	case "save_poll":
		return decodePayload[domain.SavePoll](in.Payload)
	case "go_live_poll":
		return decodePayload[domain.ActivatePoll](in.Payload)
	case "submit_vote":
		return decodePayload[domain.SubmitVote](in.Payload)
	case "end_poll":
		return decodePayload[domain.EndPoll](in.Payload)
	case "start_quiz":
		return decodePayload[domain.StartQuiz](in.Payload)
	case "quiz_finished":
		return decodePayload[domain.RecordCompletion](in.Payload)
	case "end_quiz":
		return decodePayload[domain.EndQuiz](in.Payload)
	case "close_room":
		return decodePayload[domain.CloseRoom](in.Payload)
	case "leave_room":
		return domain.LeaveRoom{}, nil
	default:
		return nil, domain.ErrUnknownCommand
	}
}

func decodePayload[T domain.Command](raw json.RawMessage) (domain.Command, error) {
	var cmd T
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, domain.ErrInvalidInput
		}
	}
	return cmd, nil
}

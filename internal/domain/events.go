package domain

// EventType names an outbound notification.
type EventType string

const (
	EventRoomCreated        EventType = "room_created"
	EventRoomJoined         EventType = "room_joined"
	EventUsersInRoom        EventType = "users_in_room"
	EventPollsUpdated       EventType = "polls_updated"
	EventPollStarted        EventType = "poll_started"
	EventVoteCountUpdated   EventType = "vote_count_updated"
	EventPollEnded          EventType = "poll_ended"
	EventQuizStarted        EventType = "quiz_started"
	EventQuizStats          EventType = "quiz_stats_update"
	EventParticipantsUpdate EventType = "participants_update"
	EventQuizResult         EventType = "quiz_result"
	EventQuizForceEnded     EventType = "quiz_force_ended"
	EventRoomClosed         EventType = "room_closed"
	EventLeftRoom           EventType = "left_room"
	EventError              EventType = "error_message"
)

// Event is an outbound notification envelope.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ErrorPayload carries a human-readable failure reason.
type ErrorPayload struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// ErrorEvent converts err into an error notification. Store failures are not
// echoed verbatim to clients.
func ErrorEvent(err error) Event {
	kind := KindOf(err)
	msg := err.Error()
	switch kind {
	case KindTransient:
		msg = "temporary failure, please retry"
	case KindInternal:
		msg = "internal error"
	}
	return Event{Type: EventError, Payload: ErrorPayload{Kind: kind, Message: msg}}
}

// Sources of a forced quiz end.
const (
	EndedByHost  = "host"
	EndedByTimer = "timer"
)

package domain

// Identity is who a transport session speaks for.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Command is an inbound session event. The set of variants is closed:
// only types in this package implement it.
type Command interface {
	command() string
}

// CreateRoom creates a room and joins the caller as host.
type CreateRoom struct {
	RoomName      string `json:"roomName"`
	Passcode      string `json:"passcode"`
	Username      string `json:"username"`
	QuizID        string `json:"quizId,omitempty"`
	TimerEnabled  bool   `json:"timerEnabled,omitempty"`
	TimerDuration int    `json:"timerDuration,omitempty"`
}

// JoinRoom joins an existing room.
type JoinRoom struct {
	RoomName string `json:"roomName"`
	Passcode string `json:"passcode"`
	Username string `json:"username"`
}

// SavePoll appends a poll draft to the room.
type SavePoll struct {
	RoomName string    `json:"roomName"`
	Poll     PollDraft `json:"poll"`
}

// ActivatePoll makes a saved poll live.
type ActivatePoll struct {
	RoomName  string `json:"roomName"`
	PollIndex int    `json:"pollIndex"`
}

// SubmitVote votes on the live poll.
type SubmitVote struct {
	RoomName        string   `json:"roomName"`
	SelectedOptions []string `json:"selectedOptions"`
}

// EndPoll closes the live poll.
type EndPoll struct {
	RoomName string `json:"roomName"`
}

// StartQuiz starts (or restarts) the room's quiz.
type StartQuiz struct {
	RoomName string `json:"roomName"`
}

// RecordCompletion submits a participant's answers.
type RecordCompletion struct {
	RoomName string        `json:"roomName"`
	QuizID   string        `json:"quizId"`
	UserID   string        `json:"userId"`
	Answers  []AnswerValue `json:"answers"`
}

// EndQuiz force-ends the room's quiz.
type EndQuiz struct {
	RoomName string `json:"roomName"`
}

// CloseRoom tears the room down.
type CloseRoom struct {
	RoomName string `json:"roomName"`
}

// LeaveRoom leaves whatever room the session is bound to.
type LeaveRoom struct{}

// Disconnect is emitted by the transport when a session ends.
type Disconnect struct{}

func (CreateRoom) command() string       { return "create_room" }
func (JoinRoom) command() string         { return "join_room" }
func (SavePoll) command() string         { return "save_poll" }
func (ActivatePoll) command() string     { return "go_live_poll" }
func (SubmitVote) command() string       { return "submit_vote" }
func (EndPoll) command() string          { return "end_poll" }
func (StartQuiz) command() string        { return "start_quiz" }
func (RecordCompletion) command() string { return "quiz_finished" }
func (EndQuiz) command() string          { return "end_quiz" }
func (CloseRoom) command() string        { return "close_room" }
func (LeaveRoom) command() string        { return "leave_room" }
func (Disconnect) command() string       { return "disconnect" }

// CommandName returns the wire name of a command.
func CommandName(c Command) string {
	if c == nil {
		return "unknown"
	}
	return c.command()
}

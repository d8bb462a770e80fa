package domain

import (
	"encoding/json"
	"time"
)

// Lifecycle is the quiz state of a room.
type Lifecycle string

const (
	LifecycleIdle    Lifecycle = "idle"
	LifecycleStarted Lifecycle = "started"
	LifecycleEnded   Lifecycle = "ended"
)

// QuestionType selects how a question is scored.
type QuestionType string

const (
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionMultipleChoice QuestionType = "multiple_choice"
)

// AnswerValue is either a single string or a list of strings on the wire.
type AnswerValue []string

// UnmarshalJSON accepts a string, an array of strings, or null.
func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = AnswerValue{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = many
	return nil
}

// Question models one quiz question and its answer key.
type Question struct {
	ID            string       `json:"id,omitempty"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"questionText"`
	Options       []string     `json:"options"`
	CorrectAnswer AnswerValue  `json:"correctAnswer"`
}

// Quiz is a collection of questions.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
}

// Participant is a member of a room. SessionID is the latest transport binding.
type Participant struct {
	UserID      string
	DisplayName string
	SessionID   string
	JoinedAt    time.Time
}

// Member is the wire view of a participant in membership snapshots.
type Member struct {
	UserID    string `json:"id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"isHost"`
	Completed bool   `json:"completed"`
}

// PollDraft is a saved, not yet activated poll.
type PollDraft struct {
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	CorrectAnswers []string `json:"correctAnswers,omitempty"`
}

// LivePoll is the single active poll of a room.
type LivePoll struct {
	RoomName       string         `json:"roomName"`
	Question       string         `json:"question"`
	Options        []string       `json:"options"`
	VoteCounts     map[string]int `json:"voteCounts"`
	TotalVotes     int            `json:"totalVotes"`
	CorrectAnswers []string       `json:"correctAnswers,omitempty"`
}

// PollResults is emitted when a live poll ends.
type PollResults struct {
	RoomName       string         `json:"roomName"`
	Results        map[string]int `json:"results"`
	CorrectAnswers []string       `json:"correctAnswers"`
}

// PollList is the saved poll list of a room.
type PollList struct {
	RoomName string      `json:"roomName"`
	Polls    []PollDraft `json:"polls"`
}

// VoteUpdate is broadcast after every accepted vote.
type VoteUpdate struct {
	RoomName   string         `json:"roomName"`
	VoteCounts map[string]int `json:"voteCounts"`
	TotalVotes int            `json:"totalVotes"`
}

// MemberList is a membership snapshot.
type MemberList struct {
	RoomName string   `json:"roomName"`
	Users    []Member `json:"users"`
}

// RoomRef names a room in acknowledgements that carry nothing else.
type RoomRef struct {
	RoomName string `json:"roomName"`
}

// ScoreEntry is a Score Ledger row.
type ScoreEntry struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	RoomID      string    `json:"roomId,omitempty"`
	RunKey      string    `json:"-"`
	LastScore   int       `json:"lastScore"`
	TotalScore  int       `json:"totalScore"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// QuizStats is the progress view sent to the room (and to the host at start).
type QuizStats struct {
	RoomName          string       `json:"roomName"`
	CompletedCount    int          `json:"completedCount"`
	TotalParticipants int          `json:"totalParticipants"`
	Top               []ScoreEntry `json:"top"`
}

// QuizStarted is the targeted start notification.
type QuizStarted struct {
	RoomName        string    `json:"roomName"`
	QuizID          string    `json:"quizId"`
	StartedAt       time.Time `json:"startedAt"`
	TimerEnabled    bool      `json:"timerEnabled"`
	DurationSeconds int       `json:"timerDuration"`
}

// QuizEnded is the forced-termination signal.
type QuizEnded struct {
	RoomName string `json:"roomName"`
	Source   string `json:"source"`
}

// CompletionResult is returned to the submitting session.
type CompletionResult struct {
	RoomName string `json:"roomName"`
	UserID   string `json:"userId"`
	Score    int    `json:"score"`
	Total    int    `json:"total"`
}

// RoomInfo is a point-in-time summary of a room.
type RoomInfo struct {
	ID            string    `json:"id"`
	Name          string    `json:"roomName"`
	HostID        string    `json:"hostId"`
	QuizID        string    `json:"quizId,omitempty"`
	TimerEnabled  bool      `json:"timerEnabled"`
	TimerDuration int       `json:"timerDuration"`
	Lifecycle     Lifecycle `json:"lifecycle"`
	Members       []Member  `json:"members"`
	Polls         int       `json:"savedPolls"`
	LivePoll      bool      `json:"livePoll"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RoomRecord is the persisted form of a room.
type RoomRecord struct {
	ID            string
	Name          string
	PasscodeHash  string
	HostID        string
	QuizID        string
	TimerEnabled  bool
	TimerDuration int
	Lifecycle     Lifecycle
	StartedAt     time.Time
	CreatedAt     time.Time
	Participants  []ParticipantRecord
}

// ParticipantRecord is the persisted form of a room participant.
type ParticipantRecord struct {
	UserID      string
	DisplayName string
	Completed   bool
}

package app_test

import (
	"testing"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func TestScore(t *testing.T) {
	quiz := domain.Quiz{Questions: []domain.Question{
		{Type: domain.QuestionSingleChoice, CorrectAnswer: domain.AnswerValue{"Paris"}},
		{Type: domain.QuestionTrueFalse, CorrectAnswer: domain.AnswerValue{"true"}},
		{Type: domain.QuestionMultipleChoice, CorrectAnswer: domain.AnswerValue{"A", "C"}},
		{Type: domain.QuestionShortAnswer, CorrectAnswer: domain.AnswerValue{"Go"}},
		{Type: "essay", CorrectAnswer: domain.AnswerValue{"anything"}},
	}}

	tests := []struct {
		name    string
		answers []domain.AnswerValue
		want    int
	}{
		{
			name:    "all correct with loose whitespace and case",
			answers: []domain.AnswerValue{{"  paris "}, {"TRUE"}, {"C", "A"}, {"go"}, {"anything"}},
			want:    4,
		},
		{
			name:    "wrong single choice",
			answers: []domain.AnswerValue{{"Rome"}},
			want:    0,
		},
		{
			name:    "partial multiple choice",
			answers: []domain.AnswerValue{nil, nil, {"A"}},
			want:    0,
		},
		{
			name:    "multiple choice is case sensitive",
			answers: []domain.AnswerValue{nil, nil, {"a", "c"}},
			want:    0,
		},
		{
			name:    "multiple choice ignores blanks and duplicates",
			answers: []domain.AnswerValue{nil, nil, {"A", " ", "C", "A"}},
			want:    1,
		},
		{
			name:    "missing answers",
			answers: nil,
			want:    0,
		},
		{
			name:    "extra answers are ignored",
			answers: []domain.AnswerValue{{"Paris"}, {"false"}, {"A", "C"}, {"Rust"}, nil, {"Paris"}},
			want:    2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := app.Score(quiz, tt.answers); got != tt.want {
				t.Fatalf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreEmptyAnswerKey(t *testing.T) {
	quiz := domain.Quiz{Questions: []domain.Question{
		{Type: domain.QuestionMultipleChoice},
		{Type: domain.QuestionSingleChoice},
	}}
	answers := []domain.AnswerValue{{}, {""}}
	if got := app.Score(quiz, answers); got != 0 {
		t.Fatalf("Score() = %d, want 0", got)
	}
}

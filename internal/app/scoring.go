package app

import (
	"strings"

	"live-quiz-service/internal/domain"
)

// Score counts the questions answered correctly. answers is positional;
// missing answers score nothing.
func Score(quiz domain.Quiz, answers []domain.AnswerValue) int {
	score := 0
	for i, q := range quiz.Questions {
		if i >= len(answers) {
			break
		}
		if answerCorrect(q, answers[i]) {
			score++
		}
	}
	return score
}

func answerCorrect(q domain.Question, answer domain.AnswerValue) bool {
	switch q.Type {
	case domain.QuestionTrueFalse, domain.QuestionSingleChoice, domain.QuestionShortAnswer:
		if len(q.CorrectAnswer) == 0 || len(answer) == 0 {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(answer[0]), strings.TrimSpace(q.CorrectAnswer[0]))
	case domain.QuestionMultipleChoice:
		want := answerSet(q.CorrectAnswer)
		got := answerSet(answer)
		if len(want) == 0 || len(want) != len(got) {
			return false
		}
		for opt := range want {
			if _, ok := got[opt]; !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// answerSet trims options and drops blanks and duplicates. Case is significant.
func answerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

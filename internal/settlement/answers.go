package settlement

import (
	"regexp"
	"strings"

	"github.com/nudgeprep/quizbot/internal/assessment"
	"github.com/nudgeprep/quizbot/internal/quiz"
)

// NoAnswer is the sentinel submitted for unanswered or unmappable answers.
const NoAnswer = "no answer"

// Option lines live inside the persisted prompt text ("A) ..." or "A. ...").
// The backend wants display text, not letters, so the letters are mapped back
// through the prompt at settlement time.
var optionLine = regexp.MustCompile(`(?m)^\s*([A-D])[).]\s*(.+?)\s*$`)

func parseOptions(prompt string) map[string]string {
	out := map[string]string{}
	for _, m := range optionLine.FindAllStringSubmatch(prompt, -1) {
		letter := strings.ToUpper(m[1])
		if _, dup := out[letter]; !dup {
			out[letter] = m[2]
		}
	}
	return out
}

// BuildScoredAnswers reconstructs the scored answer array for a session's
// questions and computes the percentage score.
func BuildScoredAnswers(qs []quiz.Question) ([]assessment.AnswerItem, float64) {
	items := make([]assessment.AnswerItem, 0, len(qs))
	correct := 0
	for _, q := range qs {
		opts := parseOptions(q.Prompt)

		selected := NoAnswer
		if q.Answered {
			if text, ok := opts[strings.ToUpper(strings.TrimSpace(q.Answer))]; ok {
				selected = text
			}
		}

		correctText := q.CorrectAnswer
		if text, ok := opts[strings.ToUpper(strings.TrimSpace(q.CorrectAnswer))]; ok {
			correctText = text
		}

		isCorrect := q.Answered && strings.EqualFold(strings.TrimSpace(q.Answer), strings.TrimSpace(q.CorrectAnswer))
		if isCorrect {
			correct++
		}
		items = append(items, assessment.AnswerItem{
			QuestionNo: q.QuestionNo,
			Question:   q.Prompt,
			Selected:   selected,
			Correct:    correctText,
			IsCorrect:  isCorrect,
		})
	}

	score := 0.0
	if len(qs) > 0 {
		score = float64(correct) / float64(len(qs)) * 100
	}
	return items, score
}

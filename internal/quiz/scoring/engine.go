package scoring

import (
	"math"

	"github.com/gokatarajesh/notes-quiz/internal/question"
)

// Result sources.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
	SourceMerged = "local+remote"
)

// Detail carries the per-item evidence a semantic grader reports.
type Detail struct {
	Similarity *float64 `json:"similarity,omitempty"`
	Coverage   *float64 `json:"coverage,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
}

// QuestionResult is the outcome for one question. Given and Expected are option indices
// and are absent when the grader did not report them.
type QuestionResult struct {
	Index     int      `json:"index"`
	IsCorrect bool     `json:"is_correct"`
	Given     *int     `json:"given,omitempty"`
	Expected  *int     `json:"expected,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Detail    *Detail  `json:"detail,omitempty"`
}

// Result is the shared grading shape for both objective and subjective quizzes.
type Result struct {
	Score       int              `json:"score"`
	Correct     int              `json:"correct"`
	Total       int              `json:"total"`
	PerQuestion []QuestionResult `json:"per_question,omitempty"`
	Source      string           `json:"source"`
}

// Remote is a grading response as reported by the remote authority.
// Nil fields were not present in the response.
type Remote struct {
	Score       *float64
	Correct     *int
	Total       *int
	PerQuestion []QuestionResult
}

// GradeObjective computes the local result for a multiple-choice quiz.
// A question whose correct index is unknown (-1) is never counted as correct.
func GradeObjective(questions []question.Normalized, answers []int) Result {
	res := Result{
		Total:       len(questions),
		PerQuestion: make([]QuestionResult, 0, len(questions)),
		Source:      SourceLocal,
	}
	for i, q := range questions {
		expected := -1
		if q.HasAnswer() {
			expected = q.AnswerIndex
		}
		given := -1
		if i < len(answers) {
			given = answers[i]
		}
		ok := expected >= 0 && given == expected
		if ok {
			res.Correct++
		}
		res.PerQuestion = append(res.PerQuestion, QuestionResult{
			Index:     i,
			IsCorrect: ok,
			Given:     intPtr(given),
			Expected:  intPtr(expected),
		})
	}
	res.Score = Percent(res.Correct, res.Total)
	return res
}

// Percent returns round(100*correct/max(1,total)) clamped to [0, 100].
func Percent(correct, total int) int {
	if total < 1 {
		total = 1
	}
	return clampScore(100 * float64(correct) / float64(total))
}

// Merge overlays a remote response onto a local result field by field.
// Fields absent from the remote response keep their local value.
func Merge(local Result, remote Remote) Result {
	merged := local
	if remote.Score != nil {
		merged.Score = clampScore(*remote.Score)
	}
	if remote.Correct != nil {
		merged.Correct = *remote.Correct
	}
	if remote.Total != nil {
		merged.Total = *remote.Total
	}
	if remote.PerQuestion != nil {
		merged.PerQuestion = remote.PerQuestion
	}
	merged.Source = SourceMerged
	return fixCounts(merged)
}

// FromRemote adopts an authoritative remote response. questionCount is used as the
// total when the grader omits it.
func FromRemote(remote Remote, questionCount int) Result {
	res := Result{Total: questionCount, Source: SourceRemote}
	if remote.Total != nil {
		res.Total = *remote.Total
	}
	if remote.Correct != nil {
		res.Correct = *remote.Correct
	}
	if remote.Score != nil {
		res.Score = clampScore(*remote.Score)
	} else {
		res.Score = Percent(res.Correct, res.Total)
	}
	res.PerQuestion = remote.PerQuestion
	return fixCounts(res)
}

func fixCounts(r Result) Result {
	if r.Total < 0 {
		r.Total = 0
	}
	if r.Correct < 0 {
		r.Correct = 0
	}
	if r.Correct > r.Total {
		r.Correct = r.Total
	}
	return r
}

func clampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	rounded := int(math.Round(v))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

func intPtr(v int) *int {
	return &v
}

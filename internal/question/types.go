package question

import "strings"

// Type is the question type chosen at load time.
type Type string

// Question types.
const (
	TypeObjective  Type = "objective"
	TypeSubjective Type = "subjective"
)

// MaxOptions caps the number of options kept per question (letters A-D).
const MaxOptions = 4

// Valid reports whether t is a known question type.
func (t Type) Valid() bool {
	return t == TypeObjective || t == TypeSubjective
}

// ParseType maps user input onto a Type.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// RawQuestion is an untrusted record produced by the upstream generator.
// Keys and value shapes vary between generators.
type RawQuestion map[string]any

// Normalized is the canonical, renderable question.
// JSON names follow the payload shape stored in quiz history.
type Normalized struct {
	Text        string      `json:"q"`
	Options     []string    `json:"options"`
	AnswerIndex int         `json:"answer_index"`
	AnswerText  *string     `json:"answer_text"`
	Raw         RawQuestion `json:"raw"`
}

// HasAnswer reports whether a correct option is known.
func (q Normalized) HasAnswer() bool {
	return q.AnswerIndex >= 0 && q.AnswerIndex < len(q.Options)
}

// CorrectAnswer returns the text shown as the correct answer after grading.
// ok is false when the answer is not available.
func (q Normalized) CorrectAnswer() (string, bool) {
	if q.HasAnswer() {
		return q.Options[q.AnswerIndex], true
	}
	if q.AnswerText != nil && *q.AnswerText != "" {
		return *q.AnswerText, true
	}
	return "", false
}

// ExpectedText is the reference answer sent to a subjective grader:
// answerText, then the raw "answer" string, then empty.
func (q Normalized) ExpectedText() string {
	if q.AnswerText != nil && *q.AnswerText != "" {
		return *q.AnswerText
	}
	if s, ok := q.Raw["answer"].(string); ok {
		return s
	}
	return ""
}

// Letter returns the presentation letter of option i (0 => "A").
func Letter(i int) string {
	if i < 0 || i >= 26 {
		return ""
	}
	return string(rune('A' + i))
}

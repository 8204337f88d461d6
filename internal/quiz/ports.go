package quiz

import (
	"context"

	"github.com/gokatarajesh/notes-quiz/internal/history"
	"github.com/gokatarajesh/notes-quiz/internal/question"
	"github.com/gokatarajesh/notes-quiz/internal/quiz/scoring"
)

// GenerateRequest asks the upstream generator for raw questions.
type GenerateRequest struct {
	SourceText string
	Type       question.Type
	Count      int
}

// Generator produces untrusted question records from source text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]question.RawQuestion, error)
}

// ObjectiveGradeRequest carries the normalized quiz and chosen option indices.
type ObjectiveGradeRequest struct {
	Questions []question.Normalized
	Answers   []int
}

// Attachment is an image submitted alongside subjective answers.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// SubjectiveGradeRequest carries the expected answers and free-text responses.
type SubjectiveGradeRequest struct {
	Questions   []question.Normalized
	Answers     []string
	Attachments []Attachment
}

// Grader is the remote grading authority.
type Grader interface {
	GradeObjective(ctx context.Context, req ObjectiveGradeRequest) (scoring.Remote, error)
	GradeSubjective(ctx context.Context, req SubjectiveGradeRequest) (scoring.Remote, error)
}

// Document is a PDF whose text becomes the quiz source.
type Document struct {
	Name string
	Data []byte
	OCR  bool
}

// SourceExtractor turns a PDF into plain text.
type SourceExtractor interface {
	ExtractText(ctx context.Context, doc Document) (string, error)
}

// HistoryStore is the quiz history dependency.
type HistoryStore interface {
	Append(ctx context.Context, feature history.Feature, payload any) (history.Entry, error)
	Get(feature history.Feature, id int64) (history.Entry, bool)
}

// Event kinds published to a Notifier.
const (
	EventSessionUpdate = "session_update"
	EventResultUpdated = "result_updated"
)

// Notifier receives session events, keyed by session id.
type Notifier interface {
	Publish(sessionID, kind string, payload any)
}

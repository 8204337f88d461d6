package quiz

import (
	"strconv"
	"strings"

	"github.com/gokatarajesh/notes-quiz/internal/apperrors"
	"github.com/gokatarajesh/notes-quiz/internal/question"
	"github.com/gokatarajesh/notes-quiz/internal/validation"
)

// Count bounds accepted by Load.
const (
	MinCount = 1
	MaxCount = 20
)

const (
	sourceTextTag   = "meaningful=10"
	countMessage    = "Please enter # Questions as an integer between 1 and 20."
	typeMessage     = "Question type must be objective or subjective."
	sourceMessage   = "No notes available to generate quiz. Paste notes or upload a PDF."
	documentMessage = "Please choose a PDF for quiz."
)

// LoadRequest starts a new quiz. Document, when set, replaces SourceText
// with the text extracted from the PDF.
type LoadRequest struct {
	Type       question.Type `validate:"oneof=objective subjective"`
	Count      int           `validate:"min=1,max=20"`
	SourceText string
	Document   *Document
}

var loadMessages = map[string]string{
	"Type":  typeMessage,
	"Count": countMessage,
}

func (r LoadRequest) validate(v *validation.Validator) error {
	if err := v.Struct(r, loadMessages); err != nil {
		return err
	}
	if r.Document != nil {
		if len(r.Document.Data) == 0 {
			return apperrors.NewValidation("file", documentMessage)
		}
		return nil
	}
	return validateSourceText(v, r.SourceText)
}

func validateSourceText(v *validation.Validator, text string) error {
	return v.Var(text, sourceTextTag, "notes", sourceMessage)
}

// ClampCount bounds a user-entered count to the accepted range.
func ClampCount(n int) int {
	if n < MinCount {
		return MinCount
	}
	if n > MaxCount {
		return MaxCount
	}
	return n
}

// ParseCount reads a user-entered count the way the count input box does:
// blank or non-numeric input is rejected, numbers are clamped into range.
func ParseCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, apperrors.NewValidation("count", countMessage)
	}
	return ClampCount(n), nil
}

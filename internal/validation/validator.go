package validation

import (
	"errors"
	"strconv"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/gokatarajesh/notes-quiz/internal/apperrors"
)

// Validator wraps go-playground validator with the rules used by request types.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the custom "meaningful" rule registered.
// meaningful=N requires at least N non-whitespace characters.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("meaningful", validateMeaningful)
	return &Validator{validate: v}
}

// Struct validates s and translates the first failure with messages, keyed by
// struct field name.
func (v *Validator) Struct(s any, messages map[string]string) error {
	return translate(v.validate.Struct(s), messages)
}

// Var validates a single value against tag. field names the value in the
// resulting ValidationError.
func (v *Validator) Var(value any, tag, field, message string) error {
	if err := v.validate.Var(value, tag); err != nil {
		return apperrors.NewValidation(field, message)
	}
	return nil
}

// MeaningfulLength counts the non-whitespace runes in s.
func MeaningfulLength(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func validateMeaningful(fl validator.FieldLevel) bool {
	want, err := strconv.Atoi(fl.Param())
	if err != nil || want < 1 {
		want = 1
	}
	return MeaningfulLength(fl.Field().String()) >= want
}

func translate(err error, messages map[string]string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	first := verrs[0]
	msg, ok := messages[first.StructField()]
	if !ok {
		msg = first.Error()
	}
	return apperrors.NewValidation(first.StructField(), msg)
}

package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/notes-quiz/internal/apperrors"
)

type sample struct {
	Count int    `validate:"min=1,max=20"`
	Notes string `validate:"meaningful=10"`
}

func TestStructTranslatesFirstFailure(t *testing.T) {
	v := New()
	messages := map[string]string{"Count": "bad count"}

	err := v.Struct(sample{Count: 0, Notes: "0123456789"}, messages)
	var ve *apperrors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "Count", ve.Field)
	assert.Equal(t, "bad count", ve.Message)

	assert.NoError(t, v.Struct(sample{Count: 20, Notes: "0123456789"}, messages))
}

func TestMeaningfulIgnoresWhitespace(t *testing.T) {
	v := New()
	assert.Error(t, v.Var("  a b c d e f g h i  \n\t", "meaningful=10", "notes", "too short"))
	assert.NoError(t, v.Var(" a b c d e f g h i j ", "meaningful=10", "notes", "too short"))
	assert.Equal(t, 3, MeaningfulLength(" é\tb\nc "))
}

func TestUnknownFieldFallsBackToValidatorMessage(t *testing.T) {
	err := New().Struct(sample{Count: 1}, nil)
	require.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "Notes")
}

package quiz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/notes-quiz/internal/apperrors"
	"github.com/gokatarajesh/notes-quiz/internal/history"
	"github.com/gokatarajesh/notes-quiz/internal/metrics"
	"github.com/gokatarajesh/notes-quiz/internal/question"
	"github.com/gokatarajesh/notes-quiz/internal/quiz/scoring"
)

const sampleNotes = "Photosynthesis converts light into chemical energy."

type stubGenerator struct {
	questions []question.RawQuestion
	err       error
	calls     []GenerateRequest
}

func (g *stubGenerator) Generate(_ context.Context, req GenerateRequest) ([]question.RawQuestion, error) {
	g.calls = append(g.calls, req)
	return g.questions, g.err
}

// gatedGenerator blocks each call until the test releases it.
type gatedGenerator struct {
	mu      sync.Mutex
	started chan string
	release map[string]chan []question.RawQuestion
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{
		started: make(chan string, 4),
		release: map[string]chan []question.RawQuestion{},
	}
}

func (g *gatedGenerator) gate(source string) chan []question.RawQuestion {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.release[source]
	if !ok {
		ch = make(chan []question.RawQuestion, 1)
		g.release[source] = ch
	}
	return ch
}

func (g *gatedGenerator) Generate(ctx context.Context, req GenerateRequest) ([]question.RawQuestion, error) {
	ch := g.gate(req.SourceText)
	g.started <- req.SourceText
	select {
	case qs := <-ch:
		return qs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type mockGrader struct {
	mock.Mock
}

func (m *mockGrader) GradeObjective(ctx context.Context, req ObjectiveGradeRequest) (scoring.Remote, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(scoring.Remote), args.Error(1)
}

func (m *mockGrader) GradeSubjective(ctx context.Context, req SubjectiveGradeRequest) (scoring.Remote, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(scoring.Remote), args.Error(1)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractText(ctx context.Context, doc Document) (string, error) {
	args := m.Called(ctx, doc)
	return args.String(0), args.Error(1)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Publish(_ string, kind string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, kind)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func mcqRaw(text string, answer int) question.RawQuestion {
	return question.RawQuestion{
		"question":     text,
		"options":      []any{"a", "b", "c", "d"},
		"answer_index": float64(answer),
	}
}

func threeQuestions() []question.RawQuestion {
	return []question.RawQuestion{
		mcqRaw("one", 1),
		{"question": "two", "options": []any{"a", "b", "c", "d"}},
		mcqRaw("three", 2),
	}
}

func newHistory() *history.Store {
	return history.NewStore(nil, history.Options{}, zerolog.Nop(), nil)
}

func objectiveLoad() LoadRequest {
	return LoadRequest{Type: question.TypeObjective, Count: 3, SourceText: sampleNotes}
}

func TestLoadValidationLeavesStateUntouched(t *testing.T) {
	gen := &stubGenerator{questions: threeQuestions()}
	c := NewController("s1", Dependencies{Generator: gen}, zerolog.Nop())

	cases := []struct {
		name  string
		req   LoadRequest
		field string
		msg   string
	}{
		{"count zero", LoadRequest{Type: question.TypeObjective, Count: 0, SourceText: sampleNotes}, "Count", countMessage},
		{"count too big", LoadRequest{Type: question.TypeObjective, Count: 21, SourceText: sampleNotes}, "Count", countMessage},
		{"short notes", LoadRequest{Type: question.TypeObjective, Count: 5, SourceText: " a b c d e f g h i "}, "notes", sourceMessage},
		{"bad type", LoadRequest{Type: "essay", Count: 5, SourceText: sampleNotes}, "Type", typeMessage},
		{"empty pdf", LoadRequest{Type: question.TypeObjective, Count: 5, Document: &Document{Name: "a.pdf"}}, "file", documentMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Load(context.Background(), tc.req)
			var ve *apperrors.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)
			assert.Equal(t, tc.msg, ve.Message)
			assert.Equal(t, PhaseEmpty, c.View().Phase)
			assert.Equal(t, uint64(0), c.View().Generation)
		})
	}
	assert.Empty(t, gen.calls)
}

func TestLoadNormalizesAndInitializesAnswers(t *testing.T) {
	gen := &stubGenerator{questions: append(threeQuestions(), question.RawQuestion{})}
	store := newHistory()
	notifier := &recordingNotifier{}
	c := NewController("s1", Dependencies{Generator: gen, History: store, Notifier: notifier}, zerolog.Nop())

	v, err := c.Load(context.Background(), LoadRequest{Type: question.TypeObjective, Count: 4, SourceText: "  " + sampleNotes + "  "})
	require.NoError(t, err)

	assert.Equal(t, PhaseReady, v.Phase)
	require.Len(t, v.Questions, 4)
	for _, q := range v.Questions {
		require.NotNil(t, q.Choice)
		assert.Equal(t, -1, *q.Choice)
		assert.Nil(t, q.Answer)
		assert.Empty(t, q.CorrectAnswer)
	}
	assert.Equal(t, "", v.Questions[3].Text)
	assert.Equal(t, []string{}, v.Questions[3].Options)
	require.Len(t, gen.calls, 1)
	assert.Equal(t, sampleNotes, gen.calls[0].SourceText)
	assert.Equal(t, 4, gen.calls[0].Count)

	entries := store.List(history.FeatureQuiz)
	require.Len(t, entries, 1)
	assert.Equal(t, entries[0].ID, v.HistoryID)
	var payload historyPayload
	require.NoError(t, entries[0].Decode(&payload))
	assert.Equal(t, question.TypeObjective, payload.QType)
	assert.Equal(t, 4, payload.Count)
	assert.Equal(t, sampleNotes, payload.NotesPreview)

	assert.Equal(t, []string{EventSessionUpdate, EventSessionUpdate}, notifier.kinds())
}

func TestLoadFailureReturnsToEmpty(t *testing.T) {
	upstream := &apperrors.UpstreamError{Service: "generate", Status: 500, Message: "model offline"}
	gen := &stubGenerator{questions: threeQuestions()}
	c := NewController("s1", Dependencies{Generator: gen}, zerolog.Nop())
	_, err := c.Load(context.Background(), objectiveLoad())
	require.NoError(t, err)

	gen.err = upstream
	_, err = c.Load(context.Background(), objectiveLoad())
	require.ErrorIs(t, err, upstream)
	assert.Equal(t, "model offline", apperrors.UserMessage(err))

	v := c.View()
	assert.Equal(t, PhaseEmpty, v.Phase)
	assert.Empty(t, v.Questions)
	assert.Nil(t, v.Result)
}

func TestLoadFromDocument(t *testing.T) {
	gen := &stubGenerator{questions: threeQuestions()}
	extractor := new(mockExtractor)
	doc := Document{Name: "bio.pdf", Data: []byte("%PDF-1.4"), OCR: true}
	extractor.On("ExtractText", mock.Anything, doc).Return("# Notes\n"+sampleNotes, nil).Once()

	c := NewController("s1", Dependencies{Generator: gen, Extractor: extractor}, zerolog.Nop())
	v, err := c.Load(context.Background(), LoadRequest{Type: question.TypeObjective, Count: 3, SourceText: "ignored", Document: &doc})
	require.NoError(t, err)
	assert.Equal(t, PhaseReady, v.Phase)
	assert.Equal(t, "# Notes\n"+sampleNotes, gen.calls[0].SourceText)
	extractor.AssertExpectations(t)
}

func TestLoadFromDocumentWithTooLittleText(t *testing.T) {
	gen := &stubGenerator{questions: threeQuestions()}
	extractor := new(mockExtractor)
	extractor.On("ExtractText", mock.Anything, mock.Anything).Return("  tiny \n", nil)

	c := NewController("s1", Dependencies{Generator: gen, Extractor: extractor}, zerolog.Nop())
	_, err := c.Load(context.Background(), LoadRequest{Type: question.TypeObjective, Count: 3, Document: &Document{Data: []byte("x")}})
	require.True(t, apperrors.IsValidation(err))
	assert.Equal(t, PhaseEmpty, c.View().Phase)
	assert.Empty(t, gen.calls)
}

func TestStaleLoadIsDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	gen := newGatedGenerator()
	c := NewController("s1", Dependencies{Generator: gen, Metrics: m}, zerolog.Nop())

	first := LoadRequest{Type: question.TypeObjective, Count: 1, SourceText: "first batch of notes"}
	second := LoadRequest{Type: question.TypeSubjective, Count: 1, SourceText: "second batch of notes"}

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = c.Load(context.Background(), first)
	}()
	require.Equal(t, first.SourceText, <-gen.started)

	var secondView View
	var secondErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		secondView, secondErr = c.Load(context.Background(), second)
	}()
	require.Equal(t, second.SourceText, <-gen.started)

	// the newer request resolves first, the older one afterwards
	gen.gate(second.SourceText) <- []question.RawQuestion{{"question": "explain"}}
	require.Eventually(t, func() bool { return c.View().Phase == PhaseReady }, time.Second, 5*time.Millisecond)
	gen.gate(first.SourceText) <- threeQuestions()
	wg.Wait()

	require.NoError(t, secondErr)
	assert.ErrorIs(t, firstErr, apperrors.ErrStaleResponse)
	assert.True(t, IsStale(firstErr))

	v := c.View()
	assert.Equal(t, secondView.Generation, v.Generation)
	assert.Equal(t, question.TypeSubjective, v.Type)
	require.Len(t, v.Questions, 1)
	assert.Equal(t, "explain", v.Questions[0].Text)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleResponses.WithLabelValues("load")))
}

func TestStaleLoadIsDroppedWhenOlderResolvesFirst(t *testing.T) {
	gen := newGatedGenerator()
	c := NewController("s1", Dependencies{Generator: gen}, zerolog.Nop())

	first := LoadRequest{Type: question.TypeObjective, Count: 3, SourceText: "first batch of notes"}
	second := LoadRequest{Type: question.TypeObjective, Count: 1, SourceText: "second batch of notes"}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, req := range []LoadRequest{first, second} {
		wg.Add(1)
		go func(i int, req LoadRequest) {
			defer wg.Done()
			_, errs[i] = c.Load(context.Background(), req)
		}(i, req)
		require.Equal(t, req.SourceText, <-gen.started)
	}

	gen.gate(first.SourceText) <- threeQuestions()
	gen.gate(second.SourceText) <- []question.RawQuestion{mcqRaw("only", 0)}
	wg.Wait()

	assert.ErrorIs(t, errs[0], apperrors.ErrStaleResponse)
	assert.NoError(t, errs[1])
	v := c.View()
	require.Len(t, v.Questions, 1)
	assert.Equal(t, "only", v.Questions[0].Text)
}

func loadedController(t *testing.T, deps Dependencies, raws []question.RawQuestion, qtype question.Type) *Controller {
	t.Helper()
	deps.Generator = &stubGenerator{questions: raws}
	c := NewController("s1", deps, zerolog.Nop())
	_, err := c.Load(context.Background(), LoadRequest{Type: qtype, Count: len(raws) + 1, SourceText: sampleNotes})
	require.NoError(t, err)
	return c
}

func TestAnswerGuards(t *testing.T) {
	c := NewController("s1", Dependencies{}, zerolog.Nop())
	_, err := c.AnswerChoice(0, 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidPhase)

	c = loadedController(t, Dependencies{}, threeQuestions(), question.TypeObjective)
	_, err = c.AnswerChoice(3, 1)
	assert.ErrorIs(t, err, apperrors.ErrOutOfRange)
	_, err = c.AnswerChoice(-1, 1)
	assert.ErrorIs(t, err, apperrors.ErrOutOfRange)
	_, err = c.AnswerChoice(0, 4)
	assert.ErrorIs(t, err, apperrors.ErrOutOfRange)
	_, err = c.AnswerText(0, "words")
	assert.True(t, apperrors.IsValidation(err))

	before := c.View()
	v, err := c.AnswerChoice(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, *v.Questions[1].Choice)
	assert.Equal(t, *before.Questions[0].Choice, *v.Questions[0].Choice)
	assert.Equal(t, *before.Questions[2].Choice, *v.Questions[2].Choice)
	assert.Equal(t, before.Generation, v.Generation)

	v, err = c.AnswerChoice(1, -1)
	require.NoError(t, err)
	assert.Equal(t, -1, *v.Questions[1].Choice)
}

func TestSubmitObjectiveGradesLocallyThenMergesRemote(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	grader := new(mockGrader)
	notifier := &recordingNotifier{}
	remoteScore := 70.0
	release := make(chan struct{})
	grader.On("GradeObjective", mock.Anything, mock.MatchedBy(func(req ObjectiveGradeRequest) bool {
		return len(req.Questions) == 3 && assert.ObjectsAreEqual([]int{1, 0, 2}, req.Answers)
	})).Run(func(mock.Arguments) { <-release }).Return(scoring.Remote{Score: &remoteScore}, nil).Once()

	c := loadedController(t, Dependencies{Grader: grader, Notifier: notifier, Metrics: m}, threeQuestions(), question.TypeObjective)
	for i, choice := range []int{1, 0, 2} {
		_, err := c.AnswerChoice(i, choice)
		require.NoError(t, err)
	}

	v, err := c.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, PhaseGraded, v.Phase)
	require.NotNil(t, v.Result)
	assert.Equal(t, 67, v.Result.Score)
	assert.Equal(t, 2, v.Result.Correct)
	assert.Equal(t, 3, v.Result.Total)
	assert.False(t, v.Result.PerQuestion[1].IsCorrect)
	assert.Equal(t, scoring.SourceLocal, v.Result.Source)
	assert.Equal(t, "b", v.Questions[0].CorrectAnswer)
	assert.False(t, *v.Questions[1].AnswerAvailable)

	close(release)
	c.Wait()

	final := c.View()
	assert.Equal(t, 70, final.Result.Score)
	assert.Equal(t, 2, final.Result.Correct)
	assert.Equal(t, scoring.SourceMerged, final.Result.Source)
	assert.Contains(t, notifier.kinds(), EventResultUpdated)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues("merged")))
	grader.AssertExpectations(t)
}

func TestSubmitObjectiveKeepsLocalResultWhenRemoteFails(t *testing.T) {
	grader := new(mockGrader)
	grader.On("GradeObjective", mock.Anything, mock.Anything).
		Return(scoring.Remote{}, &apperrors.UpstreamError{Service: "grade", Message: "Grading failed"})

	c := loadedController(t, Dependencies{Grader: grader}, threeQuestions(), question.TypeObjective)
	v, err := c.Submit(context.Background(), nil)
	require.NoError(t, err)
	c.Wait()

	assert.Equal(t, *v.Result, *c.View().Result)
	assert.Equal(t, PhaseGraded, c.View().Phase)
}

func TestSubmitObjectiveDropsRemoteAfterReset(t *testing.T) {
	grader := new(mockGrader)
	release := make(chan struct{})
	score := 100.0
	grader.On("GradeObjective", mock.Anything, mock.Anything).Run(func(mock.Arguments) { <-release }).Return(scoring.Remote{Score: &score}, nil)

	c := loadedController(t, Dependencies{Grader: grader}, threeQuestions(), question.TypeObjective)
	_, err := c.Submit(context.Background(), nil)
	require.NoError(t, err)

	c.Reset()
	close(release)
	c.Wait()

	v := c.View()
	assert.Equal(t, PhaseEmpty, v.Phase)
	assert.Nil(t, v.Result)
}

func TestSubmitEmptyObjectiveSession(t *testing.T) {
	grader := new(mockGrader)
	c := loadedController(t, Dependencies{Grader: grader}, nil, question.TypeObjective)

	v, err := c.Submit(context.Background(), nil)
	require.NoError(t, err)
	c.Wait()
	assert.Equal(t, 0, v.Result.Score)
	assert.Equal(t, 0, v.Result.Correct)
	assert.Equal(t, 0, v.Result.Total)
	grader.AssertNotCalled(t, "GradeObjective", mock.Anything, mock.Anything)
}

func TestSubmitTwiceIsRejected(t *testing.T) {
	c := loadedController(t, Dependencies{}, threeQuestions(), question.TypeObjective)
	_, err := c.Submit(context.Background(), nil)
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidPhase)
}

func subjectiveQuestions() []question.RawQuestion {
	return []question.RawQuestion{
		{"question": "Define osmosis", "answer": "movement of water across a membrane"},
		{"prompt": "Define diffusion"},
	}
}

func TestSubmitSubjectiveAdoptsRemoteResult(t *testing.T) {
	grader := new(mockGrader)
	score := 55.0
	correct := 1
	sim := 0.8
	per := []scoring.QuestionResult{{Index: 0, IsCorrect: true, Detail: &scoring.Detail{Similarity: &sim}}}
	attachments := []Attachment{{Name: "page.png", ContentType: "image/png", Data: []byte{1}}}
	grader.On("GradeSubjective", mock.Anything, mock.MatchedBy(func(req SubjectiveGradeRequest) bool {
		return assert.ObjectsAreEqual([]string{"water moves", ""}, req.Answers) &&
			req.Questions[0].ExpectedText() == "movement of water across a membrane" &&
			len(req.Attachments) == 1
	})).Return(scoring.Remote{Score: &score, Correct: &correct, PerQuestion: per}, nil).Once()

	c := loadedController(t, Dependencies{Grader: grader}, subjectiveQuestions(), question.TypeSubjective)
	_, err := c.AnswerChoice(0, 0)
	assert.True(t, apperrors.IsValidation(err))
	_, err = c.AnswerText(0, "water moves")
	require.NoError(t, err)

	v, err := c.Submit(context.Background(), attachments)
	require.NoError(t, err)
	assert.Equal(t, PhaseGraded, v.Phase)
	assert.Equal(t, 55, v.Result.Score)
	assert.Equal(t, 1, v.Result.Correct)
	assert.Equal(t, 2, v.Result.Total)
	assert.Equal(t, scoring.SourceRemote, v.Result.Source)
	assert.Equal(t, per, v.Result.PerQuestion)
	grader.AssertExpectations(t)
}

func TestSubmitSubjectiveFailureReturnsToReady(t *testing.T) {
	grader := new(mockGrader)
	upstream := &apperrors.UpstreamError{Service: "grade", Status: 502, Message: "Grading failed"}
	grader.On("GradeSubjective", mock.Anything, mock.Anything).Return(scoring.Remote{}, upstream).Once()

	c := loadedController(t, Dependencies{Grader: grader}, subjectiveQuestions(), question.TypeSubjective)
	_, err := c.AnswerText(1, "spreading out")
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), nil)
	require.ErrorIs(t, err, upstream)

	v := c.View()
	assert.Equal(t, PhaseReady, v.Phase)
	assert.Nil(t, v.Result)
	assert.Equal(t, "spreading out", *v.Questions[1].Answer)
}

func TestSubmitSubjectiveDroppedWhenReloaded(t *testing.T) {
	grader := new(mockGrader)
	release := make(chan struct{})
	score := 90.0
	grader.On("GradeSubjective", mock.Anything, mock.Anything).Run(func(mock.Arguments) { <-release }).Return(scoring.Remote{Score: &score}, nil)

	c := loadedController(t, Dependencies{Grader: grader}, subjectiveQuestions(), question.TypeSubjective)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return c.View().Phase == PhaseGrading }, time.Second, 5*time.Millisecond)

	c.Reset()
	close(release)
	assert.ErrorIs(t, <-done, apperrors.ErrStaleResponse)
	assert.Equal(t, PhaseEmpty, c.View().Phase)
}

func TestRestoreFromHistory(t *testing.T) {
	store := newHistory()
	c := loadedController(t, Dependencies{History: store}, subjectiveQuestions(), question.TypeSubjective)
	loaded := c.View()
	_, err := c.AnswerText(0, "draft")
	require.NoError(t, err)

	other := NewController("s2", Dependencies{History: store, Generator: &stubGenerator{questions: threeQuestions()}}, zerolog.Nop())
	_, err = other.Load(context.Background(), objectiveLoad())
	require.NoError(t, err)
	_, err = other.Submit(context.Background(), nil)
	require.NoError(t, err)

	v, err := other.Restore(loaded.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, PhaseReady, v.Phase)
	assert.Equal(t, question.TypeSubjective, v.Type)
	assert.Nil(t, v.Result)
	assert.Equal(t, loaded.HistoryID, v.HistoryID)
	require.Len(t, v.Questions, 2)
	assert.Equal(t, "Define osmosis", v.Questions[0].Text)
	assert.Equal(t, "", *v.Questions[0].Answer)

	_, err = other.Restore(42)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRederiveBoundsStoredQuestions(t *testing.T) {
	q := rederive(question.Normalized{Text: "x", Options: []string{"a", "b", "c", "d", "e"}, AnswerIndex: 4})
	assert.Len(t, q.Options, 4)
	assert.Equal(t, -1, q.AnswerIndex)

	q = rederive(question.Normalized{Raw: question.RawQuestion{"q": "y", "options": "a\nb", "answer": "B"}})
	assert.Equal(t, "y", q.Text)
	assert.Equal(t, 1, q.AnswerIndex)
}

func TestPreviewCountsRunes(t *testing.T) {
	assert.Equal(t, "héllo", preview("héllo", 10))
	assert.Equal(t, "hé", preview("héllo", 2))
}

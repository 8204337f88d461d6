package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/notes-quiz/internal/apperrors"
	"github.com/gokatarajesh/notes-quiz/internal/history"
	"github.com/gokatarajesh/notes-quiz/internal/metrics"
	"github.com/gokatarajesh/notes-quiz/internal/question"
	"github.com/gokatarajesh/notes-quiz/internal/quiz/scoring"
	"github.com/gokatarajesh/notes-quiz/internal/validation"
)

const notesPreviewLen = 250

// Dependencies are the collaborators a Controller talks to.
type Dependencies struct {
	Generator Generator
	Grader    Grader
	Extractor SourceExtractor
	History   HistoryStore
	Notifier  Notifier
	Validator *validation.Validator
	Metrics   *metrics.Metrics
}

// Controller owns one user's quiz session. Every load, restore and reset
// starts a new generation; responses tagged with an older generation are dropped.
type Controller struct {
	id     string
	deps   Dependencies
	logger zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	current session

	bg sync.WaitGroup
}

// NewController builds a controller in the empty phase.
func NewController(id string, deps Dependencies, logger zerolog.Logger) *Controller {
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}
	return &Controller{
		id:      id,
		deps:    deps,
		logger:  logger.With().Str("component", "quiz").Str("session_id", id).Logger(),
		current: session{phase: PhaseEmpty},
	}
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.id
}

// View returns a snapshot of the current session.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.view(c.id, c.gen)
}

// Load validates req, asks the generator for questions and moves the session
// to ready. A load supersedes whatever the session was doing.
func (c *Controller) Load(ctx context.Context, req LoadRequest) (View, error) {
	if err := req.validate(c.deps.Validator); err != nil {
		return View{}, err
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.current = session{phase: PhaseLoading, qtype: req.Type}
	loading := c.current.view(c.id, gen)
	c.mu.Unlock()
	c.publish(EventSessionUpdate, loading)

	source := strings.TrimSpace(req.SourceText)
	if req.Document != nil {
		text, err := c.extract(ctx, *req.Document)
		if err != nil {
			return c.failLoad(gen, req.Type, err)
		}
		if err := validateSourceText(c.deps.Validator, text); err != nil {
			return c.failLoad(gen, req.Type, err)
		}
		source = strings.TrimSpace(text)
	}

	raws, err := c.generate(ctx, GenerateRequest{SourceText: source, Type: req.Type, Count: req.Count})
	if err != nil {
		return c.failLoad(gen, req.Type, err)
	}
	questions := question.NormalizeAll(raws)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.dropStale("load", gen)
		return View{}, apperrors.ErrStaleResponse
	}
	c.current = newReadySession(req.Type, questions)
	v := c.current.view(c.id, gen)
	c.mu.Unlock()

	c.deps.Metrics.QuizLoad(string(req.Type), "ok")
	c.logger.Info().Str("qtype", string(req.Type)).Int("requested", req.Count).Int("questions", len(questions)).Msg("quiz loaded")

	if id, ok := c.recordHistory(ctx, gen, req.Type, source, questions); ok {
		v.HistoryID = id
	}
	c.publish(EventSessionUpdate, v)
	return v, nil
}

func (c *Controller) extract(ctx context.Context, doc Document) (string, error) {
	if c.deps.Extractor == nil {
		return "", &apperrors.UpstreamError{Service: "extract", Message: "Failed to read PDF"}
	}
	return c.deps.Extractor.ExtractText(ctx, doc)
}

func (c *Controller) generate(ctx context.Context, req GenerateRequest) ([]question.RawQuestion, error) {
	if c.deps.Generator == nil {
		return nil, &apperrors.UpstreamError{Service: "generate", Message: "Quiz generation failed"}
	}
	return c.deps.Generator.Generate(ctx, req)
}

func (c *Controller) failLoad(gen uint64, qtype question.Type, cause error) (View, error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.dropStale("load", gen)
		return View{}, apperrors.ErrStaleResponse
	}
	c.current = session{phase: PhaseEmpty}
	v := c.current.view(c.id, c.gen)
	c.mu.Unlock()

	c.deps.Metrics.QuizLoad(string(qtype), "error")
	c.logger.Warn().Err(cause).Str("qtype", string(qtype)).Msg("quiz load failed")
	c.publish(EventSessionUpdate, v)
	return View{}, cause
}

type historyPayload struct {
	QType        question.Type         `json:"qtype"`
	Count        int                   `json:"count"`
	NotesPreview string                `json:"notes_preview"`
	Quiz         []question.Normalized `json:"quiz"`
}

// recordHistory appends the generated quiz and tags the session with the
// entry id if the session has not moved on.
func (c *Controller) recordHistory(ctx context.Context, gen uint64, qtype question.Type, source string, questions []question.Normalized) (int64, bool) {
	if c.deps.History == nil {
		return 0, false
	}
	entry, err := c.deps.History.Append(ctx, history.FeatureQuiz, historyPayload{
		QType:        qtype,
		Count:        len(questions),
		NotesPreview: preview(source, notesPreviewLen),
		Quiz:         questions,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("quiz history append failed")
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return 0, false
	}
	c.current.historyID = entry.ID
	return entry.ID, true
}

// AnswerChoice records an option index for an objective question. -1 clears it.
func (c *Controller) AnswerChoice(index, choice int) (View, error) {
	c.mu.Lock()
	if err := c.checkAnswer(index, question.TypeObjective); err != nil {
		c.mu.Unlock()
		return View{}, err
	}
	if choice < -1 || choice >= len(c.current.questions[index].Options) {
		c.mu.Unlock()
		return View{}, fmt.Errorf("choice %d for question %d: %w", choice, index, apperrors.ErrOutOfRange)
	}
	c.current.choices[index] = choice
	v := c.current.view(c.id, c.gen)
	c.mu.Unlock()

	c.publish(EventSessionUpdate, v)
	return v, nil
}

// AnswerText records a free-text answer for a subjective question.
func (c *Controller) AnswerText(index int, text string) (View, error) {
	c.mu.Lock()
	if err := c.checkAnswer(index, question.TypeSubjective); err != nil {
		c.mu.Unlock()
		return View{}, err
	}
	c.current.texts[index] = text
	v := c.current.view(c.id, c.gen)
	c.mu.Unlock()

	c.publish(EventSessionUpdate, v)
	return v, nil
}

// checkAnswer must be called with c.mu held.
func (c *Controller) checkAnswer(index int, want question.Type) error {
	if c.current.phase != PhaseReady {
		return fmt.Errorf("answer in %s phase: %w", c.current.phase, apperrors.ErrInvalidPhase)
	}
	if c.current.qtype != want {
		return apperrors.NewValidation("answer", fmt.Sprintf("This is a %s quiz.", c.current.qtype))
	}
	if index < 0 || index >= len(c.current.questions) {
		return fmt.Errorf("question %d of %d: %w", index, len(c.current.questions), apperrors.ErrOutOfRange)
	}
	return nil
}

// Submit grades the session. Objective quizzes are graded locally and
// returned immediately; the remote result is merged in the background.
// Subjective quizzes block on the remote grader.
func (c *Controller) Submit(ctx context.Context, attachments []Attachment) (View, error) {
	c.mu.Lock()
	if c.current.phase != PhaseReady {
		phase := c.current.phase
		c.mu.Unlock()
		return View{}, fmt.Errorf("submit in %s phase: %w", phase, apperrors.ErrInvalidPhase)
	}
	if c.current.qtype == question.TypeSubjective {
		return c.submitSubjective(ctx, attachments)
	}
	return c.submitObjective(ctx)
}

// submitObjective is entered with c.mu held.
func (c *Controller) submitObjective(ctx context.Context) (View, error) {
	gen := c.gen
	questions := c.current.questions
	answers := append([]int(nil), c.current.choices...)

	res := scoring.GradeObjective(questions, answers)
	c.current.result = &res
	c.current.phase = PhaseGraded
	v := c.current.view(c.id, gen)
	c.mu.Unlock()

	c.deps.Metrics.Grading(string(question.TypeObjective), "local")
	c.logger.Info().Int("score", res.Score).Int("correct", res.Correct).Int("total", res.Total).Msg("quiz graded locally")
	c.publish(EventSessionUpdate, v)

	if c.deps.Grader != nil && len(questions) > 0 {
		c.bg.Add(1)
		go c.reconcile(context.WithoutCancel(ctx), gen, ObjectiveGradeRequest{Questions: questions, Answers: answers})
	}
	return v, nil
}

func (c *Controller) reconcile(ctx context.Context, gen uint64, req ObjectiveGradeRequest) {
	defer c.bg.Done()

	remote, err := c.deps.Grader.GradeObjective(ctx, req)
	if err != nil {
		c.deps.Metrics.Reconciliation("failed")
		c.logger.Warn().Err(err).Uint64("generation", gen).Msg("remote grading failed; keeping local result")
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.current.phase != PhaseGraded || c.current.result == nil {
		c.mu.Unlock()
		c.dropStale("reconcile", gen)
		return
	}
	merged := scoring.Merge(*c.current.result, remote)
	c.current.result = &merged
	v := c.current.view(c.id, c.gen)
	c.mu.Unlock()

	c.deps.Metrics.Reconciliation("merged")
	c.logger.Debug().Int("score", merged.Score).Msg("remote grading merged")
	c.publish(EventResultUpdated, v)
}

// submitSubjective is entered with c.mu held.
func (c *Controller) submitSubjective(ctx context.Context, attachments []Attachment) (View, error) {
	if len(c.current.questions) == 0 {
		c.mu.Unlock()
		return View{}, apperrors.NewValidation("quiz", "No quiz to grade.")
	}
	gen := c.gen
	req := SubjectiveGradeRequest{
		Questions:   c.current.questions,
		Answers:     append([]string(nil), c.current.texts...),
		Attachments: attachments,
	}
	c.current.phase = PhaseGrading
	grading := c.current.view(c.id, gen)
	c.mu.Unlock()
	c.publish(EventSessionUpdate, grading)

	var (
		remote scoring.Remote
		err    error
	)
	if c.deps.Grader == nil {
		err = &apperrors.UpstreamError{Service: "grade", Message: "Grading failed"}
	} else {
		remote, err = c.deps.Grader.GradeSubjective(ctx, req)
	}

	c.mu.Lock()
	if c.gen != gen || c.current.phase != PhaseGrading {
		c.mu.Unlock()
		c.dropStale("grade", gen)
		return View{}, apperrors.ErrStaleResponse
	}
	if err != nil {
		c.current.phase = PhaseReady
		v := c.current.view(c.id, gen)
		c.mu.Unlock()

		c.deps.Metrics.Grading(string(question.TypeSubjective), "error")
		c.logger.Warn().Err(err).Msg("subjective grading failed")
		c.publish(EventSessionUpdate, v)
		return View{}, err
	}
	res := scoring.FromRemote(remote, len(req.Questions))
	c.current.result = &res
	c.current.phase = PhaseGraded
	v := c.current.view(c.id, gen)
	c.mu.Unlock()

	c.deps.Metrics.Grading(string(question.TypeSubjective), "remote")
	c.logger.Info().Int("score", res.Score).Int("correct", res.Correct).Int("total", res.Total).Msg("quiz graded remotely")
	c.publish(EventSessionUpdate, v)
	return v, nil
}

// Restore replaces the session with a quiz from history, using the entry's
// own question type. Questions are re-derived from their raw records.
func (c *Controller) Restore(historyID int64) (View, error) {
	if c.deps.History == nil {
		return View{}, fmt.Errorf("quiz history %d: %w", historyID, apperrors.ErrNotFound)
	}
	entry, ok := c.deps.History.Get(history.FeatureQuiz, historyID)
	if !ok {
		return View{}, fmt.Errorf("quiz history %d: %w", historyID, apperrors.ErrNotFound)
	}
	var payload historyPayload
	if err := entry.Decode(&payload); err != nil {
		return View{}, fmt.Errorf("decode quiz history %d: %w", historyID, err)
	}
	qtype := payload.QType
	if !qtype.Valid() {
		qtype = question.TypeObjective
	}
	questions := make([]question.Normalized, 0, len(payload.Quiz))
	for _, q := range payload.Quiz {
		questions = append(questions, rederive(q))
	}

	c.mu.Lock()
	c.gen++
	c.current = newReadySession(qtype, questions)
	c.current.historyID = entry.ID
	v := c.current.view(c.id, c.gen)
	c.mu.Unlock()

	c.logger.Info().Int64("history_id", historyID).Int("questions", len(questions)).Msg("quiz restored from history")
	c.publish(EventSessionUpdate, v)
	return v, nil
}

// rederive normalizes a stored question again from its raw record. Records
// stored without one keep their stored fields, bounded to the option cap.
func rederive(q question.Normalized) question.Normalized {
	if len(q.Raw) > 0 {
		return question.Normalize(q.Raw)
	}
	if len(q.Options) > question.MaxOptions {
		q.Options = q.Options[:question.MaxOptions]
	}
	if q.Options == nil {
		q.Options = []string{}
	}
	if q.AnswerIndex < -1 || q.AnswerIndex >= len(q.Options) {
		q.AnswerIndex = -1
	}
	q.Raw = question.RawQuestion{}
	return q
}

// Reset drops the session back to empty.
func (c *Controller) Reset() View {
	c.mu.Lock()
	c.gen++
	c.current = session{phase: PhaseEmpty}
	v := c.current.view(c.id, c.gen)
	c.mu.Unlock()

	c.publish(EventSessionUpdate, v)
	return v
}

// Wait blocks until background reconciliations have finished.
func (c *Controller) Wait() {
	c.bg.Wait()
}

func (c *Controller) dropStale(operation string, gen uint64) {
	c.deps.Metrics.StaleResponse(operation)
	c.logger.Debug().Str("operation", operation).Uint64("generation", gen).Msg("dropping stale response")
}

func (c *Controller) publish(kind string, v View) {
	if c.deps.Notifier == nil {
		return
	}
	c.deps.Notifier.Publish(c.id, kind, v)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// IsStale reports whether err means the caller's request was superseded.
func IsStale(err error) bool {
	return errors.Is(err, apperrors.ErrStaleResponse)
}

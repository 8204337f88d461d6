package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/gokatarajesh/notes-quiz/internal/question"
	"github.com/gokatarajesh/notes-quiz/internal/quiz"
	"github.com/gokatarajesh/notes-quiz/internal/quiz/scoring"
)

var (
	_ quiz.Generator       = (*Client)(nil)
	_ quiz.Grader          = (*Client)(nil)
	_ quiz.SourceExtractor = (*Client)(nil)
)

type quizResponse struct {
	Type string          `json:"type"`
	Quiz json.RawMessage `json:"quiz"`
}

// Generate requests raw questions. A non-array "quiz" yields no questions;
// string elements become {"raw": s} and other non-objects become empty records.
func (c *Client) Generate(ctx context.Context, req quiz.GenerateRequest) ([]question.RawQuestion, error) {
	values := url.Values{
		"notes":    {req.SourceText},
		"qtype":    {string(req.Type)},
		"count":    {strconv.Itoa(req.Count)},
		"provider": {c.config.Provider},
		"model":    {c.config.Model},
	}
	var resp quizResponse
	if err := c.postForm(ctx, "generate", "/api/quiz", "Quiz generation failed", values, &resp); err != nil {
		return nil, err
	}
	return decodeRawQuestions(resp.Quiz), nil
}

func decodeRawQuestions(data json.RawMessage) []question.RawQuestion {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return []question.RawQuestion{}
	}
	out := make([]question.RawQuestion, 0, len(items))
	for _, item := range items {
		out = append(out, decodeRawQuestion(item))
	}
	return out
}

func decodeRawQuestion(item json.RawMessage) question.RawQuestion {
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(item))
	dec.UseNumber()
	if err := dec.Decode(&obj); err == nil && obj != nil {
		return obj
	}
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return question.RawQuestion{"raw": s}
	}
	return question.RawQuestion{}
}

type objectiveItem struct {
	Q           string   `json:"q"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
}

type subjectiveItem struct {
	Q      string `json:"q"`
	Answer string `json:"answer"`
}

type gradeResponse struct {
	Score   *float64    `json:"score"`
	Correct *int        `json:"correct"`
	Total   *int        `json:"total"`
	Results []gradeItem `json:"results"`
}

type gradeItem struct {
	I       *int            `json:"i"`
	Correct bool            `json:"correct"`
	Your    json.RawMessage `json:"your"`
	Answer  json.RawMessage `json:"answer"`
	Score   *float64        `json:"score"`
	Info    *gradeInfo      `json:"info"`
}

type gradeInfo struct {
	Similarity *float64 `json:"similarity"`
	Keywords   []string `json:"keywords"`
	Coverage   *float64 `json:"coverage"`
}

// GradeObjective asks the backend to grade chosen option indices.
func (c *Client) GradeObjective(ctx context.Context, req quiz.ObjectiveGradeRequest) (scoring.Remote, error) {
	items := make([]objectiveItem, 0, len(req.Questions))
	for _, q := range req.Questions {
		options := q.Options
		if options == nil {
			options = []string{}
		}
		items = append(items, objectiveItem{Q: q.Text, Options: options, AnswerIndex: q.AnswerIndex})
	}
	answers := make([]int, len(req.Questions))
	for i := range answers {
		answers[i] = -1
		if i < len(req.Answers) {
			answers[i] = req.Answers[i]
		}
	}
	return c.grade(ctx, question.TypeObjective, items, answers, nil)
}

// GradeSubjective asks the backend to grade free-text answers. Attachments
// are sent as "files"; the backend OCRs them and appends the text to answers.
func (c *Client) GradeSubjective(ctx context.Context, req quiz.SubjectiveGradeRequest) (scoring.Remote, error) {
	items := make([]subjectiveItem, 0, len(req.Questions))
	for _, q := range req.Questions {
		items = append(items, subjectiveItem{Q: q.Text, Answer: q.ExpectedText()})
	}
	answers := make([]string, len(req.Questions))
	copy(answers, req.Answers)
	return c.grade(ctx, question.TypeSubjective, items, answers, req.Attachments)
}

func (c *Client) grade(ctx context.Context, qtype question.Type, items, answers any, attachments []quiz.Attachment) (scoring.Remote, error) {
	quizJSON, err := json.Marshal(items)
	if err != nil {
		return scoring.Remote{}, err
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return scoring.Remote{}, err
	}

	f := newForm()
	f.field("quiz_json", string(quizJSON))
	f.field("answers_json", string(answersJSON))
	f.field("qtype", string(qtype))
	for _, a := range attachments {
		f.file("files", a.Name, a.ContentType, a.Data)
	}

	var resp gradeResponse
	if err := c.postMultipart(ctx, "grade", "/api/grade", "Grading failed", f, &resp); err != nil {
		return scoring.Remote{}, err
	}
	return resp.toRemote(), nil
}

func (r gradeResponse) toRemote() scoring.Remote {
	out := scoring.Remote{Score: r.Score, Correct: r.Correct, Total: r.Total}
	if r.Results == nil {
		return out
	}
	out.PerQuestion = make([]scoring.QuestionResult, 0, len(r.Results))
	for pos, item := range r.Results {
		qr := scoring.QuestionResult{
			Index:     pos,
			IsCorrect: item.Correct,
			Given:     rawInt(item.Your),
			Expected:  rawInt(item.Answer),
			Score:     item.Score,
		}
		if item.I != nil {
			qr.Index = *item.I
		}
		if item.Info != nil {
			qr.Detail = &scoring.Detail{
				Similarity: item.Info.Similarity,
				Coverage:   item.Info.Coverage,
				Keywords:   item.Info.Keywords,
			}
		}
		out.PerQuestion = append(out.PerQuestion, qr)
	}
	return out
}

// rawInt decodes an integer JSON value; anything else is absent.
func rawInt(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	v, err := n.Int64()
	if err != nil {
		return nil
	}
	i := int(v)
	return &i
}

package quiz

import (
	"github.com/gokatarajesh/notes-quiz/internal/question"
	"github.com/gokatarajesh/notes-quiz/internal/quiz/scoring"
)

// Phase is the session lifecycle state.
type Phase string

const (
	PhaseEmpty   Phase = "empty"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseGrading Phase = "grading"
	PhaseGraded  Phase = "graded"
)

// session is one quiz instance. Questions are fixed once loaded; only the
// answer slots change until grading.
type session struct {
	phase     Phase
	qtype     question.Type
	questions []question.Normalized
	choices   []int
	texts     []string
	result    *scoring.Result
	historyID int64
}

func newReadySession(qtype question.Type, questions []question.Normalized) session {
	s := session{phase: PhaseReady, qtype: qtype, questions: questions}
	if questions == nil {
		s.questions = []question.Normalized{}
	}
	if qtype == question.TypeSubjective {
		s.texts = make([]string, len(s.questions))
	} else {
		s.choices = make([]int, len(s.questions))
		for i := range s.choices {
			s.choices[i] = -1
		}
	}
	return s
}

// QuestionView is one rendered question. CorrectAnswer and AnswerAvailable
// are set only after grading.
type QuestionView struct {
	Index           int      `json:"index"`
	Text            string   `json:"q"`
	Options         []string `json:"options"`
	Choice          *int     `json:"choice,omitempty"`
	Answer          *string  `json:"answer,omitempty"`
	CorrectAnswer   string   `json:"correct_answer,omitempty"`
	AnswerAvailable *bool    `json:"answer_available,omitempty"`
}

// View is a read-only snapshot of a controller's current session.
type View struct {
	SessionID  string          `json:"session_id"`
	Generation uint64          `json:"generation"`
	Phase      Phase           `json:"phase"`
	Type       question.Type   `json:"qtype,omitempty"`
	Questions  []QuestionView  `json:"questions"`
	Result     *scoring.Result `json:"result,omitempty"`
	HistoryID  int64           `json:"history_id,omitempty"`
}

func (s session) view(id string, gen uint64) View {
	v := View{
		SessionID:  id,
		Generation: gen,
		Phase:      s.phase,
		Type:       s.qtype,
		Questions:  make([]QuestionView, 0, len(s.questions)),
		HistoryID:  s.historyID,
	}
	if s.result != nil {
		res := *s.result
		v.Result = &res
	}
	for i, q := range s.questions {
		qv := QuestionView{
			Index:   i,
			Text:    q.Text,
			Options: make([]string, len(q.Options)),
		}
		copy(qv.Options, q.Options)
		if i < len(s.choices) {
			c := s.choices[i]
			qv.Choice = &c
		}
		if i < len(s.texts) {
			t := s.texts[i]
			qv.Answer = &t
		}
		if s.phase == PhaseGraded {
			answer, ok := q.CorrectAnswer()
			qv.CorrectAnswer = answer
			qv.AnswerAvailable = &ok
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}

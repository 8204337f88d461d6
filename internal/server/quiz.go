package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gokatarajesh/notes-quiz/internal/logging"
	"github.com/gokatarajesh/notes-quiz/internal/question"
	"github.com/gokatarajesh/notes-quiz/internal/quiz"
)

type sessionCreated struct {
	SessionID string `json:"session_id"`
}

type loadBody struct {
	QType string          `json:"qtype"`
	Count json.RawMessage `json:"count"`
	Notes string          `json:"notes"`
}

type answerBody struct {
	Choice *int    `json:"choice"`
	Text   *string `json:"text"`
}

type restoreBody struct {
	HistoryID int64 `json:"history_id"`
}

func (h *handlers) controller(w http.ResponseWriter, r *http.Request) (*quiz.Controller, bool) {
	c, err := h.deps.Quizzes.Get(r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return nil, false
	}
	return c, true
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	c := h.deps.Quizzes.Create()
	logger := logging.FromContext(r.Context())
	logger.Info().Str("session_id", c.ID()).Msg("quiz session created")
	writeJSON(w, http.StatusCreated, sessionCreated{SessionID: c.ID()})
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.deps.Quizzes.Delete(id); err != nil {
		respondError(w, err)
		return
	}
	if h.deps.Hub != nil {
		h.deps.Hub.CloseSession(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadQuiz accepts JSON {qtype, count, notes} or a multipart form with the
// same fields plus an optional PDF under "file".
func (h *handlers) loadQuiz(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	req, err := h.loadRequest(w, r)
	if err != nil {
		respondError(w, err)
		return
	}
	view, err := c.Load(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) loadRequest(w http.ResponseWriter, r *http.Request) (quiz.LoadRequest, error) {
	var (
		qtype, rawCount, source string
		doc                     *quiz.Document
	)
	if isMultipart(r) {
		if err := h.parseMultipart(w, r); err != nil {
			return quiz.LoadRequest{}, err
		}
		qtype = r.FormValue("qtype")
		rawCount = r.FormValue("count")
		source = r.FormValue("notes")
		file, err := formFile(r, "file")
		if err != nil {
			return quiz.LoadRequest{}, err
		}
		if file != nil {
			doc = &quiz.Document{Name: file.name, Data: file.data, OCR: formBool(r, "ocr")}
		}
	} else {
		var body loadBody
		if err := h.decodeJSON(w, r, &body); err != nil {
			return quiz.LoadRequest{}, err
		}
		qtype, source = body.QType, body.Notes
		rawCount = countText(body.Count)
	}

	count, err := quiz.ParseCount(rawCount)
	if err != nil {
		return quiz.LoadRequest{}, err
	}
	if strings.TrimSpace(qtype) == "" {
		qtype = string(question.TypeObjective)
	}
	return quiz.LoadRequest{
		Type:       question.Type(strings.ToLower(strings.TrimSpace(qtype))),
		Count:      count,
		SourceText: source,
		Document:   doc,
	}, nil
}

// countText accepts a JSON number or string.
func countText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}

func (h *handlers) answer(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		respondError(w, fmt.Errorf("%w: index must be an integer", errBadRequest))
		return
	}
	var body answerBody
	if err := h.decodeJSON(w, r, &body); err != nil {
		respondError(w, err)
		return
	}

	var view quiz.View
	switch {
	case body.Choice != nil:
		view, err = c.AnswerChoice(index, *body.Choice)
	case body.Text != nil:
		view, err = c.AnswerText(index, *body.Text)
	default:
		err = fmt.Errorf("%w: choice or text is required", errBadRequest)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// submit grades the session. Subjective sessions may attach answer images
// as multipart "files".
func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var attachments []quiz.Attachment
	if isMultipart(r) {
		if err := h.parseMultipart(w, r); err != nil {
			respondError(w, err)
			return
		}
		files, err := formFiles(r, "files")
		if err != nil {
			respondError(w, err)
			return
		}
		for _, f := range files {
			attachments = append(attachments, quiz.Attachment{Name: f.name, ContentType: f.contentType, Data: f.data})
		}
	}

	view, err := c.Submit(r.Context(), attachments)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) restore(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var body restoreBody
	if err := h.decodeJSON(w, r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.HistoryID <= 0 {
		respondError(w, fmt.Errorf("%w: history_id is required", errBadRequest))
		return
	}
	view, err := c.Restore(body.HistoryID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Reset())
}

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gokatarajesh/notes-quiz/internal/apperrors"
	"github.com/gokatarajesh/notes-quiz/internal/history"
	"github.com/gokatarajesh/notes-quiz/internal/notes"
)

// Heuristic defaults used when the form omits ratio or max_bullets.
const (
	defaultRatio      = 0.35
	defaultMaxBullets = 10
)

// generateNotes accepts a multipart form: file, smart, provider, model, ocr,
// auto, ratio, max_bullets.
func (h *handlers) generateNotes(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		respondError(w, fmt.Errorf("%w: multipart form expected", errBadRequest))
		return
	}
	if err := h.parseMultipart(w, r); err != nil {
		respondError(w, err)
		return
	}
	file, err := formFile(r, "file")
	if err != nil {
		respondError(w, err)
		return
	}

	req := notes.Request{
		Smart:      formBool(r, "smart"),
		Provider:   r.FormValue("provider"),
		Model:      r.FormValue("model"),
		OCR:        formBool(r, "ocr"),
		Auto:       formBool(r, "auto"),
		Ratio:      defaultRatio,
		MaxBullets: defaultMaxBullets,
	}
	if file != nil {
		req.FileName = file.name
		req.PDF = file.data
	}
	if v := strings.TrimSpace(r.FormValue("ratio")); v != "" && v != "auto" {
		if req.Ratio, err = strconv.ParseFloat(v, 64); err != nil {
			respondError(w, fmt.Errorf("%w: ratio must be a number", errBadRequest))
			return
		}
	}
	if v := strings.TrimSpace(r.FormValue("max_bullets")); v != "" && v != "auto" {
		if req.MaxBullets, err = strconv.Atoi(v); err != nil {
			respondError(w, fmt.Errorf("%w: max_bullets must be an integer", errBadRequest))
			return
		}
	}

	res, err := h.deps.Notes.Generate(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) feature(w http.ResponseWriter, r *http.Request) (history.Feature, bool) {
	feature, ok := history.ParseFeature(r.PathValue("feature"))
	if !ok {
		respondError(w, fmt.Errorf("history feature %q: %w", r.PathValue("feature"), apperrors.ErrNotFound))
	}
	return feature, ok
}

func historyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, fmt.Errorf("%w: id must be a positive integer", errBadRequest))
		return 0, false
	}
	return id, true
}

func (h *handlers) listHistory(w http.ResponseWriter, r *http.Request) {
	feature, ok := h.feature(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.deps.History.List(feature))
}

func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	feature, ok := h.feature(w, r)
	if !ok {
		return
	}
	id, ok := historyID(w, r)
	if !ok {
		return
	}
	entry, found := h.deps.History.Get(feature, id)
	if !found {
		respondError(w, fmt.Errorf("%s history %d: %w", feature, id, apperrors.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handlers) deleteHistory(w http.ResponseWriter, r *http.Request) {
	feature, ok := h.feature(w, r)
	if !ok {
		return
	}
	id, ok := historyID(w, r)
	if !ok {
		return
	}
	h.deps.History.Remove(r.Context(), feature, id)
	w.WriteHeader(http.StatusNoContent)
}

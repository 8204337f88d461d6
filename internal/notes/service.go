package notes

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/notes-quiz/internal/apperrors"
	"github.com/gokatarajesh/notes-quiz/internal/history"
	"github.com/gokatarajesh/notes-quiz/internal/validation"
)

// Generation modes.
const (
	ModeSmart     = "smart"
	ModeHeuristic = "heuristic"
)

// Provider defaults for smart mode.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	defaultOpenAIModel = "gpt-4o-mini"
	defaultOllamaModel = "llama3.1"
)

// Heuristic bounds applied when Auto is off.
const (
	MinRatio      = 0.1
	MaxRatio      = 0.6
	MinMaxBullets = 1
	MaxMaxBullets = 20
)

// Request asks for notes generated from a PDF.
type Request struct {
	FileName   string
	PDF        []byte `validate:"min=1"`
	Smart      bool
	Provider   string
	Model      string
	OCR        bool
	Auto       bool
	Ratio      float64
	MaxBullets int
}

// Summarizer turns a PDF into markdown notes.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// HistoryStore is the notes history dependency.
type HistoryStore interface {
	Append(ctx context.Context, feature history.Feature, payload any) (history.Entry, error)
	Get(feature history.Feature, id int64) (history.Entry, bool)
}

// Defaults fill in smart-mode provider and model when the request omits them.
type Defaults struct {
	Provider string
	Model    string
}

// Payload is the snapshot stored in notes history.
type Payload struct {
	FileName string `json:"file_name"`
	Mode     string `json:"mode"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Markdown string `json:"markdown"`
}

// Result is a generated set of notes and the history entry recording it.
type Result struct {
	Markdown  string `json:"markdown"`
	HistoryID int64  `json:"history_id,omitempty"`
}

type Service struct {
	summarizer Summarizer
	history    HistoryStore
	validator  *validation.Validator
	defaults   Defaults
	logger     zerolog.Logger
}

func NewService(summarizer Summarizer, store HistoryStore, v *validation.Validator, defaults Defaults, logger zerolog.Logger) *Service {
	if v == nil {
		v = validation.New()
	}
	if defaults.Provider == "" {
		defaults.Provider = ProviderOpenAI
	}
	return &Service{
		summarizer: summarizer,
		history:    store,
		validator:  v,
		defaults:   defaults,
		logger:     logger.With().Str("component", "notes").Logger(),
	}
}

// Generate validates req, asks the summarizer for markdown and records the
// result in notes history.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	if err := s.validator.Struct(req, map[string]string{"PDF": "Please choose a PDF."}); err != nil {
		return Result{}, err
	}
	req = s.applyDefaults(req)

	markdown, err := s.summarizer.Summarize(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", req.FileName).Bool("smart", req.Smart).Msg("notes generation failed")
		return Result{}, err
	}

	res := Result{Markdown: markdown}
	payload := Payload{
		FileName: req.FileName,
		Mode:     ModeHeuristic,
		Provider: req.Provider,
		Model:    req.Model,
		Markdown: markdown,
	}
	if req.Smart {
		payload.Mode = ModeSmart
	}
	if s.history != nil {
		entry, err := s.history.Append(ctx, history.FeatureNotes, payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("notes history append failed")
		} else {
			res.HistoryID = entry.ID
		}
	}

	s.logger.Info().Str("file", req.FileName).Str("mode", payload.Mode).Int("markdown_len", len(markdown)).Msg("notes generated")
	return res, nil
}

func (s *Service) applyDefaults(req Request) Request {
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	req.Model = strings.TrimSpace(req.Model)
	if !req.Smart {
		if !req.Auto {
			req.Ratio = clampFloat(req.Ratio, MinRatio, MaxRatio)
			req.MaxBullets = clampInt(req.MaxBullets, MinMaxBullets, MaxMaxBullets)
		}
		return req
	}
	if req.Provider == "" {
		req.Provider = s.defaults.Provider
	}
	if req.Model == "" {
		switch {
		case s.defaults.Model != "" && req.Provider == s.defaults.Provider:
			req.Model = s.defaults.Model
		case req.Provider == ProviderOllama:
			req.Model = defaultOllamaModel
		default:
			req.Model = defaultOpenAIModel
		}
	}
	return req
}

// Preview returns the markdown stored in a notes history entry.
func (s *Service) Preview(id int64) (string, error) {
	if s.history == nil {
		return "", fmt.Errorf("notes history %d: %w", id, apperrors.ErrNotFound)
	}
	entry, ok := s.history.Get(history.FeatureNotes, id)
	if !ok {
		return "", fmt.Errorf("notes history %d: %w", id, apperrors.ErrNotFound)
	}
	var p Payload
	if err := entry.Decode(&p); err != nil {
		return "", fmt.Errorf("decode notes history %d: %w", id, err)
	}
	return p.Markdown, nil
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

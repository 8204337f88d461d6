package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/notes-quiz/internal/apperrors"
	"github.com/gokatarajesh/notes-quiz/internal/metrics"
)

// Feature names a history area. Features never interact.
type Feature string

const (
	FeatureNotes Feature = "notes"
	FeatureQuiz  Feature = "quiz"
)

// Default capacities per feature.
const (
	DefaultNotesCapacity = 40
	DefaultQuizCapacity  = 50
)

var features = []Feature{FeatureNotes, FeatureQuiz}

// ParseFeature maps a path segment onto a Feature.
func ParseFeature(s string) (Feature, bool) {
	for _, f := range features {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Entry is one history record. Payload is a JSON snapshot taken at append time.
type Entry struct {
	ID        int64           `json:"id"`
	CreatedAt time.Time       `json:"created"`
	Feature   Feature         `json:"feature"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload snapshot into v.
func (e Entry) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Persister stores the full ordered list of a feature.
type Persister interface {
	Save(ctx context.Context, feature Feature, entries []Entry) error
	Load(ctx context.Context, feature Feature) ([]json.RawMessage, error)
}

// Options configures a Store.
type Options struct {
	NotesCapacity int
	QuizCapacity  int
	Now           func() time.Time
}

// Store is an append-only, capacity-bounded log, most-recent-first.
// A nil persister keeps history in process memory only.
type Store struct {
	mu        sync.Mutex
	entries   map[Feature][]Entry
	capacity  map[Feature]int
	persister Persister
	now       func() time.Time
	lastID    int64
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewStore builds an empty store. Call Load to restore persisted entries.
func NewStore(persister Persister, opts Options, logger zerolog.Logger, m *metrics.Metrics) *Store {
	notesCap := opts.NotesCapacity
	if notesCap <= 0 {
		notesCap = DefaultNotesCapacity
	}
	quizCap := opts.QuizCapacity
	if quizCap <= 0 {
		quizCap = DefaultQuizCapacity
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		entries:   map[Feature][]Entry{},
		capacity:  map[Feature]int{FeatureNotes: notesCap, FeatureQuiz: quizCap},
		persister: persister,
		now:       now,
		logger:    logger.With().Str("component", "history").Logger(),
		metrics:   m,
	}
}

// Capacity returns the configured bound for feature.
func (s *Store) Capacity(feature Feature) int {
	return s.capacity[feature]
}

// Append snapshots payload and inserts it at the front, evicting the oldest
// entries beyond capacity.
func (s *Store) Append(ctx context.Context, feature Feature, payload any) (Entry, error) {
	limit, ok := s.capacity[feature]
	if !ok {
		return Entry{}, apperrors.NewValidation("feature", fmt.Sprintf("unknown history feature %q", feature))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("snapshot %s payload: %w", feature, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		ID:        s.nextID(),
		CreatedAt: s.now().UTC(),
		Feature:   feature,
		Payload:   data,
	}
	list := make([]Entry, 0, len(s.entries[feature])+1)
	list = append(list, entry)
	list = append(list, s.entries[feature]...)
	if len(list) > limit {
		s.metrics.HistoryEvicted(string(feature), len(list)-limit)
		list = list[:limit]
	}
	s.entries[feature] = list
	s.persist(ctx, feature)
	return entry, nil
}

// Remove deletes id from feature. Removing an unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, feature Feature, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[feature]
	for i, e := range list {
		if e.ID != id {
			continue
		}
		next := make([]Entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		s.entries[feature] = next
		s.persist(ctx, feature)
		return
	}
}

// List returns a copy of feature's entries, most recent first.
func (s *Store) List(feature Feature) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries[feature]))
	copy(out, s.entries[feature])
	return out
}

// Get looks up a single entry.
func (s *Store) Get(feature Feature, id int64) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries[feature] {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Load restores every feature from the persister, skipping malformed entries.
// A feature that cannot be read is left empty and reported in the returned error.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, feature := range features {
		raws, err := s.persister.Load(ctx, feature)
		if err != nil {
			s.logger.Warn().Err(err).Str("feature", string(feature)).Msg("history load failed")
			errs = append(errs, fmt.Errorf("load %s history: %w", feature, err))
			continue
		}
		s.entries[feature] = s.decodeEntries(feature, raws)
		s.logger.Debug().Str("feature", string(feature)).Int("entries", len(s.entries[feature])).Msg("history restored")
	}
	return errors.Join(errs...)
}

func (s *Store) decodeEntries(feature Feature, raws []json.RawMessage) []Entry {
	limit := s.capacity[feature]
	seen := make(map[int64]struct{}, len(raws))
	out := make([]Entry, 0, len(raws))
	for i, raw := range raws {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			s.logger.Warn().Err(err).Int("position", i).Str("feature", string(feature)).Msg("skip malformed history entry")
			continue
		}
		if !validEntry(e, feature) {
			s.logger.Warn().Int("position", i).Str("feature", string(feature)).Msg("skip invalid history entry")
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		e.Feature = feature
		out = append(out, e)
		if e.ID > s.lastID {
			s.lastID = e.ID
		}
		if len(out) == limit {
			break
		}
	}
	return out
}

func validEntry(e Entry, feature Feature) bool {
	if e.ID <= 0 {
		return false
	}
	if e.Feature != "" && e.Feature != feature {
		return false
	}
	payload := bytes.TrimSpace(e.Payload)
	return len(payload) > 0 && !bytes.Equal(payload, []byte("null"))
}

// nextID returns a millisecond timestamp, bumped to stay strictly increasing.
func (s *Store) nextID() int64 {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func (s *Store) persist(ctx context.Context, feature Feature) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(ctx, feature, s.entries[feature]); err != nil {
		s.logger.Warn().Err(err).Str("feature", string(feature)).Msg("history persist failed")
	}
}

package quiz

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/notes-quiz/internal/apperrors"
)

// Registry holds the live controllers, keyed by session id.
type Registry struct {
	deps   Dependencies
	logger zerolog.Logger

	mu          sync.RWMutex
	controllers map[string]*Controller
}

func NewRegistry(deps Dependencies, logger zerolog.Logger) *Registry {
	return &Registry{
		deps:        deps,
		logger:      logger,
		controllers: make(map[string]*Controller),
	}
}

// Create starts an empty session with a fresh id.
func (r *Registry) Create() *Controller {
	c := NewController(uuid.NewString(), r.deps, r.logger)

	r.mu.Lock()
	r.controllers[c.ID()] = c
	r.mu.Unlock()
	return c
}

// Get looks up a session.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.RLock()
	c, ok := r.controllers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("quiz session %s: %w", id, apperrors.ErrNotFound)
	}
	return c, nil
}

// Delete removes a session. In-flight responses for it are dropped.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	c, ok := r.controllers[id]
	delete(r.controllers, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("quiz session %s: %w", id, apperrors.ErrNotFound)
	}
	c.Reset()
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controllers)
}

// Wait blocks until every session's background work has finished.
func (r *Registry) Wait() {
	r.mu.RLock()
	list := make([]*Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		list = append(list, c)
	}
	r.mu.RUnlock()

	for _, c := range list {
		c.Wait()
	}
}

// Package session holds the per-user dialogue state for active conversations.
//
// It provides a repository abstraction so the command router and flow engine
// can be tested without a live map, plus the in-memory implementation used in
// production (single process, one logical owner per user id).
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gadgetcare/repairbot/internal/models"
)

// Repository manages the lifecycle of conversational sessions.
type Repository interface {
	// Get returns the session for id, or ok=false when absent.
	Get(id string) (*models.Session, bool)

	// Begin creates a fresh session for id in the given flow at StepStart,
	// preserving any persistent flags previously set for id.
	Begin(id string, flow models.FlowType) *models.Session

	// IsActive reports whether id has a session with both flow and step set
	// and the step is not idle.
	IsActive(id string) bool

	// End removes the session entirely, including persistent flags.
	End(id string)

	// SoftClear resets flow, step and data to inactive but keeps persistent flags.
	SoftClear(id string)
}

// MemoryRepository is the in-memory Repository used in production. A mutex
// guards the map against concurrent webhook deliveries; turn-level
// coordination per user is assumed to be provided by the transport.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

// NewMemoryRepository creates an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*models.Session)}
}

// Get returns the session for id, or ok=false when absent.
func (r *MemoryRepository) Get(id string) (*models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Begin creates a fresh session for id, carrying over the persistent
// technical-mode flag from any prior session.
func (r *MemoryRepository) Begin(id string, flow models.FlowType) *models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	techMode := false
	if prev, ok := r.sessions[id]; ok {
		techMode = prev.TechMode
	}
	s := &models.Session{
		UserID:       id,
		Flow:         flow,
		Step:         models.StepStart,
		Data:         make(map[models.DataKey]string),
		LastActiveAt: time.Now(),
		TechMode:     techMode,
	}
	r.sessions[id] = s
	slog.Debug("Session begun", "userID", id, "flow", flow, "techMode", techMode)
	return s
}

// IsActive reports whether id has an active session.
func (r *MemoryRepository) IsActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	return s.Flow != models.FlowNone && s.Step != "" && s.Step != models.StepIdle
}

// End removes the session for id entirely. Removing an absent session is a no-op.
func (r *MemoryRepository) End(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		slog.Debug("Session ended", "userID", id)
	}
}

// SoftClear deactivates the session for id but keeps persistent flags.
func (r *MemoryRepository) SoftClear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	s.Flow = models.FlowNone
	s.Step = models.StepIdle
	s.Data = nil
	s.ModelList = nil
	s.SearchResults = nil
	s.LastActiveAt = time.Now()
	slog.Debug("Session soft-cleared", "userID", id, "techMode", s.TechMode)
}

// Count returns the number of stored sessions, active or not.
func (r *MemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

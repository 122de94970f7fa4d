package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gadgetcare/repairbot/internal/models"
)

// InMemoryStore keeps appointments and the message log in process memory.
// Used in tests and when no database DSN is configured.
type InMemoryStore struct {
	mu           sync.Mutex
	appointments []models.Appointment
	messages     []models.Message
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// CreateAppointment validates and stores the appointment, assigning its id.
func (s *InMemoryStore) CreateAppointment(a models.Appointment) (string, error) {
	if err := a.Validate(); err != nil {
		return "", fmt.Errorf("invalid appointment: %w", err)
	}
	a.ID = NewAppointmentID()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.mu.Lock()
	s.appointments = append(s.appointments, a)
	s.mu.Unlock()
	return a.ID, nil
}

// ListAppointments returns all appointments, newest first.
func (s *InMemoryStore) ListAppointments() ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Appointment, len(s.appointments))
	copy(out, s.appointments)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// RecordMessage appends one chat-log entry.
func (s *InMemoryStore) RecordMessage(m models.Message) error {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
	return nil
}

// ListMessages returns up to limit most recent messages for userID, oldest first.
func (s *InMemoryStore) ListMessages(userID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ListChats summarizes all conversation peers, most recent first.
func (s *InMemoryStore) ListChats() ([]models.ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser := make(map[string]*models.ChatSummary)
	for _, m := range s.messages {
		cs, ok := byUser[m.UserID]
		if !ok {
			cs = &models.ChatSummary{UserID: m.UserID}
			byUser[m.UserID] = cs
		}
		cs.MessageCount++
		if m.Time > cs.LastMessageAt {
			cs.LastMessageAt = m.Time
		}
	}
	out := make([]models.ChatSummary, 0, len(byUser))
	for _, cs := range byUser {
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt != out[j].LastMessageAt {
			return out[i].LastMessageAt > out[j].LastMessageAt
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

// NewAppointmentID generates a store-assigned appointment identifier.
func NewAppointmentID() string {
	return "appt_" + uuid.NewString()
}

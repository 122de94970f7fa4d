// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/gadgetcare/repairbot/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists appointments and the message log in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.PostgresDSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL store ready")
	return &PostgresStore{db: db}, nil
}

// CreateAppointment validates and inserts a new appointment.
func (s *PostgresStore) CreateAppointment(a models.Appointment) (string, error) {
	if err := a.Validate(); err != nil {
		return "", fmt.Errorf("invalid appointment: %w", err)
	}
	a.ID = NewAppointmentID()
	var estimate sql.NullInt64
	if a.Estimate != nil {
		estimate = sql.NullInt64{Int64: int64(*a.Estimate), Valid: true}
	}
	_, err := s.db.Exec(`INSERT INTO appointments
		(id, created_at, customer_whatsapp, name, brand, model, issue, estimate, estimate_range, date, time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.CreatedAt, a.CustomerWhatsApp, a.Name, a.Brand, a.Model, a.Issue,
		estimate, a.EstimateRange, a.Date, a.Time, string(a.Status))
	if err != nil {
		slog.Error("PostgresStore CreateAppointment failed", "error", err, "customer", a.CustomerWhatsApp)
		return "", fmt.Errorf("failed to insert appointment: %w", err)
	}
	slog.Debug("PostgresStore CreateAppointment succeeded", "id", a.ID)
	return a.ID, nil
}

// ListAppointments returns all appointments, newest first.
func (s *PostgresStore) ListAppointments() ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, created_at, customer_whatsapp, name, brand, model, issue,
		estimate, estimate_range, date, time, status FROM appointments ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListAppointments query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// RecordMessage appends one chat-log entry.
func (s *PostgresStore) RecordMessage(m models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (user_id, direction, body, time) VALUES ($1, $2, $3, $4)`,
		m.UserID, string(m.Direction), m.Body, m.Time)
	if err != nil {
		slog.Error("PostgresStore RecordMessage failed", "error", err, "userID", m.UserID)
		return fmt.Errorf("failed to insert message for %s: %w", m.UserID, err)
	}
	return nil
}

// ListMessages returns up to limit most recent messages for userID, oldest first.
func (s *PostgresStore) ListMessages(userID string, limit int) ([]models.Message, error) {
	query := `SELECT user_id, direction, body, time FROM messages WHERE user_id = $1 ORDER BY id DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListMessages query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// ListChats summarizes conversation peers, most recent first.
func (s *PostgresStore) ListChats() ([]models.ChatSummary, error) {
	rows, err := s.db.Query(`SELECT user_id, COUNT(*), MAX(time) FROM messages GROUP BY user_id ORDER BY MAX(time) DESC`)
	if err != nil {
		slog.Error("PostgresStore ListChats query failed", "error", err)
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()
	return scanChats(rows)
}

// Close closes the PostgreSQL connection pool.
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL connection", "error", err)
	}
	return err
}

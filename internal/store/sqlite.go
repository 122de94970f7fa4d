// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gadgetcare/repairbot/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists appointments and the message log in an SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path; its
// directory is created if missing and migrations are applied on open.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.SQLiteDSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite store ready", "path", dsn)
	return &SQLiteStore{db: db}, nil
}

// CreateAppointment validates and inserts a new appointment.
func (s *SQLiteStore) CreateAppointment(a models.Appointment) (string, error) {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CreatedAt, a.CustomerWhatsApp, a.Name, a.Brand, a.Model, a.Issue,
		estimate, a.EstimateRange, a.Date, a.Time, string(a.Status))
	if err != nil {
		slog.Error("SQLiteStore CreateAppointment failed", "error", err, "customer", a.CustomerWhatsApp)
		return "", fmt.Errorf("failed to insert appointment: %w", err)
	}
	slog.Debug("SQLiteStore CreateAppointment succeeded", "id", a.ID)
	return a.ID, nil
}

// ListAppointments returns all appointments, newest first.
func (s *SQLiteStore) ListAppointments() ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, created_at, customer_whatsapp, name, brand, model, issue,
		estimate, estimate_range, date, time, status FROM appointments ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListAppointments query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// RecordMessage appends one chat-log entry.
func (s *SQLiteStore) RecordMessage(m models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (user_id, direction, body, time) VALUES (?, ?, ?, ?)`,
		m.UserID, string(m.Direction), m.Body, m.Time)
	if err != nil {
		slog.Error("SQLiteStore RecordMessage failed", "error", err, "userID", m.UserID)
		return fmt.Errorf("failed to insert message for %s: %w", m.UserID, err)
	}
	return nil
}

// ListMessages returns up to limit most recent messages for userID, oldest first.
func (s *SQLiteStore) ListMessages(userID string, limit int) ([]models.Message, error) {
	query := `SELECT user_id, direction, body, time FROM messages WHERE user_id = ? ORDER BY id DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListMessages query failed", "error", err, "userID", userID)
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
func (s *SQLiteStore) ListChats() ([]models.ChatSummary, error) {
	rows, err := s.db.Query(`SELECT user_id, COUNT(*), MAX(time) FROM messages GROUP BY user_id ORDER BY MAX(time) DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListChats query failed", "error", err)
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()
	return scanChats(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

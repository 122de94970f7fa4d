// Package store provides storage backends for appointments and the chat
// message log: an in-memory store for tests, SQLite for single-node
// deployments, and PostgreSQL for shared ones.
package store

import (
	"log/slog"
	"strings"

	"github.com/gadgetcare/repairbot/internal/models"
)

// Store is the persistence interface consumed by the flow engine (appointment
// creation), the command router (history for the assistant) and the admin API.
type Store interface {
	// CreateAppointment validates and persists a new appointment, returning
	// the store-assigned identifier.
	CreateAppointment(a models.Appointment) (string, error)

	// ListAppointments returns all appointments, newest first.
	ListAppointments() ([]models.Appointment, error)

	// RecordMessage appends one chat-log entry. Message logging is
	// best-effort: callers log failures and continue.
	RecordMessage(m models.Message) error

	// ListMessages returns up to limit most recent messages for a user,
	// oldest first. limit <= 0 means no limit.
	ListMessages(userID string, limit int) ([]models.Message, error)

	// ListChats summarizes all conversation peers, most recent first.
	ListChats() ([]models.ChatSummary, error)

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	PostgresDSN string
	SQLiteDSN   string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithPostgresDSN configures a PostgreSQL-backed store.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}

// WithSQLiteDSN configures an SQLite-backed store using the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.SQLiteDSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". File paths and
// anything that is not recognizably a Postgres URL count as SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Open constructs the store selected by the options: Postgres when a Postgres
// DSN is set, SQLite when an SQLite DSN is set, otherwise in-memory.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.PostgresDSN != "":
		slog.Debug("Opening PostgreSQL store")
		return NewPostgresStore(opts...)
	case cfg.SQLiteDSN != "":
		slog.Debug("Opening SQLite store", "path", cfg.SQLiteDSN)
		return NewSQLiteStore(opts...)
	default:
		slog.Debug("No DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
}

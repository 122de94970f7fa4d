package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/gadgetcare/repairbot/internal/models"
)

// scanAppointments reads appointment rows produced by the shared column order.
func scanAppointments(rows *sql.Rows) ([]models.Appointment, error) {
	var out []models.Appointment
	for rows.Next() {
		var a models.Appointment
		var estimate sql.NullInt64
		var status string
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.CustomerWhatsApp, &a.Name, &a.Brand, &a.Model,
			&a.Issue, &estimate, &a.EstimateRange, &a.Date, &a.Time, &status); err != nil {
			slog.Error("Store appointment scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		if estimate.Valid {
			v := int(estimate.Int64)
			a.Estimate = &v
		}
		a.Status = models.AppointmentStatus(status)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointment rows: %w", err)
	}
	return out, nil
}

// scanMessages reads message rows produced by the shared column order.
func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		var direction string
		if err := rows.Scan(&m.UserID, &direction, &m.Body, &m.Time); err != nil {
			slog.Error("Store message scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Direction = models.MessageDirection(direction)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return out, nil
}

// scanChats reads chat summary rows (user_id, count, last time).
func scanChats(rows *sql.Rows) ([]models.ChatSummary, error) {
	var out []models.ChatSummary
	for rows.Next() {
		var cs models.ChatSummary
		if err := rows.Scan(&cs.UserID, &cs.MessageCount, &cs.LastMessageAt); err != nil {
			slog.Error("Store chat scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat rows: %w", err)
	}
	return out, nil
}

func reverseMessages(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"sessions/internal/domain/models"
)

func (s *Storage) SaveAuditEvent(ctx context.Context, event models.AuditEvent) error {
	const op = "storage.sqlite.SaveAuditEvent"

	metadata := []byte("{}")
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	stmt, err := s.db.Prepare(`
		INSERT INTO audit_log (id, action, user_id, session_id, ip_address, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, event.ID, event.Action, event.UserID, event.SessionID, event.IPAddress, string(metadata), event.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AuditEvents returns a user's audit trail, oldest first.
func (s *Storage) AuditEvents(ctx context.Context, userID string) ([]models.AuditEvent, error) {
	const op = "storage.sqlite.AuditEvents"

	stmt, err := s.db.Prepare(`
		SELECT id, action, user_id, session_id, ip_address, metadata, created_at
		FROM audit_log WHERE user_id = ? ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var (
			event    models.AuditEvent
			metadata string
		)
		if err := rows.Scan(&event.ID, &event.Action, &event.UserID, &event.SessionID, &event.IPAddress, &metadata, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return events, nil
}

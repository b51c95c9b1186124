package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"sessions/internal/domain/models"
	"sessions/internal/storage"
)

const sessionColumns = `id, user_id, token_digest, refresh_digest, device_info, ip_address, last_active_at,
	is_active, expires_at, created_at, revoked_at, logged_out_at, revoke_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (models.Session, error) {
	var (
		session     models.Session
		revokedAt   sql.NullTime
		loggedOutAt sql.NullTime
	)

	err := row.Scan(
		&session.ID, &session.UserID, &session.TokenDigest, &session.RefreshDigest, &session.DeviceInfo,
		&session.IPAddress, &session.LastActiveAt, &session.IsActive, &session.ExpiresAt, &session.CreatedAt,
		&revokedAt, &loggedOutAt, &session.RevokeReason,
	)
	if err != nil {
		return models.Session{}, err
	}

	if revokedAt.Valid {
		session.RevokedAt = &revokedAt.Time
	}
	if loggedOutAt.Valid {
		session.LoggedOutAt = &loggedOutAt.Time
	}

	return session, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (s *Storage) SaveSession(ctx context.Context, session models.Session) error {
	const op = "storage.sqlite.SaveSession"

	stmt, err := s.db.Prepare(`
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		session.ID, session.UserID, session.TokenDigest, session.RefreshDigest, session.DeviceInfo,
		session.IPAddress, session.LastActiveAt.UTC(), session.IsActive, session.ExpiresAt.UTC(), session.CreatedAt.UTC(),
		nullTime(session.RevokedAt), nullTime(session.LoggedOutAt), session.RevokeReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrSessionExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Session(ctx context.Context, sessionID string) (models.Session, error) {
	const op = "storage.sqlite.Session"

	stmt, err := s.db.Prepare("SELECT " + sessionColumns + " FROM sessions WHERE id = ?")
	if err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	session, err := scanSession(stmt.QueryRowContext(ctx, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Session{}, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

// ActiveSessionByDigest returns the single active session holding digest.
// Zero or several matches both report storage.ErrSessionNotFound.
func (s *Storage) ActiveSessionByDigest(ctx context.Context, digest string) (models.Session, error) {
	const op = "storage.sqlite.ActiveSessionByDigest"

	session, err := s.uniqueActive(ctx, "token_digest", digest)
	if err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

func (s *Storage) ActiveSessionByRefreshDigest(ctx context.Context, digest string) (models.Session, error) {
	const op = "storage.sqlite.ActiveSessionByRefreshDigest"

	session, err := s.uniqueActive(ctx, "refresh_digest", digest)
	if err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

func (s *Storage) uniqueActive(ctx context.Context, column string, digest string) (models.Session, error) {
	if digest == "" {
		return models.Session{}, storage.ErrSessionNotFound
	}

	stmt, err := s.db.Prepare("SELECT " + sessionColumns + " FROM sessions WHERE " + column + " = ? AND is_active = 1 LIMIT 2")
	if err != nil {
		return models.Session{}, err
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, digest)
	if err != nil {
		return models.Session{}, err
	}
	defer rows.Close()

	var found []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return models.Session{}, err
		}
		found = append(found, session)
	}
	if err := rows.Err(); err != nil {
		return models.Session{}, err
	}

	if len(found) != 1 {
		return models.Session{}, storage.ErrSessionNotFound
	}

	return found[0], nil
}

// SessionsByUser lists a user's sessions, most recently active first.
// With a positive Limit the page carries a cursor when more rows remain.
func (s *Storage) SessionsByUser(ctx context.Context, userID string, filter models.SessionFilter) (models.SessionPage, error) {
	const op = "storage.sqlite.SessionsByUser"

	query := "SELECT " + sessionColumns + " FROM sessions WHERE user_id = ?"
	args := []any{userID}

	if filter.ActiveOnly {
		query += " AND is_active = 1"
	}

	if filter.Cursor != "" {
		lastActiveAt, id, err := decodeCursor(filter.Cursor)
		if err != nil {
			return models.SessionPage{}, fmt.Errorf("%s: %w", op, err)
		}
		query += " AND (last_active_at < ? OR (last_active_at = ? AND id < ?))"
		args = append(args, lastActiveAt, lastActiveAt, id)
	}

	query += " ORDER BY last_active_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit+1)
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return models.SessionPage{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return models.SessionPage{}, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var page models.SessionPage
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return models.SessionPage{}, fmt.Errorf("%s: %w", op, err)
		}
		page.Sessions = append(page.Sessions, session)
	}
	if err := rows.Err(); err != nil {
		return models.SessionPage{}, fmt.Errorf("%s: %w", op, err)
	}

	if filter.Limit > 0 && len(page.Sessions) > filter.Limit {
		page.Sessions = page.Sessions[:filter.Limit]
		last := page.Sessions[len(page.Sessions)-1]
		page.NextCursor = encodeCursor(last.LastActiveAt, last.ID)
	}

	return page, nil
}

// UpdateSession applies upd to an active session. Inactive sessions are
// never touched, so deactivation stays one-way.
func (s *Storage) UpdateSession(ctx context.Context, sessionID string, upd models.SessionUpdate) error {
	const op = "storage.sqlite.UpdateSession"

	var (
		sets []string
		args []any
	)
	if upd.TokenDigest != nil {
		sets = append(sets, "token_digest = ?")
		args = append(args, *upd.TokenDigest)
	}
	if upd.RefreshDigest != nil {
		sets = append(sets, "refresh_digest = ?")
		args = append(args, *upd.RefreshDigest)
	}
	if upd.LastActiveAt != nil {
		sets = append(sets, "last_active_at = ?")
		args = append(args, upd.LastActiveAt.UTC())
	}
	if upd.ExpiresAt != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, upd.ExpiresAt.UTC())
	}
	if len(sets) == 0 {
		return nil
	}

	stmt, err := s.db.Prepare("UPDATE sessions SET " + strings.Join(sets, ", ") + " WHERE id = ? AND is_active = 1")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, append(args, sessionID)...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrSessionExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	return nil
}

// DeactivateSession flips an active session to inactive and stamps
// logged_out_at for logouts and revoked_at for everything else.
// It reports false when the session was already inactive or does not exist.
func (s *Storage) DeactivateSession(ctx context.Context, sessionID string, reason models.RevokeReason, at time.Time) (bool, error) {
	const op = "storage.sqlite.DeactivateSession"

	column := "revoked_at"
	if reason == models.ReasonLogout {
		column = "logged_out_at"
	}

	stmt, err := s.db.Prepare("UPDATE sessions SET is_active = 0, " + column + " = ?, revoke_reason = ? WHERE id = ? AND is_active = 1")
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, at.UTC(), reason, sessionID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func encodeCursor(lastActiveAt time.Time, id string) string {
	raw := lastActiveAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", storage.ErrInvalidCursor
	}

	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return time.Time{}, "", storage.ErrInvalidCursor
	}

	lastActiveAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", storage.ErrInvalidCursor
	}

	return lastActiveAt.UTC(), id, nil
}

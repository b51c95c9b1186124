// Apply migrations from files: go run ./cmd/migrator --storage-path=./storage/sessions.db --migrations-path=./migrations
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"sessions/internal/domain/models"
	"sessions/internal/storage"
)

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite3", dsn(storagePath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// SQLite allows a single writer; one connection turns lock contention into queueing.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func dsn(storagePath string) string {
	sep := "?"
	if strings.Contains(storagePath, "?") {
		sep = "&"
	}
	return storagePath + sep + "_busy_timeout=5000&_foreign_keys=on"
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func (s *Storage) SaveAccount(ctx context.Context, account models.Account) error {
	const op = "storage.sqlite.SaveAccount"

	stmt, err := s.db.Prepare(`
		INSERT INTO accounts (id, email, pass_hash, full_name, role_id, status, confirmed, token_generation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		account.ID, account.Email, account.PassHash, account.FullName, account.RoleID, account.Status,
		account.Confirmed, account.TokenGeneration, account.CreatedAt.UTC(), account.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAccountExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

const accountColumns = `id, email, pass_hash, full_name, role_id, status, confirmed, token_generation, created_at, updated_at`

func (s *Storage) AccountByEmail(ctx context.Context, email string) (models.Account, error) {
	const op = "storage.sqlite.AccountByEmail"

	account, err := s.account(ctx, "SELECT "+accountColumns+" FROM accounts WHERE email = ?", email)
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

func (s *Storage) AccountByID(ctx context.Context, accountID string) (models.Account, error) {
	const op = "storage.sqlite.AccountByID"

	account, err := s.account(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", accountID)
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

func (s *Storage) account(ctx context.Context, query string, arg any) (models.Account, error) {
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return models.Account{}, err
	}
	defer stmt.Close()

	var account models.Account
	err = stmt.QueryRowContext(ctx, arg).Scan(
		&account.ID, &account.Email, &account.PassHash, &account.FullName, &account.RoleID, &account.Status,
		&account.Confirmed, &account.TokenGeneration, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}
		return models.Account{}, err
	}

	return account, nil
}

// UserProfile serves the user-profile collaborator from the accounts table.
func (s *Storage) UserProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	const op = "storage.sqlite.UserProfile"

	account, err := s.AccountByID(ctx, userID)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("%s: %w", op, err)
	}

	return account.Profile(), nil
}

func (s *Storage) UpdateStatus(ctx context.Context, accountID string, status models.AccountStatus) error {
	const op = "storage.sqlite.UpdateStatus"

	return s.updateAccount(ctx, op, "UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?", status, time.Now().UTC(), accountID)
}

func (s *Storage) ConfirmAccount(ctx context.Context, accountID string) error {
	const op = "storage.sqlite.ConfirmAccount"

	return s.updateAccount(ctx, op, "UPDATE accounts SET confirmed = 1, updated_at = ? WHERE id = ?", time.Now().UTC(), accountID)
}

// BumpTokenGeneration invalidates every token minted for the account before the call.
func (s *Storage) BumpTokenGeneration(ctx context.Context, accountID string) error {
	const op = "storage.sqlite.BumpTokenGeneration"

	return s.updateAccount(ctx, op,
		"UPDATE accounts SET token_generation = token_generation + 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), accountID,
	)
}

func (s *Storage) updateAccount(ctx context.Context, op string, query string, args ...any) error {
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
	}

	return nil
}

func (s *Storage) SaveRefreshToken(ctx context.Context, token models.RefreshToken) error {
	const op = "storage.sqlite.SaveRefreshToken"

	stmt, err := s.db.Prepare(`
		INSERT INTO refresh_tokens (token_hash, account_id, generation, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, token.TokenHash, token.AccountID, token.Generation, token.ExpiresAt.UTC(), token.Revoked, token.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) RefreshToken(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	const op = "storage.sqlite.RefreshToken"

	stmt, err := s.db.Prepare(`
		SELECT token_hash, account_id, generation, expires_at, revoked, created_at
		FROM refresh_tokens WHERE token_hash = ?
	`)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	var token models.RefreshToken
	err = stmt.QueryRowContext(ctx, tokenHash).Scan(&token.TokenHash, &token.AccountID, &token.Generation, &token.ExpiresAt, &token.Revoked, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RefreshToken{}, fmt.Errorf("%s: %w", op, storage.ErrRefreshTokenNotFound)
		}
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func (s *Storage) RevokeRefreshTokens(ctx context.Context, accountID string) error {
	const op = "storage.sqlite.RevokeRefreshTokens"

	stmt, err := s.db.Prepare("UPDATE refresh_tokens SET revoked = 1 WHERE account_id = ? AND revoked = 0")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	if _, err = stmt.ExecContext(ctx, accountID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

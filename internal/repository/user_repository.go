package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/account-auth/internal/model"
)

const userColumns = "id,email,email_verified,password_hash,session_version,created_at,updated_at"

type UserRepo struct{ DB DBTX }

func NewUserRepo(db DBTX) *UserRepo { return &UserRepo{DB: db} }

// NormalizeEmail lower-cases and trims an address so lookups and the
// unique index compare case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.EmailVerified, &u.PasswordHash, &u.SessionVersion, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1",
		NormalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetSessionVersion reads the durable session version of a user.
func (r *UserRepo) GetSessionVersion(ctx context.Context, id uint64) (uint64, error) {
	var v uint64
	err := r.DB.QueryRowContext(ctx, "SELECT session_version FROM users WHERE id=?", id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("select session version: %w", err)
	}
	return v, nil
}

// SessionVersionForUpdateTx reads the session version inside tx and locks
// the row until tx ends.
func (r *UserRepo) SessionVersionForUpdateTx(ctx context.Context, tx DBTX, id uint64) (uint64, error) {
	var v uint64
	err := tx.QueryRowContext(ctx, "SELECT session_version FROM users WHERE id=? FOR UPDATE", id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("select session version for update: %w", err)
	}
	return v, nil
}

// InsertTx creates an unverified user inside tx and returns its id.
// A unique key violation on email yields ErrDuplicateEmail.
func (r *UserRepo) InsertTx(ctx context.Context, tx DBTX, email, passwordHash string) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, email_verified, password_hash, session_version) VALUES (?,0,?,1)",
		NormalizeEmail(email), passwordHash)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return uint64(id), nil
}

// MarkEmailVerifiedTx flags the user's address as confirmed.
func (r *UserRepo) MarkEmailVerifiedTx(ctx context.Context, tx DBTX, id uint64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET email_verified=1, updated_at=UTC_TIMESTAMP() WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return expectOne(res)
}

// UpdatePasswordHashTx replaces the stored password hash.
func (r *UserRepo) UpdatePasswordHashTx(ctx context.Context, tx DBTX, id uint64, passwordHash string) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=UTC_TIMESTAMP() WHERE id=?", passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return expectOne(res)
}

// BumpSessionVersionTx increments the durable session version.
func (r *UserRepo) BumpSessionVersionTx(ctx context.Context, tx DBTX, id uint64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET session_version=session_version+1 WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("bump session version: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

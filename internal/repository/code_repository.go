package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// codeTable describes one single-use code table. Both code kinds share
// the same shape and differ only in table and consumption column.
type codeTable struct {
	name     string
	consumed string
}

var (
	confirmationCodes = codeTable{name: "users_email_confirmation_codes", consumed: "confirmed_at"}
	resetCodes        = codeTable{name: "users_password_reset_codes", consumed: "used_at"}
)

// CodeRepo persists email confirmation and password reset codes. A code
// is valid only while it is unconsumed and not yet expired; consuming it
// twice affects zero rows.
type CodeRepo struct {
	DB  DBTX
	now func() time.Time
}

func NewCodeRepo(db DBTX) *CodeRepo { return &CodeRepo{DB: db, now: time.Now} }

func (r *CodeRepo) insertTx(ctx context.Context, tx DBTX, t codeTable, userID uint64, code string, expiresAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO "+t.name+" (user_id, code, expires_at) VALUES (?,?,?)",
		userID, code, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert into %s: %w", t.name, err)
	}
	return nil
}

func (r *CodeRepo) userIDByCode(ctx context.Context, t codeTable, code string) (uint64, error) {
	var userID uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id FROM "+t.name+" WHERE code=? AND expires_at>? AND "+t.consumed+" IS NULL LIMIT 1",
		code, r.now().UTC()).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("select from %s: %w", t.name, err)
	}
	return userID, nil
}

// markUsedTx consumes a code that is still unused and unexpired at the
// time of the update.
func (r *CodeRepo) markUsedTx(ctx context.Context, tx DBTX, t codeTable, code string) error {
	now := r.now().UTC()
	res, err := tx.ExecContext(ctx,
		"UPDATE "+t.name+" SET "+t.consumed+"=? WHERE code=? AND "+t.consumed+" IS NULL AND expires_at>?",
		now, code, now)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	return expectOne(res)
}

// InsertConfirmationCodeTx stores a new email confirmation code.
func (r *CodeRepo) InsertConfirmationCodeTx(ctx context.Context, tx DBTX, userID uint64, code string, expiresAt time.Time) error {
	return r.insertTx(ctx, tx, confirmationCodes, userID, code, expiresAt)
}

// GetUserIDByConfirmationCode returns the owner of a valid confirmation
// code, or ErrNotFound when the code is unknown, expired or consumed.
func (r *CodeRepo) GetUserIDByConfirmationCode(ctx context.Context, code string) (uint64, error) {
	return r.userIDByCode(ctx, confirmationCodes, code)
}

// MarkConfirmationCodeUsedTx sets confirmed_at. ErrNoRowsAffected when the
// code was already consumed or has expired.
func (r *CodeRepo) MarkConfirmationCodeUsedTx(ctx context.Context, tx DBTX, code string) error {
	return r.markUsedTx(ctx, tx, confirmationCodes, code)
}

// InsertResetCodeTx stores a new password reset code.
func (r *CodeRepo) InsertResetCodeTx(ctx context.Context, tx DBTX, userID uint64, code string, expiresAt time.Time) error {
	return r.insertTx(ctx, tx, resetCodes, userID, code, expiresAt)
}

// GetUserIDByResetCode returns the owner of a valid reset code.
func (r *CodeRepo) GetUserIDByResetCode(ctx context.Context, code string) (uint64, error) {
	return r.userIDByCode(ctx, resetCodes, code)
}

// MarkResetCodeUsedTx sets used_at.
func (r *CodeRepo) MarkResetCodeUsedTx(ctx context.Context, tx DBTX, code string) error {
	return r.markUsedTx(ctx, tx, resetCodes, code)
}

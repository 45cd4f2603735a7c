package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodeRepoWithMock(t *testing.T, now time.Time) (*CodeRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := NewCodeRepo(db)
	repo.now = func() time.Time { return now }
	return repo, mock
}

func TestCodeRepo_InsertConfirmationCodeTx(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	repo, mock := newCodeRepoWithMock(t, now)
	exp := now.Add(24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users_email_confirmation_codes (user_id, code, expires_at) VALUES (?,?,?)")).
		WithArgs(uint64(1), "abc", exp).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.InsertConfirmationCodeTx(context.Background(), repo.DB, 1, "abc", exp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCodeRepo_GetUserIDByConfirmationCode_FiltersExpiredAndConsumed(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	repo, mock := newCodeRepoWithMock(t, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM users_email_confirmation_codes WHERE code=? AND expires_at>? AND confirmed_at IS NULL LIMIT 1")).
		WithArgs("abc", now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(42))

	id, err := repo.GetUserIDByConfirmationCode(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
}

func TestCodeRepo_GetUserIDByResetCode_NotFound(t *testing.T) {
	now := time.Now().UTC()
	repo, mock := newCodeRepoWithMock(t, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM users_password_reset_codes WHERE code=? AND expires_at>? AND used_at IS NULL LIMIT 1")).
		WithArgs("gone", now).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUserIDByResetCode(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCodeRepo_MarkUsed_SecondTimeAffectsNothing(t *testing.T) {
	now := time.Now().UTC()
	repo, mock := newCodeRepoWithMock(t, now)
	q := regexp.QuoteMeta("UPDATE users_password_reset_codes SET used_at=? WHERE code=? AND used_at IS NULL AND expires_at>?")
	mock.ExpectExec(q).WithArgs(now, "abc", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(now, "abc", now).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkResetCodeUsedTx(context.Background(), repo.DB, "abc"))
	assert.ErrorIs(t, repo.MarkResetCodeUsedTx(context.Background(), repo.DB, "abc"), ErrNoRowsAffected)
}

func TestCodeRepo_MarkConfirmationCodeUsedTx(t *testing.T) {
	now := time.Now().UTC()
	repo, mock := newCodeRepoWithMock(t, now)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users_email_confirmation_codes SET confirmed_at=? WHERE code=? AND confirmed_at IS NULL AND expires_at>?")).
		WithArgs(now, "abc", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkConfirmationCodeUsedTx(context.Background(), repo.DB, "abc"))
}

func TestCodeRepo_MarkUsed_ExpiredAtUpdateAffectsNothing(t *testing.T) {
	now := time.Now().UTC()
	repo, mock := newCodeRepoWithMock(t, now)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users_password_reset_codes SET used_at=? WHERE code=? AND used_at IS NULL AND expires_at>?")).
		WithArgs(now, "abc", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkResetCodeUsedTx(context.Background(), repo.DB, "abc")
	assert.ErrorIs(t, err, ErrNoRowsAffected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginHistoryRepo_InsertTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users_login_history (user_id, ip_address) VALUES (?,?)")).
		WithArgs(uint64(3), "10.0.0.1").
		WillReturnResult(sqlmock.NewResult(1, 0))

	err = NewLoginHistoryRepo().InsertTx(context.Background(), db, 3, "10.0.0.1")
	assert.ErrorIs(t, err, ErrNoRowsAffected)
}

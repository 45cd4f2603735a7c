package repository

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, *bytes.Buffer) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	buf := &bytes.Buffer{}
	return NewStore(db, zerolog.New(buf)), mock, buf
}

func TestUnitOfWork_CommitRunsHooks(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Close()

	var order []string
	uow.AfterCommit(func() { order = append(order, "first") })
	uow.AfterCommit(func() { order = append(order, "second") })

	_, err = uow.ExecContext(context.Background(), "INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	require.NoError(t, uow.Commit())

	assert.Equal(t, []string{"first", "second"}, order)
	assert.ErrorIs(t, uow.Commit(), ErrUnitOfWorkDone)
	assert.ErrorIs(t, uow.Rollback(), ErrUnitOfWorkDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_RollbackDropsHooks(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Close()

	ran := false
	uow.AfterCommit(func() { ran = true })
	require.NoError(t, uow.Rollback())

	assert.False(t, ran)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_CloseForcesRollback(t *testing.T) {
	store, mock, logs := newStoreWithMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	ran := false
	uow.AfterCommit(func() { ran = true })

	uow.Close()
	uow.Close()

	assert.False(t, ran)
	assert.Contains(t, logs.String(), "forcing rollback")
	assert.Contains(t, logs.String(), `"level":"warn"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_CloseAfterCommitIsNoop(t *testing.T) {
	store, mock, logs := newStoreWithMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, uow.Commit())
	uow.Close()

	assert.Empty(t, logs.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_CommitFailureSkipsHooks(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(sql.ErrConnDone)

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Close()

	ran := false
	uow.AfterCommit(func() { ran = true })

	err = uow.Commit()
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.False(t, ran)
}

func TestStore_BeginError(t *testing.T) {
	store, mock, _ := newStoreWithMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	_, err := store.Begin(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool exhausted")
}

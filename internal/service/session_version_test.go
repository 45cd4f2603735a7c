package service

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/account-auth/internal/repository"
)

func newTracker(t *testing.T) (*RedisVersionTracker, *repository.Store, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisVersionTracker(rdb, repository.NewUserRepo(db), zerolog.Nop()), repository.NewStore(db, zerolog.Nop()), mock, mr
}

const selectVersion = "SELECT session_version FROM users WHERE id=?"

func TestGetVersion_CacheHit(t *testing.T) {
	tr, _, mock, mr := newTracker(t)
	require.NoError(t, mr.Set("session-version:5", "9"))

	v, err := tr.GetVersion(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "9", v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVersion_MissRefillsCache(t *testing.T) {
	tr, _, mock, mr := newTracker(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectVersion)).WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"session_version"}).AddRow(2))

	v, err := tr.GetVersion(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	got, _ := mr.Get("session-version:5")
	assert.Equal(t, "2", got)
	assert.Equal(t, 30*time.Minute, mr.TTL("session-version:5"))
}

func TestGetVersion_UnknownUserDefaultsToOne(t *testing.T) {
	tr, _, mock, mr := newTracker(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectVersion)).WillReturnRows(sqlmock.NewRows([]string{"session_version"}))

	v, err := tr.GetVersion(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionVersion, v)
	assert.False(t, mr.Exists("session-version:5"))
}

func TestGetVersion_RedisDownFallsBackToDatabase(t *testing.T) {
	tr, _, mock, mr := newTracker(t)
	mr.Close()
	mock.ExpectQuery(regexp.QuoteMeta(selectVersion)).
		WillReturnRows(sqlmock.NewRows([]string{"session_version"}).AddRow(4))

	v, err := tr.GetVersion(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "4", v)
}

const (
	bumpVersion     = "UPDATE users SET session_version=session_version+1"
	selectForUpdate = "SELECT session_version FROM users WHERE id=? FOR UPDATE"
)

func expectBump(mock sqlmock.Sqlmock, userID uint64, next int) {
	mock.ExpectExec(regexp.QuoteMeta(bumpVersion)).
		WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(selectForUpdate)).
		WithArgs(userID).WillReturnRows(sqlmock.NewRows([]string{"session_version"}).AddRow(next))
}

func TestBumpVersion_AdvancesCacheAfterCommitOnly(t *testing.T) {
	tr, store, mock, mr := newTracker(t)
	require.NoError(t, mr.Set("session-version:5", "1"))

	mock.ExpectBegin()
	expectBump(mock, 5, 2)
	mock.ExpectRollback()
	mock.ExpectBegin()
	expectBump(mock, 5, 2)
	mock.ExpectCommit()

	ctx := context.Background()
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.BumpVersion(ctx, 5, uow))
	require.NoError(t, uow.Rollback())
	got, _ := mr.Get("session-version:5")
	assert.Equal(t, "1", got)

	uow, err = store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.BumpVersion(ctx, 5, uow))
	got, _ = mr.Get("session-version:5")
	assert.Equal(t, "1", got)
	require.NoError(t, uow.Commit())

	got, _ = mr.Get("session-version:5")
	assert.Equal(t, "2", got)
	assert.Equal(t, 30*time.Minute, mr.TTL("session-version:5"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBumpVersion_OutOfOrderHooksKeepNewest(t *testing.T) {
	tr, store, mock, mr := newTracker(t)
	ctx := context.Background()

	mock.ExpectBegin()
	expectBump(mock, 5, 4)
	mock.ExpectCommit()
	mock.ExpectBegin()
	expectBump(mock, 5, 3)
	mock.ExpectCommit()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.BumpVersion(ctx, 5, uow))
	require.NoError(t, uow.Commit())

	uow, err = store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.BumpVersion(ctx, 5, uow))
	require.NoError(t, uow.Commit())

	got, _ := mr.Get("session-version:5")
	assert.Equal(t, "4", got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVersion_RefillNeverLowersCachedVersion(t *testing.T) {
	tr, _, mock, mr := newTracker(t)
	require.NoError(t, mr.Set("session-version:5", "4"))
	mock.ExpectQuery(regexp.QuoteMeta(selectVersion)).
		WillReturnRows(sqlmock.NewRows([]string{"session_version"}).AddRow(3))

	v, err := tr.raise(context.Background(), "session-version:5", 3)
	require.NoError(t, err)
	assert.Equal(t, "4", v)
	got, _ := mr.Get("session-version:5")
	assert.Equal(t, "4", got)

	mr.Del("session-version:5")
	v, err = tr.GetVersion(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}

// gatedDB parks a read until release is closed, after signalling on
// reading that the caller has already missed the cache.
type gatedDB struct {
	repository.DBTX
	reading chan struct{}
	release chan struct{}
}

func (g *gatedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	close(g.reading)
	<-g.release
	return g.DBTX.QueryRowContext(ctx, query, args...)
}

func TestGetVersion_StaleRefillDoesNotUndoCommittedBump(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	readDB, readMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = readDB.Close() })
	gate := &gatedDB{DBTX: readDB, reading: make(chan struct{}), release: make(chan struct{})}
	reader := NewRedisVersionTracker(rdb, repository.NewUserRepo(gate), zerolog.Nop())
	readMock.ExpectQuery(regexp.QuoteMeta(selectVersion)).WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"session_version"}).AddRow(3))

	writeDB, writeMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = writeDB.Close() })
	writer := NewRedisVersionTracker(rdb, repository.NewUserRepo(writeDB), zerolog.Nop())
	store := repository.NewStore(writeDB, zerolog.Nop())
	writeMock.ExpectBegin()
	expectBump(writeMock, 5, 4)
	writeMock.ExpectCommit()

	ctx := context.Background()
	type read struct {
		v   string
		err error
	}
	done := make(chan read, 1)
	go func() {
		v, err := reader.GetVersion(ctx, 5)
		done <- read{v, err}
	}()

	<-gate.reading
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, writer.BumpVersion(ctx, 5, uow))
	require.NoError(t, uow.Commit())
	close(gate.release)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, "4", got.v)

	cached, err := mr.Get("session-version:5")
	require.NoError(t, err)
	assert.Equal(t, "4", cached)
	assert.Equal(t, 30*time.Minute, mr.TTL("session-version:5"))
	require.NoError(t, readMock.ExpectationsWereMet())
	require.NoError(t, writeMock.ExpectationsWereMet())
}

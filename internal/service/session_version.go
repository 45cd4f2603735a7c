package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/account-auth/internal/repository"
)

const (
	sessionVersionPrefix = "session-version:"
	sessionVersionTTL    = 30 * time.Minute

	// DefaultSessionVersion is the version of a user whose counter has
	// never been bumped.
	DefaultSessionVersion = "1"
)

// raiseVersionScript sets KEYS[1] to ARGV[1] with a PX of ARGV[2] only
// when the key is missing or holds a smaller number. It returns the value
// left in the key.
var raiseVersionScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local cur = tonumber(current)
if cur ~= nil and cur >= tonumber(ARGV[1]) then
	return current
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return ARGV[1]
`)

// VersionTracker exposes the per-user session version. Claims carrying
// any other version are treated as invalidated.
type VersionTracker interface {
	GetVersion(ctx context.Context, userID uint64) (string, error)
	BumpVersion(ctx context.Context, userID uint64, uow *repository.UnitOfWork) error
}

// RedisVersionTracker caches users.session_version in Redis with a read
// through policy. The column is authoritative.
type RedisVersionTracker struct {
	rdb   *redis.Client
	users *repository.UserRepo
	ttl   time.Duration
	log   zerolog.Logger
}

// NewRedisVersionTracker returns a tracker backed by rdb and users.
func NewRedisVersionTracker(rdb *redis.Client, users *repository.UserRepo, log zerolog.Logger) *RedisVersionTracker {
	return &RedisVersionTracker{
		rdb:   rdb,
		users: users,
		ttl:   sessionVersionTTL,
		log:   log.With().Str("component", "session_version").Logger(),
	}
}

func sessionVersionKey(userID uint64) string {
	return sessionVersionPrefix + strconv.FormatUint(userID, 10)
}

// GetVersion returns the cached version, refilling the cache from the
// database on a miss. Redis failures degrade to a database read.
func (t *RedisVersionTracker) GetVersion(ctx context.Context, userID uint64) (string, error) {
	key := sessionVersionKey(userID)
	v, err := t.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return v, nil
	case !errors.Is(err, redis.Nil):
		t.log.Warn().Err(err).Uint64("user_id", userID).Msg("session version cache read failed, using database")
	}

	n, err := t.users.GetSessionVersion(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return DefaultSessionVersion, nil
	}
	if err != nil {
		return "", fmt.Errorf("load session version: %w", err)
	}
	v = strconv.FormatUint(n, 10)
	cached, err := t.raise(ctx, key, n)
	if err != nil {
		t.log.Warn().Err(err).Uint64("user_id", userID).Msg("session version cache fill failed")
		return v, nil
	}
	return cached, nil
}

// BumpVersion increments the durable counter inside uow and, once uow
// commits, advances the cached value to the committed version. A rolled
// back uow leaves the cache untouched.
func (t *RedisVersionTracker) BumpVersion(ctx context.Context, userID uint64, uow *repository.UnitOfWork) error {
	if err := t.users.BumpSessionVersionTx(ctx, uow, userID); err != nil {
		return err
	}
	next, err := t.users.SessionVersionForUpdateTx(ctx, uow, userID)
	if err != nil {
		return err
	}
	key := sessionVersionKey(userID)
	hookCtx := context.WithoutCancel(ctx)
	uow.AfterCommit(func() {
		if _, err := t.raise(hookCtx, key, next); err != nil {
			t.log.Error().Err(err).Uint64("user_id", userID).Uint64("version", next).Msg("session version cache update failed")
			if err := t.rdb.Del(hookCtx, key).Err(); err != nil {
				t.log.Error().Err(err).Uint64("user_id", userID).Msg("session version cache invalidation failed")
			}
		}
	})
	return nil
}

// raise stores v under key unless the cache already holds a version at
// least as new, and returns whichever value is cached afterwards. The
// cached version never moves backwards.
func (t *RedisVersionTracker) raise(ctx context.Context, key string, v uint64) (string, error) {
	return raiseVersionScript.Run(ctx, t.rdb, []string{key},
		strconv.FormatUint(v, 10), t.ttl.Milliseconds()).Text()
}

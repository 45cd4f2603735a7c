package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rate limit purposes for outbound email.
const (
	PurposeForgotPassword             = "forgot-password-email"
	PurposeForgotPasswordConfirmation = "forgot-password-confirmation-email"
)

// EmailRateLimiter is a fixed window counter per key. The window starts
// at the first hit.
type EmailRateLimiter struct {
	rdb    *redis.Client
	max    int64
	window time.Duration
}

// NewEmailRateLimiter allows max sends per key within window.
func NewEmailRateLimiter(rdb *redis.Client, max int64, window time.Duration) *EmailRateLimiter {
	return &EmailRateLimiter{rdb: rdb, max: max, window: window}
}

// IPKey and EmailKey build the two budgets checked for each purpose.
func IPKey(purpose, ip string) string { return purpose + "-by-ip-" + ip }

func EmailKey(purpose, email string) string { return purpose + "-by-email-" + email }

// incrWindowScript counts one hit on KEYS[1] and starts the window of
// ARGV[1] milliseconds on the first hit. A counter found without an
// expiry gets one as well.
var incrWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) == -1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Allow records one attempt on key and reports whether it is within
// budget.
func (l *EmailRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	n, err := incrWindowScript.Run(ctx, l.rdb, []string{key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", key, err)
	}
	return n <= l.max, nil
}

// AllowBoth checks the ip budget and then the email budget. Both must
// permit the send.
func (l *EmailRateLimiter) AllowBoth(ctx context.Context, purpose, ip, email string) (bool, error) {
	ok, err := l.Allow(ctx, IPKey(purpose, ip))
	if err != nil || !ok {
		return false, err
	}
	return l.Allow(ctx, EmailKey(purpose, email))
}

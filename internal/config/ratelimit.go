package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig describes one token-bucket policy applied per client IP.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig builds the named policy. A policy allows capacity
// requests per window and refills one token every window/capacity.
// Environment variables are namespaced by policy, e.g.
// RATE_LIMIT_AUTH_CAPACITY for the "auth" policy.
func LoadRateLimitConfig(policy string, capacity int, window time.Duration) RateLimitConfig {
	p := "RATE_LIMIT_" + strings.ToUpper(policy) + "_"
	capacity = envInt(p+"CAPACITY", capacity)
	window = envDur(p+"WINDOW", window)
	if capacity < 1 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true) && envBool(p+"ENABLED", true),
		Capacity:       capacity,
		RefillTokens:   1,
		RefillInterval: window / time.Duration(capacity),
		TTL:            envDur(p+"TTL", 10*time.Minute),
		KeyStrategy:    envStr(p+"KEY_STRATEGY", "ip"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl") + ":" + strings.ToLower(policy),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

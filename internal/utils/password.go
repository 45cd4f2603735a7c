package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Password hashes are stored as "<version>:<base64 salt>:<base64 key>".
// The version names the argon2id parameter set; records carrying any
// other version are rejected rather than verified with the wrong
// parameters.
const (
	HashVersion = "argon2id-v1"

	argonMemoryKiB = 64 * 1024 // 64 MiB
	argonTime      = 4
	argonThreads   = 8
	argonSaltLen   = 16
	argonKeyLen    = 32
)

// HashPassword derives an argon2id key with a fresh random salt and
// returns the versioned record.
func HashPassword(plain string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, argonTime, argonMemoryKiB, argonThreads, argonKeyLen)
	return HashVersion + ":" + base64.StdEncoding.EncodeToString(salt) + ":" + base64.StdEncoding.EncodeToString(key), nil
}

// VerifyPassword recomputes the key for plain and compares it in constant
// time. Malformed records and unknown versions never verify.
func VerifyPassword(record, plain string) bool {
	parts := strings.SplitN(record, ":", 3)
	if len(parts) != 3 || parts[0] != HashVersion {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(want) != argonKeyLen {
		return false
	}
	got := argon2.IDKey([]byte(plain), salt, argonTime, argonMemoryKiB, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}

package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// CodeBytes is the entropy of confirmation and reset codes (256 bits).
const CodeBytes = 32

// NewCode returns a 64 character hex code for email confirmation or
// password reset links.
func NewCode() (string, error) {
	return randomHex(CodeBytes)
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

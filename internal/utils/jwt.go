package utils // package utils provides password hashing, code generation and session claims signing

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/account-auth/internal/model"
)

// ErrInvalidClaims is returned by Parse for tokens that fail signature,
// expiry or shape checks.
var ErrInvalidClaims = errors.New("invalid session claims")

// ClaimsIssuer signs and verifies the session claims bundle (HS256).
type ClaimsIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewClaimsIssuer returns an issuer whose bundles expire after ttl.
func NewClaimsIssuer(secret string, ttl time.Duration) *ClaimsIssuer {
	return &ClaimsIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue builds and signs a bundle for a verified login. The session
// version is embedded as given so a later bump invalidates it.
func (i *ClaimsIssuer) Issue(userID uint64, email, sessionVersion string) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	claims := model.Claims{
		Email:          email,
		Role:           model.RoleUser,
		SessionVersion: sessionVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign claims: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a signed bundle and returns its claims.
func (i *ClaimsIssuer) Parse(raw string) (*model.Claims, error) {
	claims := &model.Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Subject == "" || claims.Role != model.RoleUser || claims.SessionVersion == "" {
		return nil, ErrInvalidClaims
	}
	if _, err := strconv.ParseUint(claims.Subject, 10, 64); err != nil {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// UserID returns the numeric subject of parsed claims.
func UserID(c *model.Claims) uint64 {
	id, _ := strconv.ParseUint(c.Subject, 10, 64)
	return id
}

package model

import "github.com/golang-jwt/jwt/v5"

// Claims is the signed bundle carried by the client in the session
// cookie. Subject holds the user id. It is built once at login and only
// read afterwards.
type Claims struct {
	Email          string `json:"email"`
	Role           string `json:"role"`
	SessionVersion string `json:"sessionVersion"`
	jwt.RegisteredClaims
}

package middleware

// identity.go holds the context accessors shared by the middleware and
// the handlers. SessionAuth stores the verified claims under claimsKey
// and mirrors the subject and role as "user_id" and "role".

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-auth/internal/model"
)

const claimsKey = "claims"

// Claims returns the verified claims of the current request, or nil when
// the request did not pass SessionAuth.
func Claims(c echo.Context) *model.Claims {
	cl, _ := c.Get(claimsKey).(*model.Claims)
	return cl
}

// UserID returns the authenticated subject or "anon".
func UserID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	return "anon"
}

package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/account-auth/internal/service"
	"github.com/iliyamo/account-auth/internal/utils"
)

// CookieOptions describe the session cookie carrying the signed claims.
type CookieOptions struct {
	Name   string
	Secure bool
}

// SetSessionCookie stores a signed claims bundle in the session cookie.
func SetSessionCookie(c echo.Context, opts CookieOptions, token string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     opts.Name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RevokeSession clears the session cookie.
func RevokeSession(c echo.Context, opts CookieOptions) {
	c.SetCookie(&http.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionAuth authenticates requests by the session cookie. The claims
// must verify and carry the user's current session version; a stale
// version clears the cookie and answers 401 "Session invalidated.".
// On success the claims are stored in the context (see Claims, UserID).
func SessionAuth(issuer *utils.ClaimsIssuer, tracker service.VersionTracker, opts CookieOptions, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(opts.Name)
			if err != nil || cookie.Value == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": service.MsgUnauthorized})
			}
			claims, err := issuer.Parse(cookie.Value)
			if err != nil {
				RevokeSession(c, opts)
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": service.MsgUnauthorized})
			}

			uid := utils.UserID(claims)
			current, err := tracker.GetVersion(c.Request().Context(), uid)
			if err != nil {
				log.Error().Err(err).Uint64("user_id", uid).Msg("session version lookup failed")
				return c.JSON(http.StatusInternalServerError, echo.Map{"message": service.MsgUnexpected})
			}
			if current != claims.SessionVersion {
				RevokeSession(c, opts)
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": service.MsgSessionInvalidated})
			}

			c.Set(claimsKey, claims)
			c.Set("user_id", claims.Subject)
			c.Set("role", claims.Role)
			return next(c)
		}
	}
}

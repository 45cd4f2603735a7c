package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/account-auth/internal/middleware"
	"github.com/iliyamo/account-auth/internal/model"
	"github.com/iliyamo/account-auth/internal/service"
	"github.com/iliyamo/account-auth/internal/utils"
)

// Accounts is the workflow surface used by AuthHandler.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) service.Result
	ConfirmEmail(ctx context.Context, code string) service.Result
	Login(ctx context.Context, in service.LoginInput) (service.Result, *model.Claims)
	ForgotPassword(ctx context.Context, in service.ForgotPasswordInput) service.Result
	ConfirmForgotPassword(ctx context.Context, in service.ConfirmForgotPasswordInput) service.Result
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	accounts Accounts
	issuer   *utils.ClaimsIssuer
	cookie   middleware.CookieOptions
	log      zerolog.Logger
}

func NewAuthHandler(accounts Accounts, issuer *utils.ClaimsIssuer, cookie middleware.CookieOptions, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, issuer: issuer, cookie: cookie, log: log.With().Str("component", "auth_handler").Logger()}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=12,max=128"`
}

type loginReq struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type confirmEmailReq struct {
	Code string `json:"code" query:"code" validate:"required,hexadecimal,len=64"`
}

type forgotPasswordReq struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type forgotPasswordConfirmReq struct {
	Code            string `json:"code"            validate:"required,hexadecimal,len=64"`
	Password        string `json:"password"        validate:"required,min=12,max=128"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type profileResp struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// statusFor maps a workflow outcome to an HTTP status.
func statusFor(k service.Kind) int {
	switch k {
	case service.KindSuccess:
		return http.StatusOK
	case service.KindInvalidCredentials:
		return http.StatusUnauthorized
	case service.KindEmailNotVerified:
		return http.StatusForbidden
	case service.KindInvalidCode:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respond(c echo.Context, r service.Result) error {
	return c.JSON(statusFor(r.Kind), echo.Map{"message": r.Message})
}

// Register: create an unverified account and mail a confirmation link.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	return respond(c, h.accounts.Register(c.Request().Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
	}))
}

// ConfirmEmail: consume the code from the confirmation link.
func (h *AuthHandler) ConfirmEmail(c echo.Context) error {
	var req confirmEmailReq
	if err := c.Bind(&req); err != nil || c.Validate(&req) != nil {
		return respond(c, service.Result{Kind: service.KindInvalidCode, Message: service.MsgInvalidLink})
	}
	return respond(c, h.accounts.ConfirmEmail(c.Request().Context(), req.Code))
}

// Login: verify credentials and set the session cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil || c.Validate(&req) != nil {
		return respond(c, service.Result{Kind: service.KindInvalidCredentials, Message: service.MsgInvalidCredentials})
	}

	res, claims := h.accounts.Login(c.Request().Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		IP:       c.RealIP(),
	})
	if !res.OK() {
		return respond(c, res)
	}

	token, exp, err := h.issuer.Issue(utils.UserID(claims), claims.Email, claims.SessionVersion)
	if err != nil {
		h.log.Error().Err(err).Msg("sign session claims")
		return respond(c, service.Result{Kind: service.KindUnexpected, Message: service.MsgUnexpected})
	}
	middleware.SetSessionCookie(c, h.cookie, token, exp)
	return respond(c, res)
}

// Logout clears the session cookie. It needs no valid session.
func (h *AuthHandler) Logout(c echo.Context) error {
	middleware.RevokeSession(c, h.cookie)
	return c.JSON(http.StatusOK, echo.Map{"message": service.MsgLogoutSuccess})
}

// ForgotPassword always answers with the same message.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil || c.Validate(&req) != nil {
		return c.JSON(http.StatusOK, echo.Map{"message": service.MsgResetLinkSent})
	}
	return respond(c, h.accounts.ForgotPassword(c.Request().Context(), service.ForgotPasswordInput{
		Email: req.Email,
		IP:    c.RealIP(),
	}))
}

// ForgotPasswordConfirmation sets a new password from a reset code.
func (h *AuthHandler) ForgotPasswordConfirmation(c echo.Context) error {
	var req forgotPasswordConfirmReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	res := h.accounts.ConfirmForgotPassword(c.Request().Context(), service.ConfirmForgotPasswordInput{
		Code:        req.Code,
		NewPassword: req.Password,
		IP:          c.RealIP(),
	})
	if res.OK() {
		middleware.RevokeSession(c, h.cookie)
	}
	return respond(c, res)
}

// Me is an authenticated probe; SessionAuth answers unauthenticated calls.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"message": service.MsgAuthenticated})
}

// CurrentProfile returns the identity carried by the session.
func (h *AuthHandler) CurrentProfile(c echo.Context) error {
	cl := middleware.Claims(c)
	if cl == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": service.MsgUnauthorized})
	}
	return c.JSON(http.StatusOK, profileResp{ID: cl.Subject, Email: cl.Email})
}

package service

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/iliyamo/account-auth/internal/mail"
	"github.com/iliyamo/account-auth/internal/model"
	"github.com/iliyamo/account-auth/internal/repository"
	"github.com/iliyamo/account-auth/internal/utils"
)

const (
	confirmationCodeTTL = 24 * time.Hour
	resetCodeTTL        = time.Hour
)

// RegisterInput is the registration request.
type RegisterInput struct {
	Email    string
	Password string
}

// LoginInput is the login request. IP is recorded in the login history.
type LoginInput struct {
	Email    string
	Password string
	IP       string
}

// ForgotPasswordInput requests a reset link.
type ForgotPasswordInput struct {
	Email string
	IP    string
}

// ConfirmForgotPasswordInput redeems a reset code.
type ConfirmForgotPasswordInput struct {
	Code        string
	NewPassword string
	IP          string
}

// AppInfo feeds the email templates and links.
type AppInfo struct {
	Name         string
	BaseURL      string
	SupportEmail string
}

// AccountService runs the account workflows. Each workflow opens at most
// one unit of work and finishes it before returning.
type AccountService struct {
	store   *repository.Store
	users   *repository.UserRepo
	codes   *repository.CodeRepo
	history *repository.LoginHistoryRepo
	tracker VersionTracker
	limiter *EmailRateLimiter
	sender  mail.Sender
	app     AppInfo
	now     func() time.Time
	log     zerolog.Logger
}

// NewAccountService wires the workflows to their collaborators.
func NewAccountService(store *repository.Store, tracker VersionTracker, limiter *EmailRateLimiter, sender mail.Sender, app AppInfo, log zerolog.Logger) *AccountService {
	return &AccountService{
		store:   store,
		users:   repository.NewUserRepo(store.DB()),
		codes:   repository.NewCodeRepo(store.DB()),
		history: repository.NewLoginHistoryRepo(),
		tracker: tracker,
		limiter: limiter,
		sender:  sender,
		app:     app,
		now:     time.Now,
		log:     log.With().Str("component", "account_service").Logger(),
	}
}

// Register creates an unverified user and mails a confirmation link. The
// user row and code are only committed once the email was handed off. A
// duplicate email answers exactly like success.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) Result {
	email := repository.NormalizeEmail(in.Email)

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		s.log.Error().Err(err).Msg("hash password")
		return unexpected()
	}
	code, err := utils.NewCode()
	if err != nil {
		s.log.Error().Err(err).Msg("generate confirmation code")
		return unexpected()
	}

	uow, err := s.store.Begin(ctx)
	if err != nil {
		s.storeError(err, "registration: begin")
		return unexpected()
	}
	defer uow.Close()

	userID, err := s.users.InsertTx(ctx, uow, email, hash)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		s.abort(uow)
		s.log.Warn().Str("email", email).Msg("registration for existing email")
		return success(MsgRegistered)
	}
	if err != nil {
		s.abort(uow)
		s.storeError(err, "registration: insert user")
		return unexpected()
	}
	if err := s.codes.InsertConfirmationCodeTx(ctx, uow, userID, code, s.now().Add(confirmationCodeTTL)); err != nil {
		s.abort(uow)
		s.storeError(err, "registration: insert confirmation code")
		return unexpected()
	}

	if err := s.sender.SendTemplatedEmail(ctx, email, mail.TemplateRegistration, map[string]string{
		"APP_NAME":          s.app.Name,
		"CONFIRMATION_LINK": s.ConfirmationLink(code),
		"SUPPORT_EMAIL":     s.app.SupportEmail,
		"BASE_URL":          s.app.BaseURL,
	}); err != nil {
		s.abort(uow)
		s.log.Error().Err(err).Uint64("user_id", userID).Msg("registration: confirmation email not sent, rolled back")
		return unexpected()
	}

	if err := uow.Commit(); err != nil {
		s.storeError(err, "registration: commit")
		return unexpected()
	}
	s.log.Info().Uint64("user_id", userID).Msg("user registered")
	return success(MsgRegistered)
}

// ConfirmEmail consumes a confirmation code and marks the owner verified.
func (s *AccountService) ConfirmEmail(ctx context.Context, code string) Result {
	code = strings.TrimSpace(code)
	if code == "" {
		return failure(KindInvalidCode, MsgInvalidLink)
	}
	userID, err := s.codes.GetUserIDByConfirmationCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return failure(KindInvalidCode, MsgInvalidLink)
	}
	if err != nil {
		s.storeError(err, "confirm email: lookup code")
		return unexpected()
	}

	uow, err := s.store.Begin(ctx)
	if err != nil {
		s.storeError(err, "confirm email: begin")
		return unexpected()
	}
	defer uow.Close()

	if err := s.users.MarkEmailVerifiedTx(ctx, uow, userID); err != nil {
		s.abort(uow)
		s.storeError(err, "confirm email: mark verified")
		return unexpected()
	}
	if err := s.codes.MarkConfirmationCodeUsedTx(ctx, uow, code); err != nil {
		s.abort(uow)
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return failure(KindInvalidCode, MsgInvalidLink)
		}
		s.storeError(err, "confirm email: mark code used")
		return unexpected()
	}
	if err := uow.Commit(); err != nil {
		s.storeError(err, "confirm email: commit")
		return unexpected()
	}
	s.log.Info().Uint64("user_id", userID).Msg("email confirmed")
	return success(MsgEmailConfirmed)
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnVerify spends one password verification so unknown emails cost the
// same as a wrong password.
func burnVerify(plain string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = utils.HashPassword("not-a-real-password")
	})
	utils.VerifyPassword(dummyHash, plain)
}

// Login verifies credentials, records the login and returns the claims
// to sign. Claims are nil unless the result is a success.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (Result, *model.Claims) {
	user, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		burnVerify(in.Password)
		return failure(KindInvalidCredentials, MsgInvalidCredentials), nil
	}
	if err != nil {
		s.storeError(err, "login: lookup user")
		return unexpected(), nil
	}
	if !utils.VerifyPassword(user.PasswordHash, in.Password) {
		return failure(KindInvalidCredentials, MsgInvalidCredentials), nil
	}
	if !user.EmailVerified {
		return failure(KindEmailNotVerified, MsgEmailNotVerified), nil
	}

	uow, err := s.store.Begin(ctx)
	if err != nil {
		s.storeError(err, "login: begin")
		return unexpected(), nil
	}
	defer uow.Close()

	if err := s.history.InsertTx(ctx, uow, user.ID, in.IP); err != nil {
		s.abort(uow)
		s.storeError(err, "login: record history")
		return unexpected(), nil
	}
	if err := uow.Commit(); err != nil {
		s.storeError(err, "login: commit")
		return unexpected(), nil
	}

	version, err := s.tracker.GetVersion(ctx, user.ID)
	if err != nil {
		s.log.Error().Err(err).Uint64("user_id", user.ID).Msg("login: read session version")
		return unexpected(), nil
	}
	claims := &model.Claims{
		Email:            user.Email,
		Role:             model.RoleUser,
		SessionVersion:   version,
		RegisteredClaims: jwt.RegisteredClaims{Subject: uintToString(user.ID)},
	}
	s.log.Info().Uint64("user_id", user.ID).Str("ip", in.IP).Msg("login succeeded")
	return success(MsgLoginSuccess), claims
}

// ForgotPassword issues a reset code and mails it when both rate limit
// budgets allow. The answer is the same whatever happens.
func (s *AccountService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) Result {
	generic := success(MsgResetLinkSent)

	user, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return generic
	}
	if err != nil {
		s.storeError(err, "forgot password: lookup user")
		return generic
	}

	code, err := utils.NewCode()
	if err != nil {
		s.log.Error().Err(err).Msg("generate reset code")
		return generic
	}
	if err := s.insertResetCode(ctx, user.ID, code); err != nil {
		s.storeError(err, "forgot password: insert reset code")
		return generic
	}

	allowed, err := s.limiter.AllowBoth(ctx, PurposeForgotPassword, in.IP, user.Email)
	if err != nil {
		s.log.Error().Err(err).Msg("forgot password: rate limit check")
		return generic
	}
	if !allowed {
		s.log.Warn().Str("ip", in.IP).Uint64("user_id", user.ID).Msg("forgot password email suppressed by rate limit")
		return generic
	}
	if err := s.sender.SendTemplatedEmail(ctx, user.Email, mail.TemplateForgotPassword, map[string]string{
		"APP_NAME":   s.app.Name,
		"RESET_LINK": s.ResetLink(code, user.Email),
	}); err != nil {
		s.log.Error().Err(err).Uint64("user_id", user.ID).Msg("forgot password email not sent")
	}
	return generic
}

func (s *AccountService) insertResetCode(ctx context.Context, userID uint64, code string) error {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Close()
	if err := s.codes.InsertResetCodeTx(ctx, uow, userID, code, s.now().Add(resetCodeTTL)); err != nil {
		s.abort(uow)
		return err
	}
	return uow.Commit()
}

// ConfirmForgotPassword redeems a reset code: new hash, code consumed and
// session version bumped in one unit of work. Every session issued before
// the reset stops validating.
func (s *AccountService) ConfirmForgotPassword(ctx context.Context, in ConfirmForgotPasswordInput) Result {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return failure(KindInvalidCode, MsgInvalidResetCode)
	}
	userID, err := s.codes.GetUserIDByResetCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return failure(KindInvalidCode, MsgInvalidResetCode)
	}
	if err != nil {
		s.storeError(err, "reset password: lookup code")
		return unexpected()
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.storeError(err, "reset password: lookup user")
		return unexpected()
	}
	hash, err := utils.HashPassword(in.NewPassword)
	if err != nil {
		s.log.Error().Err(err).Msg("hash password")
		return unexpected()
	}

	uow, err := s.store.Begin(ctx)
	if err != nil {
		s.storeError(err, "reset password: begin")
		return unexpected()
	}
	defer uow.Close()

	if err := s.users.UpdatePasswordHashTx(ctx, uow, userID, hash); err != nil {
		s.abort(uow)
		s.storeError(err, "reset password: update hash")
		return unexpected()
	}
	if err := s.codes.MarkResetCodeUsedTx(ctx, uow, code); err != nil {
		s.abort(uow)
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return failure(KindInvalidCode, MsgInvalidResetCode)
		}
		s.storeError(err, "reset password: mark code used")
		return unexpected()
	}
	if err := s.tracker.BumpVersion(ctx, userID, uow); err != nil {
		s.abort(uow)
		s.storeError(err, "reset password: bump session version")
		return unexpected()
	}
	if err := uow.Commit(); err != nil {
		s.storeError(err, "reset password: commit")
		return unexpected()
	}
	s.log.Info().Uint64("user_id", userID).Msg("password reset, sessions invalidated")

	s.notifyPasswordChanged(ctx, user, in.IP)
	return success(MsgPasswordReset)
}

func (s *AccountService) notifyPasswordChanged(ctx context.Context, user model.User, ip string) {
	allowed, err := s.limiter.AllowBoth(ctx, PurposeForgotPasswordConfirmation, ip, user.Email)
	if err != nil {
		s.log.Error().Err(err).Msg("password changed notification: rate limit check")
		return
	}
	if !allowed {
		s.log.Warn().Str("ip", ip).Uint64("user_id", user.ID).Msg("password changed notification suppressed by rate limit")
		return
	}
	if err := s.sender.SendTemplatedEmail(ctx, user.Email, mail.TemplatePasswordChanged, map[string]string{
		"APP_NAME":      s.app.Name,
		"SUPPORT_EMAIL": s.app.SupportEmail,
	}); err != nil {
		s.log.Error().Err(err).Uint64("user_id", user.ID).Msg("password changed notification not sent")
	}
}

// ConfirmationLink is the link mailed after registration.
func (s *AccountService) ConfirmationLink(code string) string {
	return strings.TrimRight(s.app.BaseURL, "/") + "/confirm-email?code=" + url.QueryEscape(code)
}

// ResetLink is the link mailed for a forgot-password request.
func (s *AccountService) ResetLink(code, email string) string {
	q := url.Values{}
	q.Set("code", code)
	q.Set("email", email)
	return strings.TrimRight(s.app.BaseURL, "/") + "/forgot-password-confirmation?" + q.Encode()
}

func (s *AccountService) abort(uow *repository.UnitOfWork) {
	if err := uow.Rollback(); err != nil {
		s.log.Error().Err(err).Msg("rollback failed")
	}
}

// storeError logs a persistence failure with the server error details
// when the driver provides them.
func (s *AccountService) storeError(err error, msg string) {
	ev := s.log.Error().Err(err)
	if num, state, ok := repository.MySQLErrorDetails(err); ok {
		ev = ev.Uint16("mysql_errno", num).Str("sql_state", state)
	}
	ev.Msg(msg)
}

func uintToString(v uint64) string { return strconv.FormatUint(v, 10) }

// Package service holds the account lifecycle engine: registration,
// email confirmation, login, and forgot-password request and
// confirmation. Workflows never leak store errors to callers. They
// answer with a Result carrying a fixed user-facing message.
package service

// Kind classifies the outcome of a workflow.
type Kind int

const (
	KindSuccess Kind = iota
	KindInvalidCredentials
	KindEmailNotVerified
	KindInvalidCode
	KindUnexpected
)

// User-facing messages. Handlers return them verbatim.
const (
	MsgRegistered         = "Registration successful. Please check your email to verify your account."
	MsgEmailConfirmed     = "Email confirmed! Redirecting you to login page."
	MsgInvalidLink        = "This link is invalid or has expired."
	MsgLoginSuccess       = "Login successful! Redirecting.."
	MsgLogoutSuccess      = "Logout successful! Redirecting.."
	MsgInvalidCredentials = "Invalid credentials. Please try again."
	MsgEmailNotVerified   = "Email not verified. Please confirm your email before logging in."
	MsgResetLinkSent      = "If that email exists in our systems, a reset link was sent."
	MsgInvalidResetCode   = "This code is invalid or has expired."
	MsgPasswordReset      = "Password successfully reset! Redirecting you to login page."
	MsgUnexpected         = "An unexpected error occurred. Please try again later."
	MsgAuthenticated      = "Authenticated."
	MsgUnauthorized       = "Unauthorized."
	MsgSessionInvalidated = "Session invalidated."
)

// Result is the outcome of a workflow.
type Result struct {
	Kind    Kind
	Message string
}

// OK reports whether the workflow succeeded.
func (r Result) OK() bool { return r.Kind == KindSuccess }

func success(msg string) Result { return Result{Kind: KindSuccess, Message: msg} }

func failure(kind Kind, msg string) Result { return Result{Kind: kind, Message: msg} }

func unexpected() Result { return failure(KindUnexpected, MsgUnexpected) }

package model

import "time"

// RoleUser is the only role issued by this service.
const RoleUser = "USER"

// User represents an application user record as stored in the
// `users` table. Users are created unverified, flipped to verified by
// email confirmation and never physically deleted.
//
// Fields:
//
//	ID             – primary key identifier of the user.
//	Email          – unique, lower-cased email address.
//	EmailVerified  – whether the address was confirmed.
//	PasswordHash   – versioned argon2id record.
//	SessionVersion – monotonic counter; bumping it invalidates issued sessions.
//	CreatedAt      – timestamp of creation.
//	UpdatedAt      – timestamp of last update.
type User struct {
	ID             uint64    // users.id
	Email          string    // users.email
	EmailVerified  bool      // users.email_verified
	PasswordHash   string    // users.password_hash
	SessionVersion uint64    // users.session_version
	CreatedAt      time.Time // users.created_at
	UpdatedAt      time.Time // users.updated_at
}

// EmailConfirmationCode models a row in `users_email_confirmation_codes`.
// A code is valid only while ConfirmedAt is nil and ExpiresAt is in the
// future.
type EmailConfirmationCode struct {
	UserID      uint64     // users_email_confirmation_codes.user_id
	Code        string     // 64 hex chars (256 bits)
	ExpiresAt   time.Time  // created_at + 24h
	ConfirmedAt *time.Time // set once consumed
}

// PasswordResetCode models a row in `users_password_reset_codes`. Same
// single-use rule as EmailConfirmationCode with a one hour window.
type PasswordResetCode struct {
	UserID    uint64
	Code      string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// LoginHistory models a row in `users_login_history`.
type LoginHistory struct {
	UserID    uint64
	IPAddress string
	CreatedAt time.Time
}

package repository

import (
	"context"
	"fmt"
)

// LoginHistoryRepo records successful logins.
type LoginHistoryRepo struct{}

func NewLoginHistoryRepo() *LoginHistoryRepo { return &LoginHistoryRepo{} }

// InsertTx appends a login row for userID from ip.
func (r *LoginHistoryRepo) InsertTx(ctx context.Context, tx DBTX, userID uint64, ip string) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users_login_history (user_id, ip_address) VALUES (?,?)", userID, ip)
	if err != nil {
		return fmt.Errorf("insert login history: %w", err)
	}
	return expectOne(res)
}

// Package repository is the credential store: MySQL persistence of users,
// email confirmation codes, password reset codes and login history, plus
// the UnitOfWork that groups multi-step mutations into one transaction.
// Every statement uses bound parameters.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when inserting a user whose email already
// exists. Callers use it to answer exactly like a successful registration.
var ErrDuplicateEmail = errors.New("email already exists")

// ErrNoRowsAffected is returned by mutations that are expected to change
// exactly one row but changed none, e.g. consuming an already used code.
var ErrNoRowsAffected = errors.New("no rows affected")

// ErrUnitOfWorkDone is returned when Commit or Rollback is called on a
// unit of work that has already been finished.
var ErrUnitOfWorkDone = errors.New("unit of work already finished")

// mysqlDuplicateEntry is the server error number for unique key violations.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// MySQLErrorDetails extracts the server error number and SQL state for
// operator logs. ok is false for non-server errors.
func MySQLErrorDetails(err error) (number uint16, sqlState string, ok bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return 0, "", false
	}
	return me.Number, string(me.SQLState[:]), true
}

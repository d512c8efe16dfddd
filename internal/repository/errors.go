// Package repository holds the MySQL-backed stores.  Reservation errors
// are reported with the shared taxonomy in package model so that the
// dashboard and the handlers never depend on this package's internals;
// account-specific sentinels live here.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrEmailExists is returned when a staff account with the same email
// is already registered.  Callers translate it into HTTP 409.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenInvalid is returned for refresh tokens that are unknown,
// revoked or expired.
var ErrTokenInvalid = errors.New("refresh token invalid")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

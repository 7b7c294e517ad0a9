package errx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to the unified AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// WrapSQLite maps SQLite errors to the unified AppError. Lock contention is
// reported as retryable.
func WrapSQLite(err error) error {
	if err == nil {
		return nil
	}
	if IsSQLiteConflict(err) {
		return New(err, http.StatusServiceUnavailable, SQLiteBusyMessage)
	}
	return New(err, http.StatusInternalServerError, SQLiteErrorMessage)
}

// IsSQLiteConflict reports SQLITE_BUSY and "database is locked" errors.
func IsSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

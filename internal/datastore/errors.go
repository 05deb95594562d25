// errors.go: sentinel errors and error mapping helpers for database operations
package datastore

import (
	"strings"

	"github.com/ecosense/ecosense-go/internal/errors"
	"gorm.io/gorm"
)

// Sentinel errors surfaced by store operations. Callers match with errors.Is.
var (
	ErrSensorNotFound  = errors.NewStd("sensor not found")
	ErrReadingNotFound = errors.NewStd("reading not found")
	ErrAnomalyNotFound = errors.NewStd("anomaly not found")
	// ErrDuplicateSensor indicates the external device identifier is already registered.
	ErrDuplicateSensor = errors.NewStd("sensor with this external id already exists")
	// ErrSensorMissing indicates a foreign key target sensor does not exist at the storage layer.
	ErrSensorMissing = errors.NewStd("referenced sensor does not exist")
)

// dbError creates a properly categorized database error with context pairs.
func dbError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// validationError creates a validation error for malformed store input.
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", value).
		Build()
}

// notFoundError wraps a sentinel in a not-found categorized error.
func notFoundError(sentinel error, operation string, id any) error {
	return errors.New(sentinel).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("operation", operation).
		Context("id", id).
		Build()
}

// isUniqueViolation reports whether err is a uniqueness constraint violation.
// SQLite reports "UNIQUE constraint failed", MySQL "Duplicate entry".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}

// isForeignKeyViolation reports whether err is a foreign key constraint violation.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "foreign key constraint fails")
}

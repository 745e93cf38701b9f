package database

import (
	stderrors "errors"
	"strings"

	"github.com/lib/pq"

	"github.com/blociq/blociq-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict("a record with these values already exists")

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Invalid date or time value (22007, 22008)
	case "22007", "22008":
		return errors.Unprocessable("invalid date value")

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "due_after_inspection"):
		return errors.Validation(map[string]string{
			"next_due_date": "must not be before last_inspected_at",
		})

	case strings.Contains(constraint, "score_non_negative"):
		return errors.Validation(map[string]string{
			"score": "must not be negative",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

package validation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common validation errors
var (
	ErrInvalidUUID      = fmt.Errorf("invalid UUID format")
	ErrInvalidDateRange = fmt.Errorf("invalid date range")
)

// ValidateUUID accepts only the canonical hyphenated form that IDs are stored in.
func ValidateUUID(id string) error {
	if len(id) != 36 {
		return fmt.Errorf("%w: %s", ErrInvalidUUID, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidUUID, id)
	}
	return nil
}

// ValidateDateRange rejects a range whose end lies before its start. Open ends pass.
func ValidateDateRange(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidDateRange,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

package models

import "fmt"

// ValidationError represents a validation failure on a specific field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// ExtractionError represents a text extraction failure for a single file.
// It is fatal to that one upload only.
type ExtractionError struct {
	File   string
	Format string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s (%s): %v", e.File, e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

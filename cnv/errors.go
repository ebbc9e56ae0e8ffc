package cnv

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Error kinds used throughout the repository:
//
//   validation errors    errors.Invalid       bad input row; recoverable
//   configuration errors errors.Precondition invalid options; fatal
//   integrity errors     errors.Integrity     merged data contradicts raw data; fatal
//
// Callers distinguish them with errors.Is(kind, err).

func newValidationError(r Record, msg string) error {
	if r.Line > 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("line %d: %s (%v)", r.Line, msg, r))
	}
	return errors.E(errors.Invalid, fmt.Sprintf("%s (%v)", msg, r))
}

// RowError returns a validation error for line of the named input.
func RowError(source string, line int, err error) error {
	return errors.E(errors.Invalid, fmt.Sprintf("%s:%d", source, line), err)
}

// IntegrityError returns an errors.Integrity error about the merged record.
func IntegrityError(m MergedRecord, msg string) error {
	return errors.E(errors.Integrity, fmt.Sprintf("%s (%v)", msg, m))
}

// IsValidation reports whether err is a row-level validation error.
func IsValidation(err error) bool { return errors.Is(errors.Invalid, err) }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return errors.Is(errors.Precondition, err) }

// IsIntegrity reports whether err is an integrity error.
func IsIntegrity(err error) bool { return errors.Is(errors.Integrity, err) }

package pipeline

import (
	"errors"
	"fmt"
)

// MalformedOutputError reports that the generation call returned text with
// no extractable JSON, or JSON that failed schema validation. It is not
// retriable without a prompt change, and it is never coerced into an empty
// result, which would be indistinguishable from "nothing found".
type MalformedOutputError struct {
	Stage string
	Err   error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: malformed generation output: %v", e.Stage, e.Err)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// IsMalformedOutput reports whether the error chain contains a
// MalformedOutputError.
func IsMalformedOutput(err error) bool {
	var me *MalformedOutputError
	return errors.As(err, &me)
}

// InsufficientEvidenceError reports that the estimate stage was invoked
// with no usable evidence. It is a business-rule violation, not a
// transport failure; the server surfaces it as a 400.
type InsufficientEvidenceError struct {
	Msg string
}

func (e *InsufficientEvidenceError) Error() string {
	return e.Msg
}

// IsInsufficientEvidence reports whether the error chain contains an
// InsufficientEvidenceError.
func IsInsufficientEvidence(err error) bool {
	var ie *InsufficientEvidenceError
	return errors.As(err, &ie)
}

package errorsx

import (
	"errors"
	"fmt"
)

// reasonedError carries a reason code alongside the underlying cause. The
// code travels with the error across package boundaries so the connection
// supervisor can report machine-readable reasons to clients.
type reasonedError struct {
	reason ReasonCode
	err    error
}

func (e *reasonedError) Error() string {
	if e.err == nil {
		return string(e.reason)
	}
	return string(e.reason) + ": " + e.err.Error()
}

func (e *reasonedError) Unwrap() error { return e.err }

// Wrap attaches a reason code to an error. Nil errors stay nil, and an error
// that already carries a reason keeps its original one.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re *reasonedError
	if errors.As(err, &re) {
		return err
	}
	return &reasonedError{reason: reason, err: err}
}

// Wrapf is Wrap with message formatting around the cause.
func Wrapf(err error, reason ReasonCode, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(fmt.Errorf(format+": %w", append(args, err)...), reason)
}

// Reason extracts the reason code from an error chain, ReasonUnknown when
// none was attached.
func Reason(err error) ReasonCode {
	if err == nil {
		return ReasonUnknown
	}
	var re *reasonedError
	if errors.As(err, &re) {
		return re.reason
	}
	return ReasonUnknown
}

// HasReason reports whether err carries the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

package errorsx

import (
	"errors"
	"fmt"
)

// ReasonedError tags a failure with the reason code reported in metrics and
// the turn_error event. The first reason attached to a chain is the one kept.
type ReasonedError struct {
	Reason ReasonCode
	Err    error
}

func (e ReasonedError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Reason)
}

func (e ReasonedError) Unwrap() error { return e.Err }

func find(err error) (ReasonedError, bool) {
	var re ReasonedError
	ok := err != nil && errors.As(err, &re)
	return re, ok
}

// Wrap tags err with reason. Nil stays nil and an already tagged chain is
// returned untouched.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if _, ok := find(err); ok {
		return err
	}
	return ReasonedError{Reason: reason, Err: err}
}

// Wrapf is Wrap around fmt.Errorf(format+": %w", args..., err).
func Wrapf(err error, reason ReasonCode, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err), reason)
}

func New(reason ReasonCode, msg string) error {
	return ReasonedError{Reason: reason, Err: errors.New(msg)}
}

// Reason returns the innermost reason in err's chain, or ReasonUnknown.
func Reason(err error) ReasonCode {
	if re, ok := find(err); ok {
		return re.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool { return Reason(err) == reason }

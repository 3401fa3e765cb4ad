package dispatch

import (
	"errors"
)

// TransientError marks a delivery failure worth retrying (network, timeout,
// platform hiccup).
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a delivery failure that will not succeed on retry
// (target invalid, sender blocked). The target is excluded from further
// dispatch for the campaign.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether an adapter error must not be retried.
// Timeouts and anything unclassified are treated as transient.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient is the retry test: explicit transients, adapter timeouts
// (context.DeadlineExceeded), and unclassified errors all qualify.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}

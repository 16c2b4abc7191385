package storage

import "errors"

// RetryableError marks a transient storage failure: the transaction rolled
// back cleanly and the same submission may succeed on retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "transient storage failure: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err (or anything it wraps) is a transient
// storage failure.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

package main

import "fmt"

// ValidationError rejects caller-supplied input before it reaches the
// database: a non-SELECT statement, or a schema/table identifier that
// fails the allow-list check.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// QueryError wraps a backend rejection of a statement that passed
// validation: bad identifier, type mismatch, permission denial.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// ConfigError marks connection parameters that are malformed or a backend
// that is unreachable at connect time.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

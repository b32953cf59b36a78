package services

import "errors"

var (
	// ErrRetriesExhausted is returned once consecutive connection failures exceed the retry ceiling.
	ErrRetriesExhausted = errors.New("connection retries exhausted")

	// ErrNoToken is returned when a password is requested before any token was issued.
	ErrNoToken = errors.New("no authentication token issued")

	ErrAlreadyRunning = errors.New("service is already running")
	ErrNotRunning     = errors.New("service is not running")
)

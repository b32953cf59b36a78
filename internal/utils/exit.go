package utils

import (
	"errors"

	"github.com/benmeehan/ak-mqtt/pkg/identity"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// ExitCode maps the error that ended the process to its exit status. Configuration
// problems detected before any network activity use ExitConfig; runtime failures,
// including an exhausted connect retry budget, use ExitFailure.
func ExitCode(err error) int {
	switch {
	case err == nil,
		errors.Is(err, ErrHelpRequested),
		errors.Is(err, ErrVersionRequested):
		return ExitOK
	case errors.Is(err, ErrConfig),
		errors.Is(err, identity.ErrCredential),
		errors.Is(err, identity.ErrUnsupportedAlgorithm):
		return ExitConfig
	default:
		return ExitFailure
	}
}

// Package status declares error constants returned by the popen package.
package status

import "github.com/viewvc/viewvc-sub000/pkg/errors"

var (
	// ErrCommandFailed indicates that an external command exited with an unexpected code
	ErrCommandFailed = errors.New("external command failed")

	// ErrCommandLine indicates that a configured command line could not be parsed
	ErrCommandLine = errors.New("invalid command line")

	// ErrNotStarted indicates that an external command could not be started
	ErrNotStarted = errors.New("external command not started")
)

package popen

import (
	"io"

	"go.uber.org/zap"
)

// Option tunes how a command is run
type Option func(*options)

type options struct {
	okCodes  map[int]bool
	cleanups []func() error
	stdin    io.Reader
	merge    bool
	l        *zap.Logger
}

func defaultOptions() *options {
	return &options{
		okCodes: map[int]bool{0: true},
		l:       zap.NewNop(),
	}
}

// OkCodes declares extra exit codes which do not indicate a failure.
//
// For instance, diff(1) exits with 1 when its inputs differ.
func OkCodes(codes ...int) Option {
	return func(o *options) {
		for _, code := range codes {
			o.okCodes[code] = true
		}
	}
}

// RemoveOnClose deletes the given files once the pipe is closed
func RemoveOnClose(paths ...string) Option {
	return func(o *options) {
		for _, p := range paths {
			o.cleanups = append(o.cleanups, removeFunc(p))
		}
	}
}

// Stdin feeds the command with some input
func Stdin(r io.Reader) Option {
	return func(o *options) {
		o.stdin = r
	}
}

// Logger sets a logger for command execution traces
func Logger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.l = l
		}
	}
}

// MergeStderr interleaves the standard error of the command with its standard output,
// like a shell "2>&1" redirection. Tools such as co(1) report on standard error.
func MergeStderr() Option {
	return func(o *options) {
		o.merge = true
	}
}

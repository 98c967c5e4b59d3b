package rcsparse

import (
	"github.com/viewvc/viewvc-sub000/pkg/errors"
)

var (
	// ErrStop may be returned by a Sink to stop parsing
	ErrStop = errors.New("stop parsing")

	// ErrSyntax reports a malformed RCS file
	ErrSyntax = errors.New("rcs syntax error")

	// ErrUnexpectedEOF reports a truncated RCS file
	ErrUnexpectedEOF = errors.New("unexpected end of rcs file")
)

func expectedError(wanted string, got []byte) error {
	return ErrSyntax.Messagef("expected token %q, but saw %q", wanted, truncate(got))
}

func truncate(token []byte) []byte {
	if len(token) > 100 {
		return token[:100]
	}
	return token
}

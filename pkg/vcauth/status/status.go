// Package status declares error constants returned by authorizers.
package status

import "github.com/viewvc/viewvc-sub000/pkg/errors"

var (
	// ErrUnknownAuthorizer indicates that no authorizer is registered under some name
	ErrUnknownAuthorizer = errors.New("unknown authorizer")

	// ErrInvalidParam indicates that an authorizer parameter is missing or invalid
	ErrInvalidParam = errors.New("invalid authorizer parameter")

	// ErrAuthzFile indicates that an authz file could not be read or parsed
	ErrAuthzFile = errors.New("unable to parse configured authzfile file")
)

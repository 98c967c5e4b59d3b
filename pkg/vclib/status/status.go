// Copyright © 2018 One Concern

// Package status declares the error constants returned by
// implementations of the vclib Repository interface.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/vclib and one
// of its backends.
package status

import "github.com/viewvc/viewvc-sub000/pkg/errors"

var (
	// ErrItemNotFound indicates that a path does not exist at some revision, or that it
	// is not readable by the current user: both cases are reported the same way.
	ErrItemNotFound = errors.New("item not found")

	// ErrInvalidRevision indicates that a revision identifier could not be resolved
	ErrInvalidRevision = errors.New("invalid revision")

	// ErrUnsupportedFeature indicates that the backend cannot perform the requested operation
	ErrUnsupportedFeature = errors.New("unsupported feature")

	// ErrReposNotFound indicates that a configured root does not point to a repository
	ErrReposNotFound = errors.New("repository not found")

	// ErrNonTextualFileContents indicates that a binary file was passed to an operation
	// working on lines of text
	ErrNonTextualFileContents = errors.New("non textual file contents")

	// ErrVersionControl is the generic failure of a version control backend
	ErrVersionControl = errors.New("version control error")
)

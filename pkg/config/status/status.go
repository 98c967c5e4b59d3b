// Package status declares error constants returned when loading or validating configuration.
package status

import "github.com/viewvc/viewvc-sub000/pkg/errors"

var (
	// ErrInvalidConfig indicates that the configuration could not be decoded
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownRootType indicates a root of a type other than cvs, svn or git
	ErrUnknownRootType = errors.New("unknown root type")

	// ErrDuplicateRoot indicates that two roots share the same name
	ErrDuplicateRoot = errors.New("duplicate root name")

	// ErrInvalidRoot indicates a root declared without a name or a path
	ErrInvalidRoot = errors.New("invalid root")

	// ErrInvalidRootParent indicates a root_parents entry not of the form "<dir>: <type>"
	ErrInvalidRootParent = errors.New("invalid root parent")
)

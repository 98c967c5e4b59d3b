// Copyright © 2018 One Concern

package vclib

import (
	"context"
	"io"
)

// Repository knows how to read the history of a version controlled tree.
//
// Every operation resolves its revision argument to a canonical backend
// revision (the empty string designates the youngest revision or the default
// branch), checks read access to the paths involved, and reports failures
// with the errors defined in pkg/vclib/status.
type Repository interface {
	// Open prepares the repository for use. It must be called before any other operation.
	Open(context.Context) error

	Name() string
	RootType() RootType
	RootPath() string
	Authorizer() Authorizer

	// ItemType tells whether the path is a file or a directory
	ItemType(ctx context.Context, parts []string, rev string) (ItemType, error)

	// OpenFile returns the contents of a file, along with the revision actually retrieved
	OpenFile(ctx context.Context, parts []string, rev string, opts OpenOptions) (io.ReadCloser, string, error)

	// ListDir lists the readable children of a directory
	ListDir(ctx context.Context, parts []string, rev string, opts ListOptions) ([]*DirEntry, error)

	// DirLogs fills entries listed by ListDir with their last change
	DirLogs(ctx context.Context, parts []string, rev string, entries []*DirEntry, opts ListOptions) error

	// ItemLog returns the history of a path, starting from rev
	ItemLog(ctx context.Context, parts []string, rev string, sortBy LogSort, first, limit int, opts LogOptions) ([]*Revision, error)

	// ItemProps returns the versioned properties of a path
	ItemProps(ctx context.Context, parts []string, rev string) (map[string]string, error)

	// Annotate walks the lines of a file, calling apply for each line with the revision
	// which last changed it. It returns the revision annotated.
	Annotate(ctx context.Context, parts []string, rev string, includeText bool, apply func(*Annotation) error) (string, error)

	// RevInfo describes a revision, with its changed paths when requested
	RevInfo(ctx context.Context, rev string, includeChangedPaths bool) (*RevInfo, error)

	// RawDiff returns a diff(1)-like output between two file revisions
	RawDiff(ctx context.Context, parts1 []string, rev1 string, parts2 []string, rev2 string, diffType DiffType, opts DiffOptions) (io.ReadCloser, error)

	// IsExecutable tells whether the file is marked as executable
	IsExecutable(ctx context.Context, parts []string, rev string) (bool, error)

	// FileSize returns the size of a file, or -1 when the backend cannot tell it cheaply
	FileSize(ctx context.Context, parts []string, rev string) (int64, error)

	// GetLocation returns the path at oldRev of the item located at path in rev
	GetLocation(ctx context.Context, parts []string, rev, oldRev string) ([]string, error)

	// CreatedRev returns the revision which last changed the path, as seen from rev
	CreatedRev(ctx context.Context, parts []string, rev string) (string, error)

	// LastRev finds the youngest revision, not newer than limitRev, in which the path known
	// at pegRev exists. It returns that revision and the path of the item there.
	LastRev(ctx context.Context, parts []string, pegRev, limitRev string) (string, []string, error)

	// SymlinkTarget returns the target of a versioned symbolic link. The boolean is
	// false when the path is not a symlink.
	SymlinkTarget(ctx context.Context, parts []string, rev string) (string, bool, error)
}

// Authorizer decides which paths of a root a user may read
type Authorizer interface {
	// CheckRootAccess tells whether the root may be read at all
	CheckRootAccess(rootName string) bool

	// CheckUniversalAccess tells whether every path, or no path, of the root may be read
	CheckUniversalAccess(rootName string) Access

	// CheckPathAccess tells whether a path of some type may be read at some revision
	CheckPathAccess(rootName string, parts []string, pathType ItemType, rev string) bool
}

package rcsparse

import "time"

// Sink receives the contents of an RCS file as the parser reads it.
//
// Callbacks are invoked in file order: admin callbacks, AdminCompleted, one
// DefineRevision per revision, TreeCompleted, SetDescription, one
// SetRevisionInfo per revision and finally ParseCompleted.
type Sink interface {
	// SetHeadRevision reports the "head" admin field
	SetHeadRevision(rev string) error
	// SetPrincipalBranch reports the "branch" admin field, only when set (e.g. "1.1.1" for vendor branches)
	SetPrincipalBranch(branch string) error
	// SetAccess reports the access list, only when not empty
	SetAccess(accessors []string) error
	// DefineTag reports a symbolic name, attached to a revision or a branch number
	DefineTag(name, rev string) error
	// SetLocker reports a lock held on a revision
	SetLocker(rev, locker string) error
	// SetLocking reports strict locking
	SetLocking(mode string) error
	SetComment(comment string) error
	// SetExpansion reports the keyword expansion mode, e.g. "b" or "o"
	SetExpansion(mode string) error
	AdminCompleted() error

	// DefineRevision reports the metadata of a revision.
	//
	// next is the revision holding the next delta to apply in order to rebuild
	// revisions: the previous revision on the trunk, the next one on branches.
	DefineRevision(rev string, timestamp time.Time, author, state string, branches []string, next string) error
	TreeCompleted() error

	SetDescription(description string) error

	// SetRevisionInfo reports the log message and the text of a revision: the full text
	// for the head revision, an edit script for others.
	SetRevisionInfo(rev, log string, text []byte) error
	ParseCompleted() error
}

// NopSink ignores everything. It is meant to be embedded by sinks which only need a few callbacks.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) SetHeadRevision(string) error { return nil }
func (NopSink) SetPrincipalBranch(string) error { return nil }
func (NopSink) SetAccess([]string) error { return nil }
func (NopSink) DefineTag(string, string) error { return nil }
func (NopSink) SetLocker(string, string) error { return nil }
func (NopSink) SetLocking(string) error { return nil }
func (NopSink) SetComment(string) error { return nil }
func (NopSink) SetExpansion(string) error { return nil }
func (NopSink) AdminCompleted() error { return nil }
func (NopSink) DefineRevision(string, time.Time, string, string, []string, string) error { return nil }
func (NopSink) TreeCompleted() error { return nil }
func (NopSink) SetDescription(string) error { return nil }
func (NopSink) SetRevisionInfo(string, string, []byte) error { return nil }
func (NopSink) ParseCompleted() error { return nil }

// Copyright © 2018 One Concern

/*
Package vclib abstracts version control repositories behind one Repository contract.

Backends (CVS via RCS files, Subversion via the svn client, Git via go-git) expose
the same shapes: directory entries, revisions, changed paths and annotations.
Every read goes through an optional Authorizer: a path which may not be read is
reported exactly like a path which does not exist (status.ErrItemNotFound).

Paths are handled as path parts, i.e. a slice of path components.
*/
package vclib

/*
Package viewvc provides tooling to browse the history of version control repositories.

The vclib package abstracts CVS, Subversion and git repositories behind a single
interface: listing directories, reading file contents at some revision, logs,
annotations, diffs and revision details. Access to paths is controlled by
pluggable authorizers, from the vcauth package.

The viewvc command line reads the roots declared in a configuration file.
*/
package viewvc

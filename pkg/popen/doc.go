// Package popen runs external tools (rcs utilities, svn, diff) and exposes
// their standard output as streams.
//
// The exit status of a child process is only known once its output has been
// fully consumed: a ReadPipe reports a failing exit code from Read, right
// after the last chunk of data, or from Close. Closing a pipe before the end
// of its output kills the child.
package popen

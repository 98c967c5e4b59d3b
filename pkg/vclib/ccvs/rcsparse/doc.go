// Package rcsparse reads RCS ",v" files.
//
// The parser is event driven: it walks the admin section, the revision tree,
// the description and the delta texts of a file, and reports what it finds to
// a Sink. A Sink may return ErrStop from any callback to end parsing early,
// in which case Parse returns nil.
package rcsparse

package ccvs

import (
	"github.com/spf13/afero"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"go.uber.org/zap"
)

// Option configures a CVS repository
type Option func(*base)

// WithAuthorizer restricts the paths which may be read
func WithAuthorizer(auth vclib.Authorizer) Option {
	return func(b *base) {
		b.auth = auth
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.l = l
		}
	}
}

// WithFs reads RCS files from some file system other than the local one.
//
// The RCS tools run by BinRepository always read the local file system.
func WithFs(fs afero.Fs) Option {
	return func(b *base) {
		b.fs = fs
	}
}

// WithRCSDir sets the directory holding the rlog, co and rcsdiff programs.
// The default looks them up in the PATH.
func WithRCSDir(dir string) Option {
	return func(b *base) {
		b.rcsDir = dir
	}
}

// WithCVSNT runs the RCS tools through "cvsnt rcsfile" rather than as separate programs
func WithCVSNT(cvsnt string) Option {
	return func(b *base) {
		b.cvsnt = cvsnt
	}
}

// WithDiff sets the diff command. When empty, diffs are computed in process.
func WithDiff(diff string) Option {
	return func(b *base) {
		b.diffCmd = diff
	}
}

// WithCacheSize sets the number of parsed RCS files kept in memory
func WithCacheSize(size int) Option {
	return func(b *base) {
		if size > 0 {
			b.cacheSize = size
		}
	}
}

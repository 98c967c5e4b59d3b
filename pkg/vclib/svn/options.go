package svn

import (
	"github.com/spf13/afero"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"go.uber.org/zap"
)

// Option configures a Subversion repository
type Option func(*Repository)

// WithAuthorizer restricts the paths which may be read
func WithAuthorizer(auth vclib.Authorizer) Option {
	return func(r *Repository) {
		r.auth = auth
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.l = l
		}
	}
}

// WithSvn sets the command line of the svn client. The default looks svn up in the PATH.
func WithSvn(svn string) Option {
	return func(r *Repository) {
		if svn != "" {
			r.svnPath = svn
		}
	}
}

// WithConfigDir passes a configuration directory to the svn client
func WithConfigDir(dir string) Option {
	return func(r *Repository) {
		r.configDir = dir
	}
}

// WithDiff sets the diff command. When empty, diffs are computed in process.
func WithDiff(diff string) Option {
	return func(r *Repository) {
		r.diffCmd = diff
	}
}

// WithCacheSize sets the number of revisions and directory listings kept in memory
func WithCacheSize(size int) Option {
	return func(r *Repository) {
		if size > 0 {
			r.cacheSize = size
		}
	}
}

// WithRunner replaces the svn client
func WithRunner(runner Runner) Option {
	return func(r *Repository) {
		r.runner = runner
	}
}

// WithFs looks local repositories up in some file system other than the local one
func WithFs(fs afero.Fs) Option {
	return func(r *Repository) {
		r.fs = fs
	}
}

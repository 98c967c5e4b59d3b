package git

import (
	"github.com/go-git/go-git/v5/storage"
	"github.com/spf13/afero"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"go.uber.org/zap"
)

// Option configures a git repository
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

// WithDefaultBranch sets the branch shown when no revision is requested.
// The default is the first of main, trunk and master which exists, else HEAD.
func WithDefaultBranch(branch string) Option {
	return func(r *Repository) {
		r.defaultBranch = branch
	}
}

// WithDiff sets the diff command. When empty, diffs are computed in process.
func WithDiff(diff string) Option {
	return func(r *Repository) {
		r.diffCmd = diff
	}
}

// WithCacheSize sets the number of revisions kept in memory
func WithCacheSize(size int) Option {
	return func(r *Repository) {
		if size > 0 {
			r.cacheSize = size
		}
	}
}

// WithStorage reads objects and references from some storage rather than from the root path
func WithStorage(s storage.Storer) Option {
	return func(r *Repository) {
		r.storer = s
	}
}

// WithFs looks local repositories up in some file system other than the local one
func WithFs(fs afero.Fs) Option {
	return func(r *Repository) {
		r.fs = fs
	}
}

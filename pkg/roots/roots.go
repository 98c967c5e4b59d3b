// Copyright © 2018 One Concern

// Package roots builds the configured repositories
package roots

import (
	"context"
	"sort"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/spf13/afero"
	"github.com/viewvc/viewvc-sub000/pkg/config"
	cfgstatus "github.com/viewvc/viewvc-sub000/pkg/config/status"
	"github.com/viewvc/viewvc-sub000/pkg/metrics"
	"github.com/viewvc/viewvc-sub000/pkg/metrics/exporters/influxdb"
	"github.com/viewvc/viewvc-sub000/pkg/vcauth"
	_ "github.com/viewvc/viewvc-sub000/pkg/vcauth/forbidden"   // registers the forbidden authorizer
	_ "github.com/viewvc/viewvc-sub000/pkg/vcauth/forbiddenre" // registers the forbiddenre authorizer
	_ "github.com/viewvc/viewvc-sub000/pkg/vcauth/svnauthz"    // registers the svnauthz authorizer
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/ccvs"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/git"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/instrumented"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/svn"
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"
)

// Option configures a registry
type Option func(*Registry)

// WithFs looks for repositories on some file system other than the local one
func WithFs(fs afero.Fs) Option {
	return func(r *Registry) {
		r.fs = fs
	}
}

// WithLogger sets the logger passed on to the backends
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.l = l
		}
	}
}

// WithTracer sets the tracer used when tracing is enabled. The default is the global tracer.
func WithTracer(tr opentracing.Tracer) Option {
	return func(r *Registry) {
		r.tr = tr
	}
}

// WithMetricsExporter sends metrics to some exporter rather than to the configured influxdb collector.
// It has no effect unless metrics are enabled by the configuration.
func WithMetricsExporter(exporter view.Exporter) Option {
	return func(r *Registry) {
		r.exporter = exporter
	}
}

// WithSVNRunner runs svn commands with some runner other than the svn client
func WithSVNRunner(runner svn.Runner) Option {
	return func(r *Registry) {
		r.svnRunner = runner
	}
}

// Registry knows the configured roots, and opens repositories for them
type Registry struct {
	cfg       *config.Config
	declared  map[string]config.Root
	parents   []config.RootParent
	fs        afero.Fs
	l         *zap.Logger
	tr        opentracing.Tracer
	svnRunner svn.Runner
	exporter  view.Exporter
	m         *instrumented.M
}

// New builds a registry from a validated configuration
func New(cfg *config.Config, opts ...Option) (*Registry, error) {
	parents, err := cfg.ParsedRootParents()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		cfg:      cfg,
		declared: make(map[string]config.Root),
		parents:  parents,
		fs:       afero.NewOsFs(),
		l:        zap.NewNop(),
	}
	for _, apply := range opts {
		apply(r)
	}
	for _, root := range cfg.AllRoots() {
		r.declared[root.Name] = root
	}
	if err = r.initMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

// initMetrics starts the collection of metrics, once per process
func (r *Registry) initMetrics() error {
	if !r.cfg.Telemetry.Metrics {
		return nil
	}
	if !metrics.Enabled() {
		exporter := r.exporter
		if exporter == nil {
			l := r.l
			e, err := metrics.DefaultExporter(
				[]influxdb.StoreOption{influxdb.WithURL(r.cfg.Telemetry.MetricsURL)},
				influxdb.WithErrorHandler(func(err error) {
					l.Warn("could not export metrics", zap.Error(err))
				}),
			)
			if err != nil {
				return cfgstatus.ErrInvalidConfig.Wrap(err).Messagef("invalid metrics url %q", r.cfg.Telemetry.MetricsURL)
			}
			exporter = e
		}
		metrics.Init(metrics.WithExporter(exporter))
	}
	r.m = instrumented.NewMetrics()
	return nil
}

func (r *Registry) expand(parent config.RootParent) (map[string]string, error) {
	switch parent.Type {
	case vclib.CVS:
		return ccvs.ExpandRootParent(r.fs, parent.Path)
	case vclib.SVN:
		return svn.ExpandRootParent(r.fs, parent.Path)
	default:
		return git.ExpandRootParent(r.fs, parent.Path)
	}
}

func (r *Registry) findInParent(parent config.RootParent, name string) (string, bool) {
	switch parent.Type {
	case vclib.CVS:
		return ccvs.FindRootInParent(r.fs, parent.Path, name)
	case vclib.SVN:
		return svn.FindRootInParent(r.fs, parent.Path, name)
	default:
		return git.FindRootInParent(r.fs, parent.Path, name)
	}
}

// Roots lists every root: declared ones, and those found in root parents.
// A declared root hides a root of the same name found in a parent, and the first
// parent holding a name wins. Unreadable parents are skipped.
func (r *Registry) Roots() []config.Root {
	all := make(map[string]config.Root, len(r.declared))
	for _, parent := range r.parents {
		found, err := r.expand(parent)
		if err != nil {
			r.l.Warn("skipping root parent", zap.String("parent", parent.Path), zap.Error(err))
			continue
		}
		for name, pth := range found {
			if _, ok := all[name]; !ok {
				all[name] = config.Root{Name: name, Type: parent.Type, Path: pth}
			}
		}
	}
	for name, root := range r.declared {
		all[name] = root
	}

	roots := make([]config.Root, 0, len(all))
	for _, root := range all {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Name < roots[j].Name })
	return roots
}

// Lookup finds a root by name
func (r *Registry) Lookup(name string) (config.Root, bool) {
	if root, ok := r.declared[name]; ok {
		return root, true
	}
	for _, parent := range r.parents {
		if pth, ok := r.findInParent(parent, name); ok {
			return config.Root{Name: name, Type: parent.Type, Path: pth}, true
		}
	}
	return config.Root{}, false
}

// DefaultRoot is the configured default root, or the only root
func (r *Registry) DefaultRoot() string {
	if r.cfg.DefaultRoot != "" {
		return r.cfg.DefaultRoot
	}
	if roots := r.Roots(); len(roots) == 1 {
		return roots[0].Name
	}
	return ""
}

// Open builds the repository for a root, restricted to what a user may read, and opens it.
// An empty username designates an anonymous user.
func (r *Registry) Open(ctx context.Context, name, username string) (vclib.Repository, error) {
	root, ok := r.Lookup(name)
	if !ok {
		return nil, vclib.ReposNotFound(name, nil)
	}

	auth, err := vcauth.New(r.cfg.Authorizer, username, r.cfg.AuthzParamsFor(name))
	if err != nil {
		return nil, err
	}

	l := r.l.With(zap.String("root", name))
	repo, err := r.build(root, auth, l)
	if err != nil {
		return nil, err
	}
	if r.cfg.Options.Trace || r.m != nil {
		tr := r.tr
		switch {
		case !r.cfg.Options.Trace:
			tr = opentracing.NoopTracer{}
		case tr == nil:
			tr = opentracing.GlobalTracer()
		}
		var opts []instrumented.Option
		if r.m != nil {
			opts = append(opts, instrumented.WithMetrics(r.m))
		}
		repo = instrumented.Instrument(tr, l, repo, opts...)
	}

	if err = repo.Open(ctx); err != nil {
		return nil, err
	}
	l.Debug("opened root", zap.String("type", string(root.Type)), zap.String("path", root.Path))
	return repo, nil
}

func (r *Registry) build(root config.Root, auth vclib.Authorizer, l *zap.Logger) (vclib.Repository, error) {
	utilities, options := r.cfg.Utilities, r.cfg.Options

	switch root.Type {
	case vclib.CVS:
		return ccvs.Open(root.Name, root.Path, options.UseRCSParse,
			ccvs.WithAuthorizer(auth),
			ccvs.WithLogger(l),
			ccvs.WithFs(r.fs),
			ccvs.WithRCSDir(utilities.RCSDir),
			ccvs.WithCVSNT(utilities.CVSNT),
			ccvs.WithDiff(utilities.Diff),
			ccvs.WithCacheSize(options.CacheSize),
		)
	case vclib.SVN:
		opts := []svn.Option{
			svn.WithAuthorizer(auth),
			svn.WithLogger(l),
			svn.WithFs(r.fs),
			svn.WithSvn(utilities.SVN),
			svn.WithConfigDir(utilities.SVNConfigDir),
			svn.WithDiff(utilities.Diff),
			svn.WithCacheSize(options.CacheSize),
		}
		if r.svnRunner != nil {
			opts = append(opts, svn.WithRunner(r.svnRunner))
		}
		return svn.New(root.Name, root.Path, opts...)
	case vclib.Git:
		return git.New(root.Name, root.Path,
			git.WithAuthorizer(auth),
			git.WithLogger(l),
			git.WithFs(r.fs),
			git.WithDefaultBranch(options.GitDefaultBranch),
			git.WithDiff(utilities.Diff),
			git.WithCacheSize(options.CacheSize),
		)
	default:
		return nil, vclib.ReposNotFound(root.Name, nil)
	}
}

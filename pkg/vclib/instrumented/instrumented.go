// Copyright © 2018 One Concern

// Package instrumented decorates a repository with tracing spans, metrics and logs
package instrumented

import (
	"context"
	"io"
	"strings"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/viewvc/viewvc-sub000/pkg/metrics"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"go.uber.org/zap"
)

// M describes the metrics collected on repositories
type M struct {
	Usage   metrics.UsageMetrics   `group:"usage" description:"calls to repository operations"`
	Content metrics.ContentMetrics `group:"content" description:"file contents read from repositories"`
}

// NewMetrics registers the repository metrics. Metrics collection must be initialized first.
func NewMetrics() *M {
	return metrics.EnsureMetrics("vclib", &M{}).(*M)
}

// Option configures the instrumentation
type Option func(*instrumentedRepository)

// WithMetrics records the usage of every operation and the contents read
func WithMetrics(m *M) Option {
	return func(i *instrumentedRepository) {
		i.m = m
	}
}

// Instrument wraps a repository: each operation runs in a span named vclib.<root>.<operation>
// and is logged at debug level.
func Instrument(tr opentracing.Tracer, l *zap.Logger, repo vclib.Repository, opts ...Option) vclib.Repository {
	if tr == nil {
		tr = opentracing.NoopTracer{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	i := &instrumentedRepository{
		tr:   tr,
		repo: repo,
		l:    l.With(zap.String("root", repo.Name()), zap.String("type", string(repo.RootType()))),
	}
	for _, apply := range opts {
		apply(i)
	}
	return i
}

type instrumentedRepository struct {
	repo vclib.Repository
	tr   opentracing.Tracer
	l    *zap.Logger
	m    *M
}

// call is an operation in progress
type call struct {
	op    string
	span  opentracing.Span
	begin time.Time
}

// Unwrap returns the decorated repository
func (i *instrumentedRepository) Unwrap() vclib.Repository { return i.repo }

func (i *instrumentedRepository) opName(name string) string {
	return strings.Join([]string{"vclib", i.repo.Name(), name}, ".")
}

func (i *instrumentedRepository) spanFromContext(ctx context.Context, name string) (opentracing.Span, context.Context) {
	parent := opentracing.SpanFromContext(ctx)
	var span opentracing.Span
	if parent != nil {
		span = i.tr.StartSpan(name, opentracing.ChildOf(parent.Context()))
	} else {
		span = i.tr.StartSpan(name)
	}
	return span, opentracing.ContextWithSpan(ctx, span)
}

func (i *instrumentedRepository) start(ctx context.Context, op string, parts []string, rev string) (*call, context.Context) {
	span, ctx := i.spanFromContext(ctx, i.opName(op))
	pth := vclib.JoinPath(parts)
	span.SetTag("path", pth)
	span.SetTag("rev", rev)
	i.l.Debug("vclib "+op, zap.String("path", pth), zap.String("rev", rev))
	return &call{op: op, span: span, begin: time.Now()}, ctx
}

func (i *instrumentedRepository) finish(c *call, err error) {
	if err != nil {
		ext.Error.Set(c.span, true)
		c.span.LogKV("event", "error", "message", err.Error())
		i.l.Debug("vclib "+c.op+" failed", zap.Error(err))
	}
	if i.m != nil {
		i.m.Usage.UsedAll(c.begin, i.repo.Name(), c.op)(err)
	}
	c.span.Finish()
}

// countingReader records the size of a file content when closed
type countingReader struct {
	io.ReadCloser
	n    int64
	err  error
	done func(int64, error)
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	if err != nil && err != io.EOF {
		r.err = err
	}
	return n, err
}

func (r *countingReader) Close() error {
	err := r.ReadCloser.Close()
	if r.done != nil {
		r.done(r.n, r.err)
		r.done = nil
	}
	return err
}

func (i *instrumentedRepository) Open(ctx context.Context) (err error) {
	c, ctx := i.start(ctx, "Open", nil, "")
	defer func() { i.finish(c, err) }()
	return i.repo.Open(ctx)
}

func (i *instrumentedRepository) Name() string { return i.repo.Name() }
func (i *instrumentedRepository) RootType() vclib.RootType { return i.repo.RootType() }
func (i *instrumentedRepository) RootPath() string { return i.repo.RootPath() }
func (i *instrumentedRepository) Authorizer() vclib.Authorizer { return i.repo.Authorizer() }

func (i *instrumentedRepository) ItemType(ctx context.Context, parts []string, rev string) (_ vclib.ItemType, err error) {
	c, ctx := i.start(ctx, "ItemType", parts, rev)
	defer func() { i.finish(c, err) }()
	return i.repo.ItemType(ctx, parts, rev)
}

func (i *instrumentedRepository) OpenFile(ctx context.Context, parts []string, rev string, opts vclib.OpenOptions) (_ io.ReadCloser, _ string, err error) {
	c, ctx := i.start(ctx, "OpenFile", parts, rev)
	defer func() { i.finish(c, err) }()
	rdr, revision, err := i.repo.OpenFile(ctx, parts, rev, opts)
	if err != nil {
		return nil, "", err
	}
	if i.m == nil {
		return rdr, revision, nil
	}
	return &countingReader{
		ReadCloser: rdr,
		done:       i.m.Content.Read(c.begin, i.repo.Name(), "OpenFile"),
	}, revision, nil
}

func (i *instrumentedRepository) ListDir(ctx context.Context, parts []string, rev string, opts vclib.ListOptions) (entries []*vclib.DirEntry, err error) {
	c, ctx := i.start(ctx, "ListDir", parts, rev)
	defer func() {
		c.span.SetTag("entries", len(entries))
		i.finish(c, err)
	}()
	return i.repo.ListDir(ctx, parts, rev, opts)
}

func (i *instrumentedRepository) DirLogs(ctx context.Context, parts []string, rev string, entries []*vclib.DirEntry, opts vclib.ListOptions) (err error) {
	c, ctx := i.start(ctx, "DirLogs", parts, rev)
	defer func() { i.finish(c, err) }()
	return i.repo.DirLogs(ctx, parts, rev, entries, opts)
}

func (i *instrumentedRepository) ItemLog(ctx context.Context, parts []string, rev string, sortBy vclib.LogSort, first, limit int, opts vclib.LogOptions) (revs []*vclib.Revision, err error) {
	c, ctx := i.start(ctx, "ItemLog", parts, rev)
	defer func() {
		c.span.SetTag("revisions", len(revs))
		i.finish(c, err)
	}()
	return i.repo.ItemLog(ctx, parts, rev, sortBy, first, limit, opts)
}

func (i *instrumentedRepository) ItemProps(ctx context.Context, parts []string, rev string) (_ map[string]string, err error) {
	c, ctx := i.start(ctx, "ItemProps", parts, rev)
	defer func() { i.finish(c, err) }()
	return i.repo.ItemProps(ctx, parts, rev)
}

func (i *instrumentedRepository) Annotate(ctx context.Context, parts []string, rev string, includeText bool, apply func(*vclib.Annotation) error) (_ string, err error) {
	c, ctx := i.start(ctx, "Annotate", parts, rev)
	defer func() { i.finish(c, err) }()
	return i.repo.Annotate(ctx, parts, rev, includeText, apply)
}

func (i *instrumentedRepository) RevInfo(ctx context.Context, rev string, includeChangedPaths bool) (_ *vclib.RevInfo, err error) {
	c, ctx := i.start(ctx, "RevInfo", nil, rev)
	defer func() { i.finish(c, err) }()
	return i.repo.RevInfo(ctx, rev, includeChangedPaths)
}

func (i *instrumentedRepository) RawDiff(ctx context.Context, parts1 []string, rev1 string, parts2 []string, rev2 string, diffType vclib.DiffType, opts vclib.DiffOptions) (_ io.ReadCloser, err error) {
	c, ctx := i.start(ctx, "RawDiff", parts1, rev1)
	c.span.SetTag("path2", vclib.JoinPath(parts2))
	c.span.SetTag("rev2", rev2)
	defer func() { i.finish(c, err) }()
	return i.repo.RawDiff(ctx, parts1, rev1, parts2, rev2, diffType, opts)
}

func (i *instrumentedRepository) IsExecutable(ctx context.Context, parts []string, rev string) (_ bool, err error) {
	c, ctx := i.start(ctx, "IsExecutable", parts, rev)
	defer func() { i.finish(c, err) }()
	return i.repo.IsExecutable(ctx, parts, rev)
}

func (i *instrumentedRepository) FileSize(ctx context.Context, parts []string, rev string) (_ int64, err error) {
	c, ctx := i.start(ctx, "FileSize", parts, rev)
	defer func() { i.finish(c, err) }()
	return i.repo.FileSize(ctx, parts, rev)
}

func (i *instrumentedRepository) GetLocation(ctx context.Context, parts []string, rev, oldRev string) (_ []string, err error) {
	c, ctx := i.start(ctx, "GetLocation", parts, rev)
	c.span.SetTag("old_rev", oldRev)
	defer func() { i.finish(c, err) }()
	return i.repo.GetLocation(ctx, parts, rev, oldRev)
}

func (i *instrumentedRepository) CreatedRev(ctx context.Context, parts []string, rev string) (_ string, err error) {
	c, ctx := i.start(ctx, "CreatedRev", parts, rev)
	defer func() { i.finish(c, err) }()
	return i.repo.CreatedRev(ctx, parts, rev)
}

func (i *instrumentedRepository) LastRev(ctx context.Context, parts []string, pegRev, limitRev string) (_ string, _ []string, err error) {
	c, ctx := i.start(ctx, "LastRev", parts, pegRev)
	c.span.SetTag("limit_rev", limitRev)
	defer func() { i.finish(c, err) }()
	return i.repo.LastRev(ctx, parts, pegRev, limitRev)
}

func (i *instrumentedRepository) SymlinkTarget(ctx context.Context, parts []string, rev string) (_ string, _ bool, err error) {
	c, ctx := i.start(ctx, "SymlinkTarget", parts, rev)
	defer func() { i.finish(c, err) }()
	return i.repo.SymlinkTarget(ctx, parts, rev)
}

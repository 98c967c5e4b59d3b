// Copyright © 2018 One Concern

// Package tarball streams a directory of a repository as a tar archive
package tarball

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"sort"
	"time"

	"github.com/emirpasic/gods/lists/arraylist"
	"github.com/viewvc/viewvc-sub000/pkg/errors"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/status"
	"go.uber.org/zap"
)

const owner = "viewvc"

// ErrTarball wraps failures to write the archive
var ErrTarball = errors.New("cannot generate tarball")

// Options tune the generated archive
type Options struct {
	// Gzip compresses the archive
	Gzip bool
	// HideCVSRoot leaves the CVSROOT directory of CVS repositories out
	HideCVSRoot bool
	Logger      *zap.Logger
}

// pending directory header, written lazily for CVS
type pendingDir struct {
	name  string
	mtime time.Time
}

type generator struct {
	repo  vclib.Repository
	rev   string
	top   string
	base  []string
	cvs   bool
	opts  Options
	tw    *tar.Writer
	stack *arraylist.List
	l     *zap.Logger
}

// Generate writes a tar archive of the directory at parts in rev.
//
// Every entry is put under a single top level directory, named after the
// last path part or, for the root directory, after the repository.
func Generate(ctx context.Context, w io.Writer, repo vclib.Repository, parts []string, rev string, opts Options) error {
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}

	top := repo.Name()
	if len(parts) > 0 {
		top = parts[len(parts)-1]
	} else if rootParts := vclib.PathParts(top); len(rootParts) > 0 {
		top = rootParts[len(rootParts)-1]
	}

	out := w
	var gz *gzip.Writer
	if opts.Gzip {
		gz = gzip.NewWriter(w)
		out = gz
	}

	g := &generator{
		repo:  repo,
		rev:   rev,
		top:   top,
		base:  parts,
		cvs:   repo.RootType() == vclib.CVS,
		opts:  opts,
		tw:    tar.NewWriter(out),
		stack: arraylist.New(),
		l:     l,
	}
	l.Debug("generating tarball", zap.String("path", vclib.JoinPath(parts)), zap.String("rev", rev), zap.Bool("gzip", opts.Gzip))

	if err := g.directory(ctx, nil, nil); err != nil {
		return err
	}
	if err := g.tw.Close(); err != nil {
		return ErrTarball.Wrap(err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return ErrTarball.Wrap(err)
		}
	}
	return nil
}

func (g *generator) tarDir(reldir []string) string {
	name := g.top + "/"
	if len(reldir) > 0 {
		name += vclib.JoinPath(reldir) + "/"
	}
	return name
}

func (g *generator) repPath(reldir []string, name ...string) []string {
	pth := make([]string, 0, len(g.base)+len(reldir)+len(name))
	pth = append(pth, g.base...)
	pth = append(pth, reldir...)
	return append(pth, name...)
}

func (g *generator) skipped(entry *vclib.DirEntry) bool {
	return g.cvs && (entry.Rev == "" || entry.Dead)
}

func (g *generator) writeDir(name string, mtime time.Time) error {
	return g.writeHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name,
		Mode:     0755,
		ModTime:  mtime,
	})
}

func (g *generator) writeHeader(hdr *tar.Header) error {
	hdr.Uname = owner
	hdr.Gname = owner
	hdr.Format = tar.FormatGNU
	if hdr.ModTime.IsZero() {
		hdr.ModTime = time.Unix(0, 0)
	}
	hdr.ModTime = hdr.ModTime.Truncate(time.Second)
	if err := g.tw.WriteHeader(hdr); err != nil {
		return ErrTarball.Wrap(err)
	}
	return nil
}

// flush writes the headers of the directories on the stack, outermost first
func (g *generator) flush() error {
	for _, v := range g.stack.Values() {
		dir := v.(pendingDir)
		if err := g.writeDir(dir.name, dir.mtime); err != nil {
			return err
		}
	}
	g.stack.Clear()
	return nil
}

func (g *generator) directory(ctx context.Context, reldir []string, dirMtime *time.Time) error {
	pth := g.repPath(reldir)
	entries, err := g.repo.ListDir(ctx, pth, g.rev, vclib.ListOptions{})
	if err != nil {
		return err
	}
	if err = g.repo.DirLogs(ctx, pth, g.rev, entries, vclib.ListOptions{}); err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	// unless told otherwise, a directory is as old as its youngest file
	var mtime time.Time
	if dirMtime != nil {
		mtime = *dirMtime
	} else {
		for _, entry := range entries {
			if g.cvs && (entry.Kind != vclib.File || g.skipped(entry)) {
				continue
			}
			if entry.Date != nil && entry.Date.After(mtime) {
				mtime = *entry.Date
			}
		}
	}

	name := g.tarDir(reldir)
	if g.cvs {
		g.stack.Add(pendingDir{name: name, mtime: mtime})
	} else if err = g.writeDir(name, mtime); err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.Kind != vclib.File || g.skipped(entry) {
			continue
		}
		if err = g.flush(); err != nil {
			return err
		}
		if err = g.file(ctx, name, g.repPath(reldir, entry.Name), entry); err != nil {
			return err
		}
	}

	for _, entry := range entries {
		if len(entry.Errors) > 0 || entry.Kind != vclib.Dir {
			continue
		}
		sub := append(append([]string{}, reldir...), entry.Name)
		if g.opts.HideCVSRoot && g.cvs && g.repPath(sub)[0] == "CVSROOT" {
			continue
		}
		var subMtime *time.Time
		if g.repo.RootType() == vclib.SVN && entry.Date != nil {
			subMtime = entry.Date
		}
		if err = g.directory(ctx, sub, subMtime); err != nil {
			return err
		}
	}

	// a CVS directory without files is left out
	if g.cvs && g.stack.Size() > 0 {
		g.stack.Remove(g.stack.Size() - 1)
	}
	return nil
}

func (g *generator) file(ctx context.Context, dir string, pth []string, entry *vclib.DirEntry) error {
	var mtime time.Time
	if entry.Date != nil {
		mtime = *entry.Date
	}

	mode := int64(0644)
	executable, err := g.repo.IsExecutable(ctx, pth, g.rev)
	if err != nil {
		return err
	}
	if executable {
		mode = 0755
	}

	target, isLink, err := g.repo.SymlinkTarget(ctx, pth, g.rev)
	if err != nil && !errors.Is(err, status.ErrUnsupportedFeature) {
		return err
	}
	if isLink {
		return g.writeHeader(&tar.Header{
			Typeflag: tar.TypeSymlink,
			Name:     dir + entry.Name,
			Linkname: target,
			Mode:     mode,
			ModTime:  mtime,
		})
	}

	size, err := g.repo.FileSize(ctx, pth, g.rev)
	if err != nil {
		return err
	}
	if size < 0 {
		if size, err = g.measure(ctx, pth); err != nil {
			return err
		}
	}

	if err = g.writeHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     dir + entry.Name,
		Size:     size,
		Mode:     mode,
		ModTime:  mtime,
	}); err != nil {
		return err
	}

	rc, _, err := g.repo.OpenFile(ctx, pth, g.rev, vclib.OpenOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if _, err = io.Copy(g.tw, rc); err != nil {
		return ErrTarball.Wrap(err)
	}
	return nil
}

func (g *generator) measure(ctx context.Context, pth []string) (int64, error) {
	rc, _, err := g.repo.OpenFile(ctx, pth, g.rev, vclib.OpenOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()
	return io.Copy(io.Discard, rc)
}

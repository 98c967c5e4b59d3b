// Copyright © 2018 One Concern

package ccvs

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/viewvc/viewvc-sub000/pkg/popen"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/ccvs/rcsparse"
	"go.uber.org/zap"
)

// Repository reads RCS files in process
type Repository struct {
	*base
}

var _ vclib.Repository = &Repository{}

// New CVS repository, reading RCS files in process
func New(name, rootPath string, opts ...Option) (*Repository, error) {
	b, err := newBase(name, rootPath, opts...)
	if err != nil {
		return nil, err
	}
	return &Repository{base: b}, nil
}

func (b *base) parseFile(pth string, sink rcsparse.Sink) error {
	f, err := b.fs.Open(pth)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return rcsparse.Parse(f, sink)
}

// parseTree reads the revision tree of an RCS file. Results are cached as long as the file does not change.
func (b *base) parseTree(pth string) (*treeData, error) {
	info, err := b.fs.Stat(pth)
	if err != nil {
		return nil, vclib.Errorf("stat %s: %v", pth, err)
	}
	key := fmt.Sprintf("%s:%d:%d", pth, info.ModTime().UnixNano(), info.Size())
	if cached, ok := b.cache.Get(key); ok {
		return cached.(*treeData), nil
	}

	sink := newTreeSink()
	if err := b.parseFile(pth, sink); err != nil {
		return nil, vclib.Errorf("parsing %s: %v", pth, err)
	}
	b.cache.Add(key, sink.data)
	return sink.data, nil
}

// OpenFile checks a revision out. Keywords are not expanded.
func (r *Repository) OpenFile(ctx context.Context, parts []string, rev string, _ vclib.OpenOptions) (io.ReadCloser, string, error) {
	if err := r.checkFile(ctx, parts, rev); err != nil {
		return nil, "", err
	}
	pth, err := r.rcsFile(parts)
	if err != nil {
		return nil, "", err
	}

	sink := newCOSink(rev)
	if err := r.parseFile(pth, sink); err != nil {
		return nil, "", err
	}
	if sink.text == nil || sink.last == nil {
		return nil, "", vclib.Errorf("no text found for revision %q of %s", rev, vclib.JoinPath(parts))
	}
	return ioutil.NopCloser(strings.NewReader(sink.text.String())), sink.last.ID, nil
}

// DirLogs finds the revision of each entry matching rev, which may be a tag or a branch
func (r *Repository) DirLogs(ctx context.Context, parts []string, rev string, entries []*vclib.DirEntry, opts vclib.ListOptions) error {
	if err := r.checkDir(ctx, parts, rev); err != nil {
		return err
	}

	dirPath := r.getPath(parts)
	allTags := dirTags()
	for _, entry := range entries {
		child := append(append([]string{}, parts...), entry.Name)
		if !vclib.CheckPathAccess(ctx, r, child, entry.Kind, rev) {
			continue
		}

		resetEntry(entry)
		pth, newest := r.logPath(entry, dirPath, opts.CVSSubdirs)
		if pth == "" {
			continue
		}
		entry.LogFile = newest

		if err := r.parseFile(pth, newInfoSink(entry, rev, allTags)); err != nil {
			entry.Errors = append(entry.Errors, "rcsparse error: "+err.Error())
		}
	}

	splitTags(allTags, opts)
	return nil
}

func resetEntry(entry *vclib.DirEntry) {
	entry.Rev = ""
	entry.Date = nil
	entry.Author = ""
	entry.Dead = false
	entry.Absent = false
	entry.Log = ""
	entry.LockInfo = ""
}

// ItemLog returns the revisions of a file visible from rev: a revision, a branch or a tag.
// The empty revision returns all revisions.
func (r *Repository) ItemLog(ctx context.Context, parts []string, rev string, sortBy vclib.LogSort, first, limit int, opts vclib.LogOptions) ([]*vclib.Revision, error) {
	if err := r.checkFile(ctx, parts, rev); err != nil {
		return nil, err
	}
	pth, err := r.rcsFile(parts)
	if err != nil {
		return nil, err
	}
	data, err := r.parseTree(pth)
	if err != nil {
		return nil, err
	}
	revs, err := data.revisions()
	if err != nil {
		return nil, err
	}

	filtered, tags, err := fileLog(revs, data.tags, data.lockInfo, data.defaultBranch, rev)
	if err != nil {
		return nil, err
	}
	for _, rv := range filtered {
		if rv.Prev != nil && len(rv.Number) == 2 {
			rv.Changed = data.byID[rv.Prev.ID].nextChanged
		}
	}
	return finishLog(filtered, tags, sortBy, first, limit, opts), nil
}

func finishLog(revs []*vclib.Revision, tags map[string]*vclib.Tag, sortBy vclib.LogSort, first, limit int, opts vclib.LogOptions) []*vclib.Revision {
	if opts.CVSTags != nil {
		for name, tag := range tags {
			opts.CVSTags[name] = tag
		}
	}
	if opts.CVSPruneDead {
		revs = pruneDead(revs)
	}
	sortLog(revs, sortBy)
	return vclib.PageRevisions(revs, first, limit)
}

// Annotate replays the deltas of the RCS file to find the revision which introduced each line
func (b *base) Annotate(ctx context.Context, parts []string, rev string, includeText bool, apply func(*vclib.Annotation) error) (string, error) {
	if err := b.checkFile(ctx, parts, rev); err != nil {
		return "", err
	}
	pth, err := b.rcsFile(parts)
	if err != nil {
		return "", err
	}
	sink := newBlameSink()
	if err := b.parseFile(pth, sink); err != nil {
		return "", vclib.Errorf("parsing %s: %v", pth, err)
	}
	return blame(sink, rev, includeText, apply)
}

// tip is the youngest revision of a file seen from rev
func (r *Repository) tip(ctx context.Context, parts []string, rev string) (*vclib.Revision, error) {
	revs, err := r.ItemLog(ctx, parts, rev, vclib.SortByDefault, 0, 0, vclib.LogOptions{})
	if err != nil {
		return nil, err
	}
	tip := tipRevision(revs)
	if tip == nil {
		return nil, vclib.InvalidRevision(rev)
	}
	return tip, nil
}

func (r *Repository) checkout(ctx context.Context, parts []string, rev string) (string, vclib.DiffInfo, error) {
	fp, _, err := r.OpenFile(ctx, parts, rev, vclib.OpenOptions{})
	if err != nil {
		return "", vclib.DiffInfo{}, err
	}
	temp, err := popen.TempFile(fp, "viewvc-cvs-")
	if err != nil {
		return "", vclib.DiffInfo{}, vclib.Errorf("writing temporary file: %v", err)
	}

	tip, err := r.tip(ctx, parts, rev)
	if err != nil {
		_ = popen.RemoveFiles(temp)
		return "", vclib.DiffInfo{}, err
	}
	pth, err := r.rcsFile(parts)
	if err != nil {
		_ = popen.RemoveFiles(temp)
		return "", vclib.DiffInfo{}, err
	}
	return temp, vclib.DiffInfo{Path: strings.TrimSuffix(pth, rcsSuffix), Date: tip.Date, Rev: tip.ID}, nil
}

// RawDiff checks both revisions out and compares them
func (r *Repository) RawDiff(ctx context.Context, parts1 []string, rev1 string, parts2 []string, rev2 string, diffType vclib.DiffType, opts vclib.DiffOptions) (io.ReadCloser, error) {
	if err := r.checkFile(ctx, parts1, rev1); err != nil {
		return nil, err
	}
	if err := r.checkFile(ctx, parts2, rev2); err != nil {
		return nil, err
	}

	temp1, info1, err := r.checkout(ctx, parts1, rev1)
	if err != nil {
		return nil, err
	}
	temp2, info2, err := r.checkout(ctx, parts2, rev2)
	if err != nil {
		_ = popen.RemoveFiles(temp1)
		return nil, err
	}

	r.l.Debug("diffing revisions",
		zap.String("path1", filepath.Join(parts1...)), zap.String("rev1", info1.Rev),
		zap.String("path2", filepath.Join(parts2...)), zap.String("rev2", info2.Rev))
	return vclib.DiffFiles(ctx, r.diffCmd, temp1, temp2, info1, info2, diffType, opts, r.l)
}

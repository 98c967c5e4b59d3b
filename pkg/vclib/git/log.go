package git

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/viewvc/viewvc-sub000/pkg/popen"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"go.uber.org/zap"
)

const propDateLayout = "2006-01-02 15:04:05 -0700"

type revInfo struct {
	date    *time.Time
	author  string
	log     string
	props   map[string]string
	changes []*vclib.ChangedPath
	// changes were collected, possibly none
	hasChanges bool
}

func signature(sig object.Signature) string {
	return sig.Name + " <" + sig.Email + ">"
}

func parentIDs(c *object.Commit) []string {
	ids := make([]string, 0, len(c.ParentHashes))
	for _, h := range c.ParentHashes {
		ids = append(ids, h.String())
	}
	return ids
}

func commitProps(c *object.Commit) map[string]string {
	return map[string]string{
		"commit_date":    c.Committer.When.Format(propDateLayout),
		"committer_date": c.Committer.When.Format(propDateLayout),
		"committer":      signature(c.Committer),
		"parents":        strings.Join(parentIDs(c), ","),
	}
}

func (r *Repository) revinfo(ctx context.Context, c *object.Commit, withChanges bool) (*revInfo, error) {
	key := c.Hash.String()
	if v, ok := r.revinfoCache.Get(key); ok {
		info := v.(*revInfo)
		if !withChanges || info.hasChanges {
			return info, nil
		}
	}

	info, err := r.fetchRevinfo(ctx, c, withChanges)
	if err != nil {
		return nil, err
	}
	r.revinfoCache.Add(key, info)
	return info, nil
}

func (r *Repository) fetchRevinfo(ctx context.Context, c *object.Commit, withChanges bool) (*revInfo, error) {
	date := c.Author.When
	info := &revInfo{
		date:   &date,
		author: signature(c.Author),
		log:    c.Message,
		props:  commitProps(c),
	}
	// changed paths are only needed to redact the metadata of partly readable commits
	if r.auth == nil && !withChanges {
		return info, nil
	}

	tree, err := r.repo.TreeObject(c.TreeHash)
	if err != nil {
		return nil, vclib.Errorf("reading tree of %s: %v", c.Hash, err)
	}
	w := &changeWalker{
		r:       r,
		ctx:     ctx,
		rev:     c.Hash.String(),
		collect: withChanges,
		changes: treemap.NewWithStringComparator(),
	}
	var parentTree *object.Tree
	parent, err := r.firstParent(c)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		w.prevRev = parent.Hash.String()
		if parentTree, err = r.repo.TreeObject(parent.TreeHash); err != nil {
			return nil, vclib.Errorf("reading tree of %s: %v", parent.Hash, err)
		}
	}
	if err = w.walk(nil, tree, parentTree); err != nil {
		return nil, err
	}

	if withChanges {
		info.hasChanges = true
		info.changes = make([]*vclib.ChangedPath, 0, w.changes.Size())
		for _, v := range w.changes.Values() {
			info.changes = append(info.changes, v.(*vclib.ChangedPath))
		}
	}
	if w.unreadable {
		info.log = ""
		if !w.readable {
			info.author = ""
			info.date = nil
			info.props = map[string]string{}
		}
	}
	return info, nil
}

// changeWalker compares the tree of a commit with the tree of its first parent
type changeWalker struct {
	r       *Repository
	ctx     context.Context
	rev     string
	prevRev string
	collect bool

	readable   bool
	unreadable bool
	// changed paths, by path
	changes *treemap.Map
}

func (w *changeWalker) done() bool {
	return !w.collect && w.readable && w.unreadable
}

func (w *changeWalker) record(parts []string, mode filemode.FileMode, action vclib.Action, textChanged, propsChanged bool) {
	kind := kindOf(mode)
	if kind == vclib.Unknown {
		return
	}
	if !vclib.CheckPathAccess(w.ctx, w.r, parts, kind, w.rev) {
		w.unreadable = true
		return
	}
	w.readable = true
	if !w.collect {
		return
	}

	change := &vclib.ChangedPath{
		Path:         parts,
		Rev:          w.rev,
		PathType:     kind,
		Action:       action,
		TextChanged:  textChanged,
		PropsChanged: propsChanged,
	}
	if action != vclib.Added && w.prevRev != "" {
		change.BasePath = parts
		change.BaseRev = w.prevRev
	}
	w.changes.Put(vclib.JoinPath(parts), change)
}

func (w *changeWalker) subtrees(e1, e2 *object.TreeEntry) (*object.Tree, *object.Tree, error) {
	t1, err := w.r.repo.TreeObject(e1.Hash)
	if err != nil {
		return nil, nil, vclib.Errorf("reading tree %s: %v", e1.Hash, err)
	}
	t2, err := w.r.repo.TreeObject(e2.Hash)
	if err != nil {
		return nil, nil, vclib.Errorf("reading tree %s: %v", e2.Hash, err)
	}
	return t1, t2, nil
}

// walk compares t1 with its older version t2, which is nil for a root commit.
// Added and deleted directories are not descended into.
func (w *changeWalker) walk(parent []string, t1, t2 *object.Tree) error {
	old := make(map[string]*object.TreeEntry)
	if t2 != nil {
		for i := range t2.Entries {
			old[t2.Entries[i].Name] = &t2.Entries[i]
		}
	}

	for i := range t1.Entries {
		if w.done() {
			return nil
		}
		e1 := &t1.Entries[i]
		pp := childParts(parent, e1.Name)
		e2, ok := old[e1.Name]
		if !ok {
			w.record(pp, e1.Mode, vclib.Added, false, false)
			continue
		}
		delete(old, e1.Name)
		if e1.Hash == e2.Hash && e1.Mode == e2.Mode {
			continue
		}

		switch {
		case e1.Mode == filemode.Dir && e2.Mode == filemode.Dir:
			sub1, sub2, err := w.subtrees(e1, e2)
			if err != nil {
				return err
			}
			if err = w.walk(pp, sub1, sub2); err != nil {
				return err
			}
		case e1.Mode == filemode.Dir || e2.Mode == filemode.Dir:
			w.record(pp, e1.Mode, vclib.Replaced, false, false)
		case e1.Mode == e2.Mode:
			w.record(pp, e1.Mode, vclib.Modified, true, false)
		case e1.Mode == filemode.Symlink || e2.Mode == filemode.Symlink:
			w.record(pp, e1.Mode, vclib.Replaced, false, false)
		default:
			// executable bit flipped
			w.record(pp, e1.Mode, vclib.Modified, e1.Hash != e2.Hash, true)
		}
	}

	if t2 == nil {
		return nil
	}
	for i := range t2.Entries {
		if w.done() {
			return nil
		}
		e2 := &t2.Entries[i]
		if _, deleted := old[e2.Name]; deleted {
			w.record(childParts(parent, e2.Name), e2.Mode, vclib.Deleted, false, false)
		}
	}
	return nil
}

// RevInfo describes a commit. Changed paths are relative to its first parent.
func (r *Repository) RevInfo(ctx context.Context, rev string, includeChangedPaths bool) (*vclib.RevInfo, error) {
	c, err := r.getcommit(rev)
	if err != nil {
		return nil, err
	}
	info, err := r.revinfo(ctx, c, includeChangedPaths)
	if err != nil {
		return nil, err
	}
	ri := &vclib.RevInfo{
		Date:   info.date,
		Author: info.author,
		Log:    info.log,
		Props:  info.props,
	}
	if includeChangedPaths {
		ri.Changes = info.changes
	}
	return ri, nil
}

// DirLogs walks the first-parent history back until every entry differs from its current version.
// Entries which never differ get the oldest commit visited.
func (r *Repository) DirLogs(ctx context.Context, parts []string, rev string, entries []*vclib.DirEntry, _ vclib.ListOptions) error {
	c, entry, kind, err := r.node(ctx, parts, rev)
	if err != nil {
		return err
	}
	if kind != vclib.Dir {
		return vclib.Errorf("Path '%s' is not a directory.", vclib.JoinPath(parts))
	}
	latest, err := r.repo.TreeObject(entry.Hash)
	if err != nil {
		return vclib.Errorf("reading tree %s: %v", entry.Hash, err)
	}

	pending := make(map[string]*vclib.DirEntry, len(entries))
	for _, e := range entries {
		pending[e.Name] = e
	}

	cur, curHash := c, entry.Hash
	for len(pending) > 0 {
		if err = ctx.Err(); err != nil {
			return err
		}
		prev, err := r.firstParent(cur)
		if err != nil {
			return err
		}
		if prev == nil {
			break
		}
		prevEntry, err := r.lookup(prev, parts)
		if err != nil {
			return err
		}
		if prevEntry == nil || prevEntry.Mode != filemode.Dir {
			break
		}

		if prevEntry.Hash != curHash {
			prevTree, err := r.repo.TreeObject(prevEntry.Hash)
			if err != nil {
				return vclib.Errorf("reading tree %s: %v", prevEntry.Hash, err)
			}
			for name, e := range pending {
				now, was := findEntry(latest, name), findEntry(prevTree, name)
				if now != nil && was != nil && was.Hash == now.Hash && was.Mode == now.Mode {
					continue
				}
				if err = r.fillEntry(ctx, e, cur, now); err != nil {
					return err
				}
				delete(pending, name)
			}
			curHash = prevEntry.Hash
		}
		cur = prev
	}

	for _, e := range pending {
		if err = r.fillEntry(ctx, e, cur, findEntry(latest, e.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) fillEntry(ctx context.Context, e *vclib.DirEntry, c *object.Commit, te *object.TreeEntry) error {
	info, err := r.revinfo(ctx, c, false)
	if err != nil {
		return err
	}
	e.Rev = c.Hash.String()
	e.Date = info.date
	e.Author = info.author
	e.Log = info.log
	if te != nil && te.Mode.IsFile() {
		b, err := r.blob(te)
		if err != nil {
			return err
		}
		e.Size = b.Size
	}
	return nil
}

// ItemLog lists the commits which changed a path, newest first, following first parents.
// The Prev of the last revision returned is set even when the previous change falls
// beyond the requested page.
func (r *Repository) ItemLog(ctx context.Context, parts []string, rev string, _ vclib.LogSort, first, limit int, opts vclib.LogOptions) ([]*vclib.Revision, error) {
	cur, entry, _, err := r.node(ctx, parts, rev)
	if err != nil {
		return nil, err
	}
	if opts.GitLatestLog {
		first, limit = 0, 1
	}
	end := first + limit

	revs := []*vclib.Revision{}
	for cnt := 0; ; {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		prev, prevEntry, changed, err := r.step(cur, parts, entry)
		if err != nil {
			return nil, err
		}
		if !changed {
			cur = prev
			continue
		}

		inPage := cnt >= first && (limit == 0 || cnt < end)
		var found *vclib.Revision
		if inPage {
			if found, err = r.logRevision(ctx, cur, entry, parts); err != nil {
				return nil, err
			}
		}
		if len(revs) > 0 {
			last := revs[len(revs)-1]
			if found != nil {
				last.Prev = found
			} else {
				last.Prev = &vclib.Revision{ID: cur.Hash.String()}
			}
		}
		if inPage {
			revs = append(revs, found)
		}
		cnt++

		if prevEntry == nil || (limit > 0 && cnt > end) {
			return revs, nil
		}
		cur, entry = prev, prevEntry
	}
}

func (r *Repository) logRevision(ctx context.Context, c *object.Commit, entry *object.TreeEntry, parts []string) (*vclib.Revision, error) {
	info, err := r.revinfo(ctx, c, false)
	if err != nil {
		return nil, err
	}
	rev := &vclib.Revision{
		ID:       c.Hash.String(),
		Date:     info.date,
		Author:   info.author,
		Log:      info.log,
		Filename: vclib.JoinPath(parts),
		Parents:  parentIDs(c),
		Props:    info.props,
	}
	if entry.Mode.IsFile() {
		b, err := r.blob(entry)
		if err != nil {
			return nil, err
		}
		rev.Size = b.Size
	}
	return rev, nil
}

type blameRev struct {
	rev  string
	prev string
	info *revInfo
}

// Annotate blames the lines of a file. The previous revision of a line is the first
// parent of its commit, when the file exists there.
func (r *Repository) Annotate(ctx context.Context, parts []string, rev string, includeText bool, apply func(*vclib.Annotation) error) (string, error) {
	c, _, err := r.file(ctx, parts, rev)
	if err != nil {
		return "", err
	}
	path := vclib.JoinPath(parts)
	result, err := gogit.Blame(c, path)
	if err != nil {
		return "", vclib.Errorf("Cannot annotate file '%s': %v", path, err)
	}

	revs := make(map[plumbing.Hash]*blameRev)
	for i, line := range result.Lines {
		br, ok := revs[line.Hash]
		if !ok {
			if br, err = r.blameRev(ctx, parts, line.Hash); err != nil {
				return "", err
			}
			revs[line.Hash] = br
		}

		a := &vclib.Annotation{
			LineNumber: i + 1,
			Rev:        br.rev,
			PrevRev:    br.prev,
			Author:     br.info.author,
			Date:       br.info.date,
		}
		if includeText {
			text := line.Text
			a.Text = &text
		}
		if err = apply(a); err != nil {
			return "", err
		}
	}
	return c.Hash.String(), nil
}

func (r *Repository) blameRev(ctx context.Context, parts []string, h plumbing.Hash) (*blameRev, error) {
	c, err := r.repo.CommitObject(h)
	if err != nil {
		return nil, vclib.Errorf("reading commit %s: %v", h, err)
	}
	info, err := r.revinfo(ctx, c, false)
	if err != nil {
		return nil, err
	}
	br := &blameRev{rev: h.String(), info: info}
	if c.NumParents() > 0 {
		prev := c.ParentHashes[0].String()
		if kind, err := r.ItemType(ctx, parts, prev); err == nil && kind == vclib.File {
			br.prev = prev
		}
	}
	return br, nil
}

func (r *Repository) tempCheckout(ctx context.Context, parts []string, c *object.Commit) (string, error) {
	entry, kind, err := r.nodeAt(ctx, parts, c)
	if err != nil {
		return "", err
	}
	if kind != vclib.File {
		return "", vclib.Errorf("Path '%s' is not a file.", vclib.JoinPath(parts))
	}
	b, err := r.blob(entry)
	if err != nil {
		return "", err
	}
	rc, err := b.Reader()
	if err != nil {
		return "", vclib.Errorf("reading blob %s: %v", entry.Hash, err)
	}
	return popen.TempFile(rc, "viewvc-git-")
}

// RawDiff checks both blobs out to temporary files, then compares them
func (r *Repository) RawDiff(ctx context.Context, parts1 []string, rev1 string, parts2 []string, rev2 string, diffType vclib.DiffType, opts vclib.DiffOptions) (io.ReadCloser, error) {
	c1, err := r.getcommit(rev1)
	if err != nil {
		return nil, err
	}
	c2, err := r.getcommit(rev2)
	if err != nil {
		return nil, err
	}

	temp1, err := r.tempCheckout(ctx, parts1, c1)
	if err != nil {
		return nil, err
	}
	temp2, err := r.tempCheckout(ctx, parts2, c2)
	if err != nil {
		_ = popen.RemoveFiles(temp1)
		return nil, err
	}

	info1 := vclib.DiffInfo{Path: vclib.JoinPath(parts1), Date: r.commitDate(ctx, c1), Rev: c1.Hash.String()}
	info2 := vclib.DiffInfo{Path: vclib.JoinPath(parts2), Date: r.commitDate(ctx, c2), Rev: c2.Hash.String()}
	r.l.Debug("diffing commits",
		zap.String("path1", info1.Path), zap.String("rev1", info1.Rev),
		zap.String("path2", info2.Path), zap.String("rev2", info2.Rev))
	return vclib.DiffFiles(ctx, r.diffCmd, temp1, temp2, info1, info2, diffType, opts, r.l)
}

func (r *Repository) commitDate(ctx context.Context, c *object.Commit) *time.Time {
	info, err := r.revinfo(ctx, c, false)
	if err != nil {
		r.l.Warn("could not read commit date", zap.Stringer("rev", c.Hash), zap.Error(err))
		return nil
	}
	return info.date
}

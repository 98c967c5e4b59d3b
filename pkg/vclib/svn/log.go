package svn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/viewvc/viewvc-sub000/pkg/popen"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"go.uber.org/zap"
)

var actions = map[string]vclib.Action{
	"A": vclib.Added,
	"D": vclib.Deleted,
	"R": vclib.Replaced,
	"M": vclib.Modified,
}

// revInfo is the authz-sanitized metadata of a revision.
//
// changes is nil unless changed paths were requested.
type revInfo struct {
	date    *time.Time
	author  string
	log     string
	props   map[string]string
	changes []*vclib.ChangedPath
}

// revinfo returns the metadata of a revision from the cache, fetching it when missing
func (r *Repository) revinfo(ctx context.Context, rev int64, withChanges bool) (*revInfo, error) {
	if cached, ok := r.revinfoCache.Get(rev); ok {
		info := cached.(*revInfo)
		if !withChanges || info.changes != nil {
			return info, nil
		}
	}
	info, err := r.fetchRevinfo(ctx, rev, withChanges)
	if err != nil {
		return nil, err
	}
	r.revinfoCache.Add(rev, info)
	return info, nil
}

func (r *Repository) fetchRevinfo(ctx context.Context, rev int64, withChanges bool) (*revInfo, error) {
	// changed paths are needed to decide what may be shown
	needChanges := withChanges || r.auth != nil

	args := []string{revArg(rev), "-l", "1"}
	if needChanges {
		args = append(args, "-v")
	}
	args = append(args, "--stop-on-copy", "--with-all-revprops", r.rootURL)

	var doc logDoc
	if err := r.xmlCmd(ctx, &doc, "log", args...); err != nil {
		return nil, err
	}
	if len(doc.Entries) == 0 {
		return nil, vclib.InvalidRevision(formatRev(rev))
	}
	entry := doc.Entries[0]
	info := &revInfo{
		date:   parseDate(entry.Date),
		author: entry.Author,
		log:    entry.Msg,
		props:  entry.revprops(),
	}
	if !needChanges {
		return info, nil
	}

	changes := make([]*vclib.ChangedPath, 0, len(entry.Paths))
	var foundReadable, foundUnreadable bool
	for _, p := range sortPaths(entry.Paths) {
		change := changedPath(entry.Revision, p)

		// the kind of the path may be unknown: check it as a file
		if r.canRead(ctx, change.Path, vclib.File, entry.Revision) {
			if change.Copied && cleanPath(p.CopyFromPath) != cleanPath(p.Path) {
				baseRev, _ := strconv.ParseInt(p.CopyFromRev, 10, 64)
				if !r.canRead(ctx, change.BasePath, vclib.File, baseRev) {
					change.Copied = false
					change.BasePath = nil
					change.BaseRev = ""
					foundUnreadable = true
				}
			}
			changes = append(changes, change)
			foundReadable = true
		} else {
			foundUnreadable = true
		}

		if !withChanges && foundReadable && foundUnreadable {
			break
		}
	}

	if foundUnreadable {
		info.log = ""
		delete(info.props, propLog)
		if !foundReadable {
			info.author = ""
			info.date = nil
			delete(info.props, propAuthor)
			delete(info.props, propDate)
		}
	}
	if withChanges {
		info.changes = changes
	}
	return info, nil
}

func changedPath(rev int64, p *pathElem) *vclib.ChangedPath {
	kind := vclib.Unknown
	switch p.Kind {
	case kindDir:
		kind = vclib.Dir
	case kindFile:
		kind = vclib.File
	}
	action, ok := actions[p.Action]
	if !ok {
		action = vclib.Modified
	}

	change := &vclib.ChangedPath{
		Path:         vclib.PathParts(p.Path),
		Rev:          formatRev(rev),
		PathType:     kind,
		Action:       action,
		TextChanged:  p.TextMods == "true",
		PropsChanged: p.PropMods == "true",
	}
	switch {
	case p.CopyFromPath != "" && p.CopyFromRev != "":
		change.Copied = true
		change.BasePath = vclib.PathParts(p.CopyFromPath)
		change.BaseRev = p.CopyFromRev
	case action == vclib.Added || action == vclib.Replaced:
	default:
		change.BasePath = change.Path
		change.BaseRev = formatRev(rev - 1)
	}
	return change
}

// RevInfo describes a revision. Metadata is withheld when the revision touches unreadable paths.
func (r *Repository) RevInfo(ctx context.Context, rev string, includeChangedPaths bool) (*vclib.RevInfo, error) {
	irev, err := r.getrev(rev)
	if err != nil {
		return nil, err
	}
	info, err := r.revinfo(ctx, irev, includeChangedPaths)
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

// ItemLog follows the history of a path from rev, across copies when asked to.
//
// Revisions are returned newest first, linked to their predecessor.
func (r *Repository) ItemLog(ctx context.Context, parts []string, rev string, _ vclib.LogSort, first, limit int, opts vclib.LogOptions) ([]*vclib.Revision, error) {
	kind, err := r.ItemType(ctx, parts, rev)
	if err != nil {
		return nil, err
	}
	irev, err := r.getrev(rev)
	if err != nil {
		return nil, err
	}

	// lock status and size, as of rev
	var lockInfo string
	var size int64
	if kind == vclib.File {
		dirents, err := r.dirents(ctx, parts[:len(parts)-1], irev)
		if err != nil {
			return nil, err
		}
		if d := dirents.find(parts[len(parts)-1]); d != nil {
			if d.Lock != nil {
				lockInfo = d.Lock.Owner
			}
			if d.Size != nil {
				size = *d.Size
			}
		}
	}

	if opts.SVNLatestLog {
		lhRev, _, err := r.lastHistoryRev(ctx, parts, irev)
		if err != nil {
			return nil, err
		}
		info, err := r.revinfo(ctx, lhRev, false)
		if err != nil {
			return nil, err
		}
		return []*vclib.Revision{{
			Number:   []int{int(lhRev)},
			ID:       formatRev(lhRev),
			Date:     info.date,
			Author:   info.author,
			Log:      info.log,
			Size:     size,
			LockInfo: lockInfo,
			Filename: vclib.JoinPath(parts),
			Props:    info.props,
		}}, nil
	}

	args := []string{fmt.Sprintf("-r%d:1", irev)}
	if limit > 0 {
		args = append(args, "-l", strconv.Itoa(first+limit))
	}
	args = append(args, "-v", "--with-all-revprops")
	if !opts.SVNCrossCopies {
		args = append(args, "--stop-on-copy")
	}
	args = append(args, r.url(parts, irev))

	var doc logDoc
	if err := r.xmlCmd(ctx, &doc, "log", args...); err != nil {
		return nil, err
	}

	revs := make([]*vclib.Revision, 0, len(doc.Entries))
	origPath := "/" + vclib.JoinPath(parts)
	for _, entry := range doc.Entries {
		// where the path lived before this revision, if the revision touched it
		var thisPath, copyPath, copyRev string
		for _, p := range sortPaths(entry.Paths) {
			if p.Path == origPath {
				thisPath = origPath
				if p.CopyFromPath != "" {
					thisPath = p.CopyFromPath
					copyPath, copyRev = cleanPath(p.CopyFromPath), p.CopyFromRev
				}
				break
			}
		}
		for _, p := range entry.Paths {
			// a parent of the path was copied
			if isChildOf(origPath, p.Path) && p.CopyFromPath != "" {
				thisPath = p.CopyFromPath + origPath[len(p.Path):]
			}
		}

		if opts.SVNShowAllDirLogs || thisPath != "" {
			entryParts := vclib.PathParts(origPath)
			if !r.canRead(ctx, entryParts, kind, entry.Revision) {
				break
			}
			revs = append(revs, &vclib.Revision{
				Number:   []int{int(entry.Revision)},
				ID:       formatRev(entry.Revision),
				Size:     size,
				LockInfo: lockInfo,
				Filename: vclib.JoinPath(entryParts),
				CopyPath: copyPath,
				CopyRev:  copyRev,
			})
		}
		if thisPath != "" {
			origPath = thisPath
		}
	}

	sort.Slice(revs, func(i, j int) bool { return revs[i].Number[0] < revs[j].Number[0] })
	var prev *vclib.Revision
	for _, rv := range revs {
		info, err := r.revinfo(ctx, int64(rv.Number[0]), false)
		if err != nil {
			return nil, err
		}
		rv.Date, rv.Author, rv.Log, rv.Props = info.date, info.author, info.log, info.props
		rv.Prev = prev
		prev = rv
	}
	for i, j := 0, len(revs)-1; i < j; i, j = i+1, j-1 {
		revs[i], revs[j] = revs[j], revs[i]
	}
	return vclib.PageRevisions(revs, first, limit), nil
}

// Annotate runs svn blame from the oldest revision of the file which may be read
func (r *Repository) Annotate(ctx context.Context, parts []string, rev string, includeText bool, apply func(*vclib.Annotation) error) (string, error) {
	irev, err := r.checkKind(ctx, parts, rev, vclib.File)
	if err != nil {
		return "", err
	}
	revs, err := r.ItemLog(ctx, parts, rev, vclib.SortByRev, 0, 0, vclib.LogOptions{SVNCrossCopies: true, SVNShowAllDirLogs: true})
	if err != nil {
		return "", err
	}
	oldest := irev
	if len(revs) > 0 {
		oldest = int64(revs[len(revs)-1].Number[0])
	}

	var doc blameDoc
	if err := r.xmlCmd(ctx, &doc, "blame", fmt.Sprintf("-r%d:%d", oldest, irev), r.url(parts, irev)); err != nil {
		return "", err
	}

	var text *bufio.Reader
	if includeText {
		rc, err := r.cat(ctx, parts, irev)
		if err != nil {
			return "", err
		}
		defer func() { _ = rc.Close() }()
		text = bufio.NewReader(rc)
	}

	for _, target := range doc.Targets {
		for _, entry := range target.Entries {
			a := &vclib.Annotation{LineNumber: entry.LineNumber}
			if text != nil {
				line, err := text.ReadString('\n')
				if err != nil && err != io.EOF {
					return "", err
				}
				line = strings.TrimSuffix(line, "\n")
				a.Text = &line
			}

			if entry.Commit != nil {
				blameRev := entry.Commit.Revision
				a.Rev = formatRev(blameRev)
				if blameRev > 1 {
					a.PrevRev = formatRev(blameRev - 1)
				}
				if r.auth != nil {
					info, err := r.revinfo(ctx, blameRev, false)
					if err != nil {
						return "", err
					}
					a.Author, a.Date = info.author, info.date
				} else {
					a.Author, a.Date = entry.Commit.Author, parseDate(entry.Commit.Date)
				}
			}

			if err := apply(a); err != nil {
				return "", err
			}
		}
	}
	return formatRev(irev), nil
}

// tempCheckout copies a file revision into a temporary file
func (r *Repository) tempCheckout(ctx context.Context, parts []string, rev string) (string, error) {
	irev, err := r.checkKind(ctx, parts, rev, vclib.File)
	if err != nil {
		return "", err
	}
	rc, err := r.cat(ctx, parts, irev)
	if err != nil {
		return "", err
	}
	return popen.TempFile(rc, "viewvc-svn-")
}

// RawDiff checks both revisions out to temporary files, then compares them
func (r *Repository) RawDiff(ctx context.Context, parts1 []string, rev1 string, parts2 []string, rev2 string, diffType vclib.DiffType, opts vclib.DiffOptions) (io.ReadCloser, error) {
	r1, err := r.getrev(rev1)
	if err != nil {
		return nil, err
	}
	r2, err := r.getrev(rev2)
	if err != nil {
		return nil, err
	}

	temp1, err := r.tempCheckout(ctx, parts1, rev1)
	if err != nil {
		return nil, r.diffError(parts1, err)
	}
	temp2, err := r.tempCheckout(ctx, parts2, rev2)
	if err != nil {
		_ = popen.RemoveFiles(temp1)
		return nil, r.diffError(parts2, err)
	}

	info1 := vclib.DiffInfo{Path: vclib.JoinPath(parts1), Date: r.revDate(ctx, r1), Rev: formatRev(r1)}
	info2 := vclib.DiffInfo{Path: vclib.JoinPath(parts2), Date: r.revDate(ctx, r2), Rev: formatRev(r2)}
	r.l.Debug("diffing revisions",
		zap.String("path1", info1.Path), zap.String("rev1", info1.Rev),
		zap.String("path2", info2.Path), zap.String("rev2", info2.Rev))
	return vclib.DiffFiles(ctx, r.diffCmd, temp1, temp2, info1, info2, diffType, opts, r.l)
}

func (r *Repository) diffError(parts []string, err error) error {
	if notFound(err) {
		return vclib.ItemNotFound(parts)
	}
	return err
}

func (r *Repository) revDate(ctx context.Context, rev int64) *time.Time {
	info, err := r.revinfo(ctx, rev, false)
	if err != nil {
		r.l.Warn("could not read revision date", zap.Int64("rev", rev), zap.Error(err))
		return nil
	}
	return info.date
}

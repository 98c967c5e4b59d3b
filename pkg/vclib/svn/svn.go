// Copyright © 2018 One Concern

package svn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/spf13/afero"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"go.uber.org/zap"
)

const defaultCacheSize = 256

// Repository reads a Subversion repository with the svn command line client.
//
// Local repositories are accessed through file:// URLs.
type Repository struct {
	name      string
	rootURL   string
	auth      vclib.Authorizer
	runner    Runner
	svnPath   string
	configDir string
	diffCmd   string
	cacheSize int
	fs        afero.Fs
	l         *zap.Logger

	youngest int64
	// per-revision metadata, authz-sanitized
	revinfoCache *lru.Cache
	// readable directory entries, by "rev/path"
	direntCache *lru.Cache
}

var _ vclib.Repository = &Repository{}

// New Subversion repository, from a local path or a URL
func New(name, rootPath string, opts ...Option) (*Repository, error) {
	r := &Repository{
		name:      name,
		svnPath:   "svn",
		cacheSize: defaultCacheSize,
		fs:        afero.NewOsFs(),
		l:         zap.NewNop(),
	}
	for _, apply := range opts {
		apply(r)
	}

	var err error
	if r.rootURL, err = rootURL(r.fs, name, rootPath); err != nil {
		return nil, err
	}
	if r.runner == nil {
		if r.runner, err = NewRunner(r.svnPath, r.l); err != nil {
			return nil, err
		}
	}
	if r.revinfoCache, err = lru.New(r.cacheSize); err != nil {
		return nil, err
	}
	if r.direntCache, err = lru.New(r.cacheSize); err != nil {
		return nil, err
	}
	return r, nil
}

// Open looks the youngest revision up. Universal read access drops the authorizer.
func (r *Repository) Open(ctx context.Context) error {
	if r.auth != nil && !r.auth.CheckRootAccess(r.name) {
		return vclib.ReposNotFound(r.name, nil)
	}

	var doc revpropsDoc
	if err := r.xmlCmd(ctx, &doc, "propget", "--revprop", "-r", "HEAD", propDate, r.rootURL); err != nil {
		return vclib.ReposNotFound(r.name, err)
	}
	r.youngest = doc.Revprops.Rev
	r.revinfoCache.Purge()
	r.direntCache.Purge()

	r.auth = vclib.UniversalAuthorizer(r.name, r.auth)
	r.l.Debug("opened subversion repository", zap.String("root", r.name), zap.Int64("youngest", r.youngest))
	return nil
}

func (r *Repository) Name() string { return r.name }
func (r *Repository) RootType() vclib.RootType { return vclib.SVN }
func (r *Repository) RootPath() string { return r.rootURL }
func (r *Repository) Authorizer() vclib.Authorizer { return r.auth }

// Youngest revision of the repository, as of Open
func (r *Repository) Youngest() int64 { return r.youngest }

// getrev resolves a revision: empty or HEAD designate the youngest revision,
// and a leading "r" is allowed.
func (r *Repository) getrev(rev string) (int64, error) {
	if rev == "" || rev == "HEAD" {
		return r.youngest, nil
	}
	n, err := strconv.ParseInt(strings.TrimLeft(rev, "r"), 10, 64)
	if err != nil || n < 0 || n > r.youngest {
		return 0, vclib.InvalidRevision(rev)
	}
	return n, nil
}

// url of a path, pegged at some revision
func (r *Repository) url(parts []string, rev int64) string {
	u := r.rootURL
	if len(parts) > 0 {
		u += "/" + escapePath(parts)
	}
	return fmt.Sprintf("%s@%d", u, rev)
}

func revArg(rev int64) string {
	return "-r" + strconv.FormatInt(rev, 10)
}

func formatRev(rev int64) string {
	return strconv.FormatInt(rev, 10)
}

func (r *Repository) canRead(ctx context.Context, parts []string, kind vclib.ItemType, rev int64) bool {
	if r.auth == nil {
		return true
	}
	return vclib.CheckPathAccess(ctx, r, parts, kind, formatRev(rev))
}

func childParts(parts []string, name string) []string {
	child := make([]string, 0, len(parts)+1)
	child = append(child, parts...)
	return append(child, name)
}

// ItemType asks svn info for the kind of a path
func (r *Repository) ItemType(ctx context.Context, parts []string, rev string) (vclib.ItemType, error) {
	irev, err := r.getrev(rev)
	if err != nil {
		return vclib.Unknown, err
	}

	kind := vclib.Dir
	if len(parts) > 0 {
		out, err := r.text(ctx, "info", "--depth=empty", revArg(irev), "--show-item=kind", "--no-newline", r.url(parts, irev))
		if err != nil {
			r.l.Debug("svn info failed", zap.String("path", vclib.JoinPath(parts)), zap.Error(err))
			return vclib.Unknown, vclib.ItemNotFound(parts)
		}
		switch strings.TrimSpace(out) {
		case kindFile:
			kind = vclib.File
		case kindDir:
			kind = vclib.Dir
		default:
			return vclib.Unknown, vclib.ItemNotFound(parts)
		}
	}

	if !r.canRead(ctx, parts, kind, irev) {
		return vclib.Unknown, vclib.ItemNotFound(parts)
	}
	return kind, nil
}

func (r *Repository) checkKind(ctx context.Context, parts []string, rev string, expected vclib.ItemType) (int64, error) {
	kind, err := r.ItemType(ctx, parts, rev)
	if err != nil {
		return 0, err
	}
	if kind != expected {
		return 0, vclib.Errorf("Path '%s' is not a %s.", vclib.JoinPath(parts), expected)
	}
	return r.getrev(rev)
}

// lastHistoryRev returns the last revision, not newer than rev, which is interesting
// in the history of a path, along with its last changed revision.
//
// Both differ when a parent of the path was copied after the path last changed.
func (r *Repository) lastHistoryRev(ctx context.Context, parts []string, rev int64) (int64, int64, error) {
	u := r.url(parts, rev)
	out, err := r.text(ctx, "info", "--depth=empty", revArg(rev), "--show-item=last-changed-revision", "--no-newline", u)
	if err != nil {
		return 0, 0, err
	}
	lastChanged, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, 0, vclib.Errorf("unexpected last changed revision %q for %s", out, vclib.JoinPath(parts))
	}

	var doc logDoc
	if err := r.xmlCmd(ctx, &doc, "log", fmt.Sprintf("-r%d:%d", rev, lastChanged), "-l", "1", "-v", "--stop-on-copy", u); err != nil {
		return 0, 0, err
	}
	if len(doc.Entries) != 1 {
		return 0, 0, vclib.Errorf("no history found for %s in r%d", vclib.JoinPath(parts), rev)
	}
	return doc.Entries[0].Revision, lastChanged, nil
}

// OpenFile streams svn cat. The revision returned is the last history revision of the file.
func (r *Repository) OpenFile(ctx context.Context, parts []string, rev string, _ vclib.OpenOptions) (io.ReadCloser, string, error) {
	irev, err := r.checkKind(ctx, parts, rev, vclib.File)
	if err != nil {
		return nil, "", err
	}
	lhRev, _, err := r.lastHistoryRev(ctx, parts, irev)
	if err != nil {
		return nil, "", err
	}
	rc, err := r.cat(ctx, parts, irev)
	if err != nil {
		return nil, "", err
	}
	return rc, formatRev(lhRev), nil
}

func (r *Repository) cat(ctx context.Context, parts []string, rev int64) (io.ReadCloser, error) {
	return r.start(ctx, "cat", revArg(rev), "--ignore-keywords", r.url(parts, rev))
}

type direntList []*dirent

func (l direntList) find(name string) *dirent {
	for _, e := range l {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// dirents lists the readable entries of a directory, with their created revision
func (r *Repository) dirents(ctx context.Context, parts []string, rev int64) (direntList, error) {
	key := formatRev(rev)
	if len(parts) > 0 {
		key += "/" + vclib.JoinPath(parts)
	}
	if cached, ok := r.direntCache.Get(key); ok {
		return cached.(direntList), nil
	}

	var doc listsDoc
	if err := r.xmlCmd(ctx, &doc, "ls", revArg(rev), r.url(parts, rev)); err != nil {
		return nil, err
	}
	var entries direntList
	for _, list := range doc.Lists {
		for _, entry := range list.Entries {
			var kind vclib.ItemType
			switch entry.Kind {
			case kindDir:
				kind = vclib.Dir
			case kindFile:
				kind = vclib.File
			default:
				continue
			}
			entryParts := childParts(parts, entry.Name)
			if !r.canRead(ctx, entryParts, kind, rev) {
				continue
			}
			lhRev, _, err := r.lastHistoryRev(ctx, entryParts, rev)
			if err != nil {
				return nil, err
			}
			entry.createdRev = lhRev
			entries = append(entries, entry)
		}
	}
	r.direntCache.Add(key, entries)
	return entries, nil
}

// ListDir lists the readable children of a directory, in svn ls order
func (r *Repository) ListDir(ctx context.Context, parts []string, rev string, _ vclib.ListOptions) ([]*vclib.DirEntry, error) {
	irev, err := r.checkKind(ctx, parts, rev, vclib.Dir)
	if err != nil {
		return nil, err
	}
	dirents, err := r.dirents(ctx, parts, irev)
	if err != nil {
		return nil, err
	}
	entries := make([]*vclib.DirEntry, 0, len(dirents))
	for _, d := range dirents {
		kind := vclib.File
		if d.Kind == kindDir {
			kind = vclib.Dir
		}
		entries = append(entries, &vclib.DirEntry{Name: d.Name, Kind: kind})
	}
	return entries, nil
}

// DirLogs fills entries with their created revision, its authz-sanitized metadata,
// their size and their lock owner
func (r *Repository) DirLogs(ctx context.Context, parts []string, rev string, entries []*vclib.DirEntry, _ vclib.ListOptions) error {
	irev, err := r.checkKind(ctx, parts, rev, vclib.Dir)
	if err != nil {
		return err
	}
	dirents, err := r.dirents(ctx, parts, irev)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		d := dirents.find(entry.Name)
		if d == nil {
			continue
		}
		info, err := r.revinfo(ctx, d.createdRev, false)
		if err != nil {
			return err
		}
		entry.Rev = formatRev(d.createdRev)
		entry.Date = info.date
		entry.Author = info.author
		entry.Log = info.log
		entry.Size = 0
		if d.Size != nil {
			entry.Size = *d.Size
		}
		entry.LockInfo = ""
		if d.Lock != nil {
			entry.LockInfo = d.Lock.Owner
		}
	}
	return nil
}

// ItemProps returns the versioned properties of a path
func (r *Repository) ItemProps(ctx context.Context, parts []string, rev string) (map[string]string, error) {
	props, _, err := r.itemProps(ctx, parts, rev)
	return props, err
}

func (r *Repository) itemProps(ctx context.Context, parts []string, rev string) (map[string]string, vclib.ItemType, error) {
	kind, err := r.ItemType(ctx, parts, rev)
	if err != nil {
		return nil, kind, err
	}
	irev, err := r.getrev(rev)
	if err != nil {
		return nil, kind, err
	}

	var doc proplistDoc
	if err := r.xmlCmd(ctx, &doc, "proplist", "--depth=empty", revArg(irev), "-v", r.url(parts, irev)); err != nil {
		return nil, kind, err
	}
	props := make(map[string]string)
	for _, target := range doc.Targets {
		for _, p := range target.Props {
			props[p.Name] = p.Value
		}
	}
	return props, kind, nil
}

// IsExecutable tells whether the svn:executable property is set
func (r *Repository) IsExecutable(ctx context.Context, parts []string, rev string) (bool, error) {
	props, err := r.ItemProps(ctx, parts, rev)
	if err != nil {
		return false, err
	}
	_, ok := props[propExecutable]
	return ok, nil
}

// FileSize reads the size of a file in the listing of its directory
func (r *Repository) FileSize(ctx context.Context, parts []string, rev string) (int64, error) {
	irev, err := r.checkKind(ctx, parts, rev, vclib.File)
	if err != nil {
		return 0, err
	}
	dirents, err := r.dirents(ctx, parts[:len(parts)-1], irev)
	if err != nil {
		return 0, err
	}
	d := dirents.find(parts[len(parts)-1])
	if d == nil {
		return 0, vclib.ItemNotFound(parts)
	}
	if d.Size == nil {
		return -1, nil
	}
	return *d.Size, nil
}

// GetLocation asks svn info where the item found at path in rev lived in oldRev
func (r *Repository) GetLocation(ctx context.Context, parts []string, rev, oldRev string) ([]string, error) {
	if _, err := r.ItemType(ctx, parts, rev); err != nil {
		return nil, err
	}
	irev, err := r.getrev(rev)
	if err != nil {
		return nil, err
	}
	iold, err := r.getrev(oldRev)
	if err != nil {
		return nil, err
	}
	return r.location(ctx, parts, irev, iold)
}

func (r *Repository) location(ctx context.Context, parts []string, rev, oldRev int64) ([]string, error) {
	var doc infoDoc
	if err := r.xmlCmd(ctx, &doc, "info", "--depth=empty", revArg(oldRev), r.url(parts, rev)); err != nil {
		if notFound(err) {
			return nil, vclib.ItemNotFound(parts)
		}
		return nil, err
	}
	if len(doc.Entries) == 0 {
		return nil, vclib.ItemNotFound(parts)
	}
	entry := doc.Entries[0]
	if !strings.HasPrefix(entry.URL, r.rootURL) {
		return nil, vclib.ItemNotFound(parts)
	}
	unescaped, err := unescapeURLPath(strings.TrimPrefix(entry.URL, r.rootURL))
	if err != nil {
		return nil, vclib.Errorf("unexpected url %s: %v", entry.URL, err)
	}
	oldParts := vclib.PathParts(unescaped)

	// the path may have been copied from a hidden location
	kind := vclib.File
	if entry.Kind == kindDir {
		kind = vclib.Dir
	}
	if !r.canRead(ctx, oldParts, kind, oldRev) {
		return nil, vclib.ItemNotFound(parts)
	}
	return oldParts, nil
}

// CreatedRev returns the last history revision of a path
func (r *Repository) CreatedRev(ctx context.Context, parts []string, rev string) (string, error) {
	if _, err := r.ItemType(ctx, parts, rev); err != nil {
		return "", err
	}
	irev, err := r.getrev(rev)
	if err != nil {
		return "", err
	}
	lhRev, _, err := r.lastHistoryRev(ctx, parts, irev)
	if err != nil {
		return "", err
	}
	return formatRev(lhRev), nil
}

// LastRev finds the youngest revision, not newer than limitRev, in which the path known at pegRev exists.
//
// Subversion only traces history backwards: a younger limit is searched by bisection.
func (r *Repository) LastRev(ctx context.Context, parts []string, pegRev, limitRev string) (string, []string, error) {
	if _, err := r.ItemType(ctx, parts, pegRev); err != nil {
		return "", nil, err
	}
	peg, err := r.getrev(pegRev)
	if err != nil {
		return "", nil, err
	}
	limit, err := r.getrev(limitRev)
	if err != nil {
		return "", nil, err
	}

	switch {
	case peg == limit:
		return formatRev(peg), parts, nil
	case peg > limit:
		loc, err := r.location(ctx, parts, peg, limit)
		if err != nil {
			return "", nil, err
		}
		return formatRev(limit), loc, nil
	}

	for peg != limit {
		mid := (peg + 1 + limit) / 2
		loc, err := r.location(ctx, parts, peg, mid)
		switch {
		case vclib.IsNotFound(err):
			limit = mid - 1
		case err != nil:
			return "", nil, err
		default:
			peg = mid
			parts = loc
		}
	}
	return formatRev(peg), parts, nil
}

// SymlinkTarget reads the target of a file with the svn:special property, stored as "link TARGET"
func (r *Repository) SymlinkTarget(ctx context.Context, parts []string, rev string) (string, bool, error) {
	props, kind, err := r.itemProps(ctx, parts, rev)
	if err != nil {
		return "", false, err
	}
	if _, special := props[propSpecial]; kind != vclib.File || !special {
		return "", false, nil
	}
	irev, err := r.getrev(rev)
	if err != nil {
		return "", false, err
	}

	rc, err := r.cat(ctx, parts, irev)
	if err != nil {
		return "", false, err
	}
	line, err := bufio.NewReader(rc).ReadString('\n')
	_ = rc.Close()
	if err != nil && err != io.EOF {
		return "", false, err
	}
	if !strings.HasPrefix(line, "link ") {
		return "", false, nil
	}
	return strings.TrimSuffix(line[len("link "):], "\n"), true, nil
}

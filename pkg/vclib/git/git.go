// Copyright © 2018 One Concern

package git

import (
	"context"
	"io"
	"io/ioutil"
	"regexp"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	lru "github.com/hashicorp/golang-lru"
	"github.com/spf13/afero"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"go.uber.org/zap"
)

const defaultCacheSize = 256

var (
	reHash = regexp.MustCompile(`^[0-9a-fA-F]{4,40}$`)

	defaultBranches = []string{"main", "trunk", "master"}
)

// Repository reads a git repository. Revisions are commit ids, or anything
// which resolves to a commit: branches, tags, abbreviated ids.
//
// History is walked along first parents only.
type Repository struct {
	name          string
	rootPath      string
	auth          vclib.Authorizer
	defaultBranch string
	diffCmd       string
	cacheSize     int
	storer        storage.Storer
	fs            afero.Fs
	l             *zap.Logger

	repo           *gogit.Repository
	youngest       *object.Commit
	localBranches  []string
	remoteBranches []string
	tags           []string
	// per-commit metadata, authz-sanitized
	revinfoCache *lru.Cache
}

var _ vclib.Repository = &Repository{}

// New git repository. The root path may be any directory inside a working copy, or a bare repository.
func New(name, rootPath string, opts ...Option) (*Repository, error) {
	r := &Repository{
		name:      name,
		rootPath:  rootPath,
		cacheSize: defaultCacheSize,
		fs:        afero.NewOsFs(),
		l:         zap.NewNop(),
	}
	for _, apply := range opts {
		apply(r)
	}

	if r.storer == nil {
		dir, ok := Discover(r.fs, rootPath)
		if !ok {
			return nil, vclib.ReposNotFound(name, nil)
		}
		r.rootPath = dir
	}

	var err error
	if r.revinfoCache, err = lru.New(r.cacheSize); err != nil {
		return nil, err
	}
	return r, nil
}

// Open reads the references and settles the default branch. Universal read access drops the authorizer.
func (r *Repository) Open(ctx context.Context) error {
	if !vclib.CheckRootAccess(r) {
		return vclib.ReposNotFound(r.name, nil)
	}

	var err error
	if r.storer != nil {
		r.repo, err = gogit.Open(r.storer, nil)
	} else {
		r.repo, err = gogit.PlainOpen(r.rootPath)
	}
	if err != nil {
		return vclib.ReposNotFound(r.name, err)
	}

	if err = r.readRefs(); err != nil {
		return err
	}
	if r.youngest, err = r.defaultTip(); err != nil {
		return err
	}
	r.revinfoCache.Purge()

	r.auth = vclib.UniversalAuthorizer(r.name, r.auth)
	r.l.Debug("opened git repository",
		zap.String("root", r.name),
		zap.String("branch", r.defaultBranch),
		zap.Stringer("youngest", r.youngest.Hash))
	return nil
}

func (r *Repository) Name() string { return r.name }
func (r *Repository) RootType() vclib.RootType { return vclib.Git }
func (r *Repository) RootPath() string { return r.rootPath }
func (r *Repository) Authorizer() vclib.Authorizer { return r.auth }

// DefaultBranch is the branch shown by default, or empty when HEAD is
func (r *Repository) DefaultBranch() string { return r.defaultBranch }

// Youngest commit of the default branch, as of Open
func (r *Repository) Youngest() string { return r.youngest.Hash.String() }

func (r *Repository) readRefs() error {
	refs, err := r.repo.References()
	if err != nil {
		return vclib.Errorf("reading references: %v", err)
	}
	r.localBranches, r.remoteBranches, r.tags = nil, nil, nil
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		switch {
		case name.IsBranch():
			r.localBranches = append(r.localBranches, name.Short())
		case name.IsRemote():
			r.remoteBranches = append(r.remoteBranches, name.Short())
		case name.IsTag():
			r.tags = append(r.tags, name.Short())
		}
		return nil
	})
	if err != nil {
		return vclib.Errorf("reading references: %v", err)
	}
	sort.Strings(r.localBranches)
	sort.Strings(r.remoteBranches)
	sort.Strings(r.tags)
	return nil
}

func (r *Repository) defaultTip() (*object.Commit, error) {
	if r.defaultBranch == "" {
		for _, branch := range defaultBranches {
			if contains(r.localBranches, branch) {
				r.defaultBranch = branch
				break
			}
		}
	}
	if r.defaultBranch != "" {
		c, err := r.resolve(r.defaultBranch)
		if err != nil {
			return nil, vclib.Errorf("resolving default branch %s: %v", r.defaultBranch, err)
		}
		return c, nil
	}

	head, err := r.repo.Head()
	if err != nil {
		return nil, vclib.Errorf("resolving HEAD: %v", err)
	}
	c, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, vclib.Errorf("reading HEAD commit: %v", err)
	}
	return c, nil
}

// getcommit resolves a revision to a commit: empty or HEAD designate the tip of the default branch
func (r *Repository) getcommit(rev string) (*object.Commit, error) {
	if rev == "" || rev == "HEAD" {
		return r.youngest, nil
	}
	c, err := r.resolve(rev)
	if err != nil {
		return nil, vclib.InvalidRevision(rev)
	}
	return c, nil
}

func (r *Repository) resolve(rev string) (*object.Commit, error) {
	if reHash.MatchString(rev) {
		if plumbing.IsHash(rev) {
			if c, err := r.repo.CommitObject(plumbing.NewHash(rev)); err == nil {
				return c, nil
			}
		}
		if c, err := r.resolveRevision(strings.ToLower(rev)); err == nil {
			return c, nil
		}
	}
	return r.resolveRevision(rev)
}

func (r *Repository) resolveRevision(rev string) (*object.Commit, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, err
	}
	return r.repo.CommitObject(*h)
}

func kindOf(mode filemode.FileMode) vclib.ItemType {
	switch {
	case mode == filemode.Dir:
		return vclib.Dir
	case mode.IsFile():
		return vclib.File
	default:
		return vclib.Unknown
	}
}

func findEntry(tree *object.Tree, name string) *object.TreeEntry {
	for i := range tree.Entries {
		if tree.Entries[i].Name == name {
			return &tree.Entries[i]
		}
	}
	return nil
}

// lookup returns the tree entry of a path in a commit, or nil when the path does not exist there
func (r *Repository) lookup(c *object.Commit, parts []string) (*object.TreeEntry, error) {
	entry := &object.TreeEntry{Mode: filemode.Dir, Hash: c.TreeHash}
	for _, part := range parts {
		if entry.Mode != filemode.Dir {
			return nil, nil
		}
		tree, err := r.repo.TreeObject(entry.Hash)
		if err != nil {
			return nil, vclib.Errorf("reading tree %s: %v", entry.Hash, err)
		}
		if entry = findEntry(tree, part); entry == nil {
			return nil, nil
		}
	}
	return entry, nil
}

// nodeAt finds a readable path in a commit
func (r *Repository) nodeAt(ctx context.Context, parts []string, c *object.Commit) (*object.TreeEntry, vclib.ItemType, error) {
	entry, err := r.lookup(c, parts)
	if err != nil {
		return nil, vclib.Unknown, err
	}
	if entry == nil {
		return nil, vclib.Unknown, vclib.ItemNotFound(parts)
	}
	kind := kindOf(entry.Mode)
	if kind == vclib.Unknown {
		return nil, vclib.Unknown, vclib.Errorf("unexpected object type %s at '%s'", entry.Mode, vclib.JoinPath(parts))
	}
	if !vclib.CheckPathAccess(ctx, r, parts, kind, c.Hash.String()) {
		return nil, vclib.Unknown, vclib.ItemNotFound(parts)
	}
	return entry, kind, nil
}

func (r *Repository) node(ctx context.Context, parts []string, rev string) (*object.Commit, *object.TreeEntry, vclib.ItemType, error) {
	c, err := r.getcommit(rev)
	if err != nil {
		return nil, nil, vclib.Unknown, err
	}
	entry, kind, err := r.nodeAt(ctx, parts, c)
	if err != nil {
		return nil, nil, vclib.Unknown, err
	}
	return c, entry, kind, nil
}

func (r *Repository) file(ctx context.Context, parts []string, rev string) (*object.Commit, *object.TreeEntry, error) {
	c, entry, kind, err := r.node(ctx, parts, rev)
	if err != nil {
		return nil, nil, err
	}
	if kind != vclib.File {
		return nil, nil, vclib.Errorf("Path '%s' is not a file.", vclib.JoinPath(parts))
	}
	return c, entry, nil
}

func (r *Repository) blob(entry *object.TreeEntry) (*object.Blob, error) {
	b, err := r.repo.BlobObject(entry.Hash)
	if err != nil {
		return nil, vclib.Errorf("reading blob %s: %v", entry.Hash, err)
	}
	return b, nil
}

func (r *Repository) ItemType(ctx context.Context, parts []string, rev string) (vclib.ItemType, error) {
	_, _, kind, err := r.node(ctx, parts, rev)
	return kind, err
}

// OpenFile streams a blob
func (r *Repository) OpenFile(ctx context.Context, parts []string, rev string, _ vclib.OpenOptions) (io.ReadCloser, string, error) {
	c, entry, err := r.file(ctx, parts, rev)
	if err != nil {
		return nil, "", err
	}
	b, err := r.blob(entry)
	if err != nil {
		return nil, "", err
	}
	rc, err := b.Reader()
	if err != nil {
		return nil, "", vclib.Errorf("reading blob %s: %v", entry.Hash, err)
	}
	return rc, c.Hash.String(), nil
}

// ListDir lists the readable entries of a tree. Submodules are left out.
func (r *Repository) ListDir(ctx context.Context, parts []string, rev string, _ vclib.ListOptions) ([]*vclib.DirEntry, error) {
	c, entry, kind, err := r.node(ctx, parts, rev)
	if err != nil {
		return nil, err
	}
	if kind != vclib.Dir {
		return nil, vclib.Errorf("Path '%s' is not a directory.", vclib.JoinPath(parts))
	}
	tree, err := r.repo.TreeObject(entry.Hash)
	if err != nil {
		return nil, vclib.Errorf("reading tree %s: %v", entry.Hash, err)
	}

	entries := make([]*vclib.DirEntry, 0, len(tree.Entries))
	for _, child := range tree.Entries {
		childKind := kindOf(child.Mode)
		if childKind == vclib.Unknown {
			continue
		}
		if !vclib.CheckPathAccess(ctx, r, childParts(parts, child.Name), childKind, c.Hash.String()) {
			continue
		}
		entries = append(entries, &vclib.DirEntry{Name: child.Name, Kind: childKind})
	}
	return entries, nil
}

// ItemProps is always empty: git does not version properties
func (r *Repository) ItemProps(ctx context.Context, parts []string, rev string) (map[string]string, error) {
	if _, err := r.ItemType(ctx, parts, rev); err != nil {
		return nil, err
	}
	return map[string]string{}, nil
}

func (r *Repository) IsExecutable(ctx context.Context, parts []string, rev string) (bool, error) {
	_, entry, err := r.file(ctx, parts, rev)
	if err != nil {
		return false, err
	}
	return entry.Mode == filemode.Executable, nil
}

func (r *Repository) FileSize(ctx context.Context, parts []string, rev string) (int64, error) {
	_, entry, err := r.file(ctx, parts, rev)
	if err != nil {
		return -1, err
	}
	b, err := r.blob(entry)
	if err != nil {
		return -1, err
	}
	return b.Size, nil
}

// GetLocation returns the same path, provided it exists at oldRev: renames are not tracked
func (r *Repository) GetLocation(ctx context.Context, parts []string, rev, oldRev string) ([]string, error) {
	for _, at := range []string{rev, oldRev} {
		if _, err := r.ItemType(ctx, parts, at); err != nil {
			return nil, err
		}
	}
	return append([]string{}, parts...), nil
}

// step moves one commit down the first-parent history of a path. changed tells whether
// cur gave the path the content found in entry.
func (r *Repository) step(cur *object.Commit, parts []string, entry *object.TreeEntry) (*object.Commit, *object.TreeEntry, bool, error) {
	prev, err := r.firstParent(cur)
	if err != nil || prev == nil {
		return nil, nil, true, err
	}
	prevEntry, err := r.lookup(prev, parts)
	if err != nil {
		return nil, nil, false, err
	}
	changed := prevEntry == nil || prevEntry.Hash != entry.Hash || prevEntry.Mode != entry.Mode
	return prev, prevEntry, changed, nil
}

func (r *Repository) firstParent(c *object.Commit) (*object.Commit, error) {
	if c.NumParents() == 0 {
		return nil, nil
	}
	p, err := c.Parent(0)
	if err != nil {
		return nil, vclib.Errorf("reading parent of %s: %v", c.Hash, err)
	}
	return p, nil
}

// CreatedRev returns the commit which gave the path its content, along first parents
func (r *Repository) CreatedRev(ctx context.Context, parts []string, rev string) (string, error) {
	cur, entry, _, err := r.node(ctx, parts, rev)
	if err != nil {
		return "", err
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		prev, _, changed, err := r.step(cur, parts, entry)
		if err != nil {
			return "", err
		}
		if changed {
			return cur.Hash.String(), nil
		}
		cur = prev
	}
}

func (r *Repository) LastRev(ctx context.Context, parts []string, pegRev, _ string) (string, []string, error) {
	if _, err := r.ItemType(ctx, parts, pegRev); err != nil {
		return "", nil, err
	}
	return "", nil, vclib.Unsupported("LastRev")
}

// SymlinkTarget reads the target of a blob with the symlink mode
func (r *Repository) SymlinkTarget(ctx context.Context, parts []string, rev string) (string, bool, error) {
	_, entry, kind, err := r.node(ctx, parts, rev)
	if err != nil {
		return "", false, err
	}
	if kind != vclib.File || entry.Mode != filemode.Symlink {
		return "", false, nil
	}
	b, err := r.blob(entry)
	if err != nil {
		return "", false, err
	}
	rc, err := b.Reader()
	if err != nil {
		return "", false, vclib.Errorf("reading blob %s: %v", entry.Hash, err)
	}
	defer func() { _ = rc.Close() }()
	target, err := ioutil.ReadAll(rc)
	if err != nil {
		return "", false, vclib.Errorf("reading blob %s: %v", entry.Hash, err)
	}
	return string(target), true, nil
}

// Branches lists the local branches holding a readable path
func (r *Repository) Branches(ctx context.Context, parts []string) ([]string, error) {
	return r.holding(ctx, r.localBranches, parts)
}

// Tags lists the tags holding a readable path
func (r *Repository) Tags(ctx context.Context, parts []string) ([]string, error) {
	return r.holding(ctx, r.tags, parts)
}

func (r *Repository) holding(ctx context.Context, refs []string, parts []string) ([]string, error) {
	if len(parts) == 0 {
		return append([]string{}, refs...), nil
	}
	found := make([]string, 0, len(refs))
	for _, ref := range refs {
		c, err := r.resolve(ref)
		if err != nil {
			r.l.Debug("skipping unresolved reference", zap.String("ref", ref), zap.Error(err))
			continue
		}
		if _, _, err := r.nodeAt(ctx, parts, c); err != nil {
			if vclib.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		found = append(found, ref)
	}
	return found, nil
}

func childParts(parts []string, name string) []string {
	child := make([]string, len(parts), len(parts)+1)
	copy(child, parts)
	return append(child, name)
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

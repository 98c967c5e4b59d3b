package ccvs

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/spf13/afero"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"go.uber.org/zap"
)

const (
	atticDir       = "Attic"
	rcsSuffix      = ",v"
	defaultCacheSz = 64
)

// base holds what both CVS drivers share: they read the same RCS tree, and only
// differ in how RCS files are interpreted.
type base struct {
	name     string
	rootPath string
	auth     vclib.Authorizer
	fs       afero.Fs
	l        *zap.Logger

	rcsDir    string
	cvsnt     string
	diffCmd   string
	cacheSize int
	cache     *lru.Cache
}

func newBase(name, rootPath string, opts ...Option) (*base, error) {
	b := &base{
		name:      name,
		rootPath:  filepath.Clean(rootPath),
		fs:        afero.NewOsFs(),
		l:         zap.NewNop(),
		cacheSize: defaultCacheSz,
	}
	for _, apply := range opts {
		apply(b)
	}

	isDir, err := afero.IsDir(b.fs, b.rootPath)
	if err != nil || !isDir {
		return nil, vclib.ReposNotFound(name, err)
	}

	b.cache, err = lru.New(b.cacheSize)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Open checks access to the root. Universal read access drops the authorizer.
func (b *base) Open(_ context.Context) error {
	if b.auth != nil && !b.auth.CheckRootAccess(b.name) {
		return vclib.ReposNotFound(b.name, nil)
	}
	b.auth = vclib.UniversalAuthorizer(b.name, b.auth)
	return nil
}

func (b *base) Name() string { return b.name }
func (b *base) RootType() vclib.RootType { return vclib.CVS }
func (b *base) RootPath() string { return b.rootPath }
func (b *base) Authorizer() vclib.Authorizer { return b.auth }

func (b *base) canRead(parts []string, kind vclib.ItemType, rev string) bool {
	if b.auth == nil {
		return true
	}
	return b.auth.CheckPathAccess(b.name, parts, kind, rev)
}

func (b *base) getPath(parts []string) string {
	return filepath.Join(append([]string{b.rootPath}, parts...)...)
}

func atticPath(parts []string) []string {
	if len(parts) == 0 {
		return parts
	}
	attic := make([]string, 0, len(parts)+1)
	attic = append(attic, parts[:len(parts)-1]...)
	return append(attic, atticDir, parts[len(parts)-1])
}

func (b *base) isFile(pth string) bool {
	info, err := b.fs.Stat(pth)
	return err == nil && info.Mode().IsRegular()
}

// ItemType looks for a directory, then an RCS file, then an RCS file in the Attic
func (b *base) ItemType(_ context.Context, parts []string, rev string) (vclib.ItemType, error) {
	kind := vclib.Unknown
	basePath := b.getPath(parts)
	if isDir, _ := afero.IsDir(b.fs, basePath); isDir {
		kind = vclib.Dir
	} else if b.isFile(basePath+rcsSuffix) || b.isFile(b.getPath(atticPath(parts))+rcsSuffix) {
		kind = vclib.File
	}
	if kind == vclib.Unknown || !b.canRead(parts, kind, rev) {
		return vclib.Unknown, vclib.ItemNotFound(parts)
	}
	return kind, nil
}

func (b *base) checkFile(ctx context.Context, parts []string, rev string) error {
	kind, err := b.ItemType(ctx, parts, rev)
	if err != nil {
		return err
	}
	if kind != vclib.File {
		return vclib.Errorf("Path '%s' is not a file.", vclib.JoinPath(parts))
	}
	return nil
}

func (b *base) checkDir(ctx context.Context, parts []string, rev string) error {
	kind, err := b.ItemType(ctx, parts, rev)
	if err != nil {
		return err
	}
	if kind != vclib.Dir {
		return vclib.Errorf("Path '%s' is not a directory.", vclib.JoinPath(parts))
	}
	return nil
}

// rcsFile locates the RCS file of a path, possibly in the Attic
func (b *base) rcsFile(parts []string) (string, error) {
	pth := b.getPath(parts) + rcsSuffix
	if b.isFile(pth) {
		return pth, nil
	}
	pth = b.getPath(atticPath(parts)) + rcsSuffix
	if b.isFile(pth) {
		return pth, nil
	}
	return "", vclib.ItemNotFound(parts)
}

// rcsRelativeFile is the path of the RCS file relative to the root, used in diff labels
func (b *base) rcsRelativeFile(parts []string) string {
	if b.isFile(b.getPath(parts) + rcsSuffix) {
		return vclib.JoinPath(parts)
	}
	return vclib.JoinPath(atticPath(parts))
}

// ItemProps is always empty: CVS has no properties
func (b *base) ItemProps(ctx context.Context, parts []string, rev string) (map[string]string, error) {
	if _, err := b.ItemType(ctx, parts, rev); err != nil {
		return nil, err
	}
	return map[string]string{}, nil
}

// checkPath tells whether a path is a file or a directory, and whether it is readable
func (b *base) checkPath(pth string) (vclib.ItemType, []string) {
	info, err := b.fs.Stat(pth)
	if err != nil {
		return vclib.Unknown, []string{"stat error: " + err.Error()}
	}

	var errs []string
	mode := info.Mode()
	switch {
	case mode.IsDir():
		if mode.Perm()&0555 == 0 || mode.Perm()&0111 == 0 {
			errs = append(errs, "error: path is not accessible")
		}
		return vclib.Dir, errs
	case mode.IsRegular():
		if mode.Perm()&0444 == 0 {
			errs = append(errs, "error: path is not accessible")
		}
		return vclib.File, errs
	default:
		return vclib.Unknown, []string{"error: path is not a file or directory"}
	}
}

func (b *base) readDir(pth string) ([]os.FileInfo, error) {
	infos, err := afero.ReadDir(b.fs, pth)
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// ListDir lists RCS files, subdirectories and files in the Attic.
//
// Entries are sorted by name. A name present both in the directory and in its
// Attic is listed twice, the second time with InAttic set.
func (b *base) ListDir(ctx context.Context, parts []string, rev string, _ vclib.ListOptions) ([]*vclib.DirEntry, error) {
	if err := b.checkDir(ctx, parts, rev); err != nil {
		return nil, err
	}

	fullName := b.getPath(parts)
	infos, err := b.readDir(fullName)
	if err != nil {
		return nil, vclib.Errorf("listing %s: %v", vclib.JoinPath(parts), err)
	}

	entries := make([]*vclib.DirEntry, 0, len(infos))
	collect := func(dir string, infos []os.FileInfo, inAttic bool) {
		for _, info := range infos {
			file := info.Name()
			kind, errs := b.checkPath(filepath.Join(dir, file))

			var name string
			switch kind {
			case vclib.File:
				if len(file) > len(rcsSuffix) && file[len(file)-len(rcsSuffix):] == rcsSuffix {
					name = file[:len(file)-len(rcsSuffix)]
				}
			case vclib.Dir:
				// the CVS directory holds file attributes
				if !inAttic && file != atticDir && file != "CVS" {
					name = file
				}
			default:
				name = file
			}
			if name == "" {
				continue
			}

			child := append(append([]string{}, parts...), name)
			if !b.canRead(child, kind, rev) {
				continue
			}
			entries = append(entries, &vclib.DirEntry{Name: name, Kind: kind, Errors: errs, InAttic: inAttic})
		}
	}

	collect(fullName, infos, false)

	attic := filepath.Join(fullName, atticDir)
	if isDir, _ := afero.IsDir(b.fs, attic); isDir {
		atticInfos, err := b.readDir(attic)
		if err != nil {
			return nil, vclib.Errorf("listing %s/%s: %v", vclib.JoinPath(parts), atticDir, err)
		}
		collect(attic, atticInfos, true)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// IsExecutable looks for an execute bit on the RCS file
func (b *base) IsExecutable(ctx context.Context, parts []string, rev string) (bool, error) {
	if err := b.checkFile(ctx, parts, rev); err != nil {
		return false, err
	}
	pth, err := b.rcsFile(parts)
	if err != nil {
		return false, err
	}
	info, err := b.fs.Stat(pth)
	if err != nil {
		return false, vclib.Errorf("stat %s: %v", pth, err)
	}
	return info.Mode().Perm()&0111 != 0, nil
}

// FileSize is not known without checking the file out
func (b *base) FileSize(ctx context.Context, parts []string, rev string) (int64, error) {
	if err := b.checkFile(ctx, parts, rev); err != nil {
		return 0, err
	}
	return -1, nil
}

// RevInfo is not supported: CVS has no repository-wide revisions
func (b *base) RevInfo(context.Context, string, bool) (*vclib.RevInfo, error) {
	return nil, vclib.Unsupported("revinfo")
}

// GetLocation is not supported: CVS does not track copies
func (b *base) GetLocation(ctx context.Context, parts []string, rev, _ string) ([]string, error) {
	if _, err := b.ItemType(ctx, parts, rev); err != nil {
		return nil, err
	}
	return nil, vclib.Unsupported("get_location")
}

// CreatedRev is the revision itself
func (b *base) CreatedRev(ctx context.Context, parts []string, rev string) (string, error) {
	if _, err := b.ItemType(ctx, parts, rev); err != nil {
		return "", err
	}
	return rev, nil
}

// LastRev is not supported
func (b *base) LastRev(ctx context.Context, parts []string, pegRev, _ string) (string, []string, error) {
	if _, err := b.ItemType(ctx, parts, pegRev); err != nil {
		return "", nil, err
	}
	return "", nil, vclib.Unsupported("last_rev")
}

// SymlinkTarget always reports a regular file: CVS does not version links
func (b *base) SymlinkTarget(ctx context.Context, parts []string, rev string) (string, bool, error) {
	if _, err := b.ItemType(ctx, parts, rev); err != nil {
		return "", false, err
	}
	return "", false, nil
}

// logPath is the RCS file to read for a directory entry: the file itself, or
// the newest file of a subdirectory when subdirs is set. It is empty when
// there is nothing to read.
func (b *base) logPath(entry *vclib.DirEntry, dirPath string, subdirs bool) (string, string) {
	if len(entry.Errors) > 0 {
		return "", ""
	}
	switch {
	case entry.Kind == vclib.File:
		if entry.InAttic {
			return filepath.Join(dirPath, atticDir, entry.Name+rcsSuffix), ""
		}
		return filepath.Join(dirPath, entry.Name+rcsSuffix), ""
	case entry.Kind == vclib.Dir && subdirs:
		newest := b.newestFile(filepath.Join(dirPath, entry.Name))
		if newest != "" {
			return filepath.Join(dirPath, entry.Name, newest+rcsSuffix), newest
		}
	}
	return "", ""
}

// newestFile finds the most recently modified readable RCS file of a directory
func (b *base) newestFile(dirPath string) string {
	infos, err := b.readDir(dirPath)
	if err != nil {
		return ""
	}
	var (
		newest     string
		newestTime int64
	)
	for _, info := range infos {
		name := info.Name()
		if len(name) <= len(rcsSuffix) || name[len(name)-len(rcsSuffix):] != rcsSuffix || !info.Mode().IsRegular() {
			continue
		}
		if mtime := info.ModTime().Unix(); mtime > newestTime {
			kind, errs := b.checkPath(filepath.Join(dirPath, name))
			if kind == vclib.File && len(errs) == 0 {
				newest = name[:len(name)-len(rcsSuffix)]
				newestTime = mtime
			}
		}
	}
	return newest
}

// splitTags sorts the tag names seen in a directory into tags and branches
func splitTags(allTags map[string]string, opts vclib.ListOptions) {
	var tags, branches []string
	for name, rev := range allTags {
		number, err := tagNumber(rev)
		if err != nil {
			continue
		}
		if isBranchNumber(number) {
			branches = append(branches, name)
		} else {
			tags = append(tags, name)
		}
	}
	sort.Strings(tags)
	sort.Strings(branches)
	if opts.CVSTags != nil {
		*opts.CVSTags = tags
	}
	if opts.CVSBranches != nil {
		*opts.CVSBranches = branches
	}
}

// dirTags starts the collection of tags seen in a directory with the artificial ones
func dirTags() map[string]string {
	return map[string]string{MainTag: "", HeadTag: "1.1"}
}

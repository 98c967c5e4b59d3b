package git

import (
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

// gitDir returns the git directory of pth: pth/.git for a working copy, pth itself for a bare repository
func gitDir(fs afero.Fs, pth string) (string, bool) {
	dotGit := filepath.Join(pth, ".git")
	if isBare(fs, dotGit) {
		return dotGit, true
	}
	if isBare(fs, pth) {
		return pth, true
	}
	return "", false
}

func isBare(fs afero.Fs, pth string) bool {
	if ok, err := afero.Exists(fs, filepath.Join(pth, "HEAD")); err != nil || !ok {
		return false
	}
	for _, dir := range []string{"objects", "refs"} {
		if ok, err := afero.IsDir(fs, filepath.Join(pth, dir)); err != nil || !ok {
			return false
		}
	}
	return true
}

// Discover finds the git directory holding pth, looking up the parent directories
func Discover(fs afero.Fs, pth string) (string, bool) {
	dir := filepath.Clean(pth)
	for {
		if found, ok := gitDir(fs, dir); ok {
			return found, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// IsRoot tells whether a local directory is a git repository
func IsRoot(fs afero.Fs, pth string) bool {
	_, ok := gitDir(fs, pth)
	return ok
}

// ExpandRootParent finds the repositories directly under a parent directory, by name
func ExpandRootParent(fs afero.Fs, parent string) (map[string]string, error) {
	infos, err := afero.ReadDir(fs, parent)
	if err != nil {
		return nil, vclib.Errorf("listing root parent %s: %v", parent, err)
	}
	roots := make(map[string]string)
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		if found, ok := gitDir(fs, filepath.Join(parent, info.Name())); ok {
			roots[info.Name()] = found
		}
	}
	return roots, nil
}

// FindRootInParent returns the git directory of the named repository under a parent directory, if any
func FindRootInParent(fs afero.Fs, parent, name string) (string, bool) {
	return gitDir(fs, filepath.Join(parent, name))
}

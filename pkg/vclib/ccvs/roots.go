package ccvs

import (
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

// IsRoot tells whether a directory is a CVS repository, i.e. holds a CVSROOT/config file
func IsRoot(fs afero.Fs, pth string) bool {
	ok, err := afero.Exists(fs, filepath.Join(pth, "CVSROOT", "config"))
	return err == nil && ok
}

// ExpandRootParent finds the CVS repositories directly under a parent directory, by name
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
		pth := filepath.Join(parent, info.Name())
		if IsRoot(fs, pth) {
			roots[info.Name()] = filepath.Clean(pth)
		}
	}
	return roots, nil
}

// FindRootInParent returns the path of the named repository under a parent directory, if any
func FindRootInParent(fs afero.Fs, parent, name string) (string, bool) {
	pth := filepath.Join(parent, name)
	if !IsRoot(fs, pth) {
		return "", false
	}
	return filepath.Clean(pth), true
}

// Open a CVS repository, with either driver
func Open(name, rootPath string, useRCSParse bool, opts ...Option) (vclib.Repository, error) {
	if useRCSParse {
		return New(name, rootPath, opts...)
	}
	return NewBin(name, rootPath, opts...)
}

package svn

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/spf13/afero"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

var reURL = regexp.MustCompile(`^(http|https|file|svn|svn\+[^:]+)://`)

// IsURL tells whether a root path designates a repository by URL rather than a local directory
func IsURL(rootPath string) bool {
	return reURL.MatchString(rootPath)
}

// IsRoot tells whether a local directory is a Subversion repository, i.e. holds a format file
func IsRoot(fs afero.Fs, pth string) bool {
	ok, err := afero.Exists(fs, filepath.Join(pth, "format"))
	if err != nil || !ok {
		return false
	}
	isDir, err := afero.IsDir(fs, pth)
	return err == nil && isDir
}

// ExpandRootParent finds the repositories directly under a local parent directory, by name.
// Remote parents cannot be listed and yield no root.
func ExpandRootParent(fs afero.Fs, parent string) (map[string]string, error) {
	roots := make(map[string]string)
	if IsURL(parent) {
		return roots, nil
	}
	infos, err := afero.ReadDir(fs, parent)
	if err != nil {
		return nil, vclib.Errorf("listing root parent %s: %v", parent, err)
	}
	for _, info := range infos {
		pth := filepath.Join(parent, info.Name())
		if IsRoot(fs, pth) {
			roots[info.Name()] = filepath.Clean(pth)
		}
	}
	return roots, nil
}

// FindRootInParent returns the path of the named repository under a local parent directory, if any
func FindRootInParent(fs afero.Fs, parent, name string) (string, bool) {
	if IsURL(parent) {
		return "", false
	}
	pth := filepath.Join(parent, name)
	if !IsRoot(fs, pth) {
		return "", false
	}
	return filepath.Clean(pth), true
}

// rootURL turns a repository path into the URL given to the svn client
func rootURL(fs afero.Fs, name, rootPath string) (string, error) {
	if IsURL(rootPath) {
		return strings.TrimRight(rootPath, "/"), nil
	}
	if !IsRoot(fs, rootPath) {
		return "", vclib.ReposNotFound(name, nil)
	}
	pth := filepath.ToSlash(filepath.Clean(rootPath))
	if strings.HasPrefix(pth, "/") {
		return "file://" + pth, nil
	}
	return "file:///" + pth, nil
}

// escapePath URL-escapes each component of a repository path
func escapePath(parts []string) string {
	escaped := make([]string, 0, len(parts))
	for _, part := range parts {
		escaped = append(escaped, url.PathEscape(part))
	}
	return strings.Join(escaped, "/")
}

// cleanPath drops empty components from a repository path
func cleanPath(pth string) string {
	return vclib.JoinPath(vclib.PathParts(pth))
}

// comparePaths orders repository paths so that the children of a path sort right
// after it, before its greater siblings.
func comparePaths(a, b interface{}) int {
	path1, path2 := a.(string), b.(string)
	if path1 == path2 {
		return 0
	}

	i := 0
	for i < len(path1) && i < len(path2) && path1[i] == path2[i] {
		i++
	}
	var char1, char2 byte
	if i < len(path1) {
		char1 = path1[i]
	}
	if i < len(path2) {
		char2 = path2[i]
	}

	switch {
	case char1 == '/' && i == len(path2):
		return 1
	case char2 == '/' && i == len(path1):
		return -1
	case i < len(path1) && char1 == '/':
		return -1
	case i < len(path2) && char2 == '/':
		return 1
	case char1 < char2:
		return -1
	case char1 > char2:
		return 1
	}
	return 0
}

// sortPaths orders the changed paths of a log entry with comparePaths
func sortPaths(paths []*pathElem) []*pathElem {
	m := treemap.NewWith(comparePaths)
	for _, p := range paths {
		m.Put(p.Path, p)
	}
	sorted := make([]*pathElem, 0, m.Size())
	for _, v := range m.Values() {
		sorted = append(sorted, v.(*pathElem))
	}
	return sorted
}

// isChildOf tells whether pth lies below parent
func isChildOf(pth, parent string) bool {
	return strings.HasPrefix(pth, parent) && len(pth) > len(parent) && pth[len(parent)] == '/'
}

func unescapeURLPath(pth string) (string, error) {
	return url.PathUnescape(pth)
}

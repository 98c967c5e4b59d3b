package git

import (
	"context"
	"io"
	"io/ioutil"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

type testFile struct {
	content string
	mode    filemode.FileMode
}

// fixture writes commits straight into an in-memory object store
type fixture struct {
	t       *testing.T
	s       *memory.Storage
	commits map[string]plumbing.Hash
	n       int
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		t:       t,
		s:       memory.NewStorage(),
		commits: make(map[string]plumbing.Hash),
	}
}

func (f *fixture) blob(content string) plumbing.Hash {
	obj := f.s.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	require.NoError(f.t, err)
	_, err = w.Write([]byte(content))
	require.NoError(f.t, err)
	require.NoError(f.t, w.Close())
	h, err := f.s.SetEncodedObject(obj)
	require.NoError(f.t, err)
	return h
}

func (f *fixture) tree(files map[string]testFile) plumbing.Hash {
	subdirs := make(map[string]map[string]testFile)
	var entries []object.TreeEntry
	for pth, file := range files {
		if i := strings.Index(pth, "/"); i >= 0 {
			dir := pth[:i]
			if subdirs[dir] == nil {
				subdirs[dir] = make(map[string]testFile)
			}
			subdirs[dir][pth[i+1:]] = file
			continue
		}
		mode := file.mode
		if mode == filemode.Empty {
			mode = filemode.Regular
		}
		entries = append(entries, object.TreeEntry{Name: pth, Mode: mode, Hash: f.blob(file.content)})
	}
	for dir, children := range subdirs {
		entries = append(entries, object.TreeEntry{Name: dir, Mode: filemode.Dir, Hash: f.tree(children)})
	}

	// git sorts directories as if their name ended with a slash
	key := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool { return key(entries[i]) < key(entries[j]) })

	obj := f.s.NewEncodedObject()
	require.NoError(f.t, (&object.Tree{Entries: entries}).Encode(obj))
	h, err := f.s.SetEncodedObject(obj)
	require.NoError(f.t, err)
	return h
}

func (f *fixture) commit(label, parent, author, msg string, files map[string]testFile) plumbing.Hash {
	f.n++
	sig := object.Signature{
		Name:  author,
		Email: author + "@example.com",
		When:  day(f.n),
	}
	c := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   msg,
		TreeHash:  f.tree(files),
	}
	if parent != "" {
		c.ParentHashes = []plumbing.Hash{f.commits[parent]}
	}
	obj := f.s.NewEncodedObject()
	require.NoError(f.t, c.Encode(obj))
	h, err := f.s.SetEncodedObject(obj)
	require.NoError(f.t, err)
	f.commits[label] = h
	return h
}

func (f *fixture) branch(name, label string) {
	require.NoError(f.t, f.s.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), f.commits[label])))
}

func (f *fixture) tag(name, label string) {
	require.NoError(f.t, f.s.SetReference(plumbing.NewHashReference(plumbing.NewTagReferenceName(name), f.commits[label])))
}

func (f *fixture) head(branch string) {
	require.NoError(f.t, f.s.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))))
}

func (f *fixture) id(label string) string {
	return f.commits[label].String()
}

// testHistory builds a linear history on main:
//   c1 alice: README, src/a.txt, secret/s.txt
//   c2 bob:   modifies src/a.txt and secret/s.txt
//   c3 carol: adds the executable src/run.sh and the symlink src/link
//   c4 alice: modifies README, removes secret
// dev points at c2, the v1 tag at c1.
func testHistory(t *testing.T) *fixture {
	f := newFixture(t)
	readme := testFile{content: "readme\n"}
	runSh := testFile{content: "#!/bin/sh\n", mode: filemode.Executable}
	link := testFile{content: "a.txt", mode: filemode.Symlink}

	f.commit("c1", "", "alice", "initial", map[string]testFile{
		"README":       readme,
		"src/a.txt":    {content: "hello\n"},
		"secret/s.txt": {content: "s\n"},
	})
	f.commit("c2", "c1", "bob", "second", map[string]testFile{
		"README":       readme,
		"src/a.txt":    {content: "hello\nworld\n"},
		"secret/s.txt": {content: "s2\n"},
	})
	f.commit("c3", "c2", "carol", "third", map[string]testFile{
		"README":       readme,
		"src/a.txt":    {content: "hello\nworld\n"},
		"src/run.sh":   runSh,
		"src/link":     link,
		"secret/s.txt": {content: "s2\n"},
	})
	f.commit("c4", "c3", "alice", "fourth", map[string]testFile{
		"README":     {content: "readme v2\n"},
		"src/a.txt":  {content: "hello\nworld\n"},
		"src/run.sh": runSh,
		"src/link":   link,
	})
	f.branch("main", "c4")
	f.branch("dev", "c2")
	f.tag("v1", "c1")
	f.head("main")
	return f
}

type denySecret struct{}

func (denySecret) CheckRootAccess(string) bool { return true }
func (denySecret) CheckUniversalAccess(string) vclib.Access { return vclib.AccessUnknown }
func (denySecret) CheckPathAccess(_ string, parts []string, _ vclib.ItemType, _ string) bool {
	for _, part := range parts {
		if part == "secret" {
			return false
		}
	}
	return true
}

type denyRoot struct{ denySecret }

func (denyRoot) CheckRootAccess(string) bool { return false }

func openFixture(t *testing.T, f *fixture, opts ...Option) *Repository {
	repo, err := New("proj", "/repos/proj", append([]Option{WithStorage(f.s)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, repo.Open(context.Background()))
	return repo
}

func newTestRepo(t *testing.T, opts ...Option) (*Repository, *fixture) {
	f := testHistory(t)
	return openFixture(t, f, opts...), f
}

func parts(pth string) []string {
	return vclib.PathParts(pth)
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	defer func() { _ = rc.Close() }()
	b, err := ioutil.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func revIDs(revs []*vclib.Revision) []string {
	ids := make([]string, 0, len(revs))
	for _, r := range revs {
		ids = append(ids, r.ID)
	}
	return ids
}

func day(d int) time.Time {
	return time.Date(2020, 1, d, 10, 0, 0, 0, time.UTC)
}

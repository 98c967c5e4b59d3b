package ccvs

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viewvc/viewvc-sub000/pkg/errors"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/status"
)

const removedFile = `head	1.2;
access;
symbols;
locks; strict;
comment	@# @;


1.2
date	2020.04.01.10.00.00;	author bob;	state dead;
branches;
next	1.1;

1.1
date	2020.01.01.10.00.00;	author bob;	state Exp;
branches;
next	;


desc
@@


1.2
log
@removed
@
text
@@


1.1
log
@added
@
text
@a0 1
gone
@
`

func newTestFs(t *testing.T) afero.Fs {
	sample, err := ioutil.ReadFile(filepath.Join("rcsparse", "testdata", "sample,v"))
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	for pth, content := range map[string][]byte{
		"/cvsroot/CVSROOT/config":      {},
		"/cvsroot/proj/sample.c,v":     sample,
		"/cvsroot/proj/Attic/gone.c,v": []byte(removedFile),
		"/cvsroot/proj/sub/inner.c,v":  sample,
		"/cvsroot/proj/secret/key.c,v": sample,
	} {
		require.NoError(t, afero.WriteFile(fs, pth, content, 0644))
	}
	return fs
}

type denySecret struct{}

func (denySecret) CheckRootAccess(string) bool { return true }
func (denySecret) CheckUniversalAccess(string) vclib.Access { return vclib.AccessUnknown }
func (denySecret) CheckPathAccess(_ string, parts []string, _ vclib.ItemType, _ string) bool {
	return len(parts) < 2 || parts[1] != "secret"
}

func newTestRepo(t *testing.T, opts ...Option) *Repository {
	opts = append([]Option{WithFs(newTestFs(t))}, opts...)
	repo, err := New("test", "/cvsroot", opts...)
	require.NoError(t, err)
	require.NoError(t, repo.Open(context.Background()))
	return repo
}

func readAll(t *testing.T, repo vclib.Repository, pth, rev string) (string, string) {
	fp, actual, err := repo.OpenFile(context.Background(), vclib.PathParts(pth), rev, vclib.OpenOptions{})
	require.NoError(t, err)
	defer func() { _ = fp.Close() }()
	content, err := ioutil.ReadAll(fp)
	require.NoError(t, err)
	return string(content), actual
}

func revIDs(revs []*vclib.Revision) []string {
	ids := make([]string, 0, len(revs))
	for _, rev := range revs {
		ids = append(ids, rev.ID)
	}
	return ids
}

func TestNewMissingRoot(t *testing.T) {
	_, err := New("test", "/nowhere", WithFs(afero.NewMemMapFs()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrReposNotFound))
}

func TestItemType(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, toPin := range []struct {
		path     string
		expected vclib.ItemType
	}{
		{path: "", expected: vclib.Dir},
		{path: "proj", expected: vclib.Dir},
		{path: "proj/sample.c", expected: vclib.File},
		{path: "proj/gone.c", expected: vclib.File},
	} {
		fixture := toPin
		t.Run(fixture.path, func(t *testing.T) {
			kind, err := repo.ItemType(ctx, vclib.PathParts(fixture.path), "")
			require.NoError(t, err)
			assert.Equal(t, fixture.expected, kind)
		})
	}

	_, err := repo.ItemType(ctx, []string{"proj", "missing.c"}, "")
	assert.True(t, vclib.IsNotFound(err))
}

func TestListDir(t *testing.T) {
	repo := newTestRepo(t, WithAuthorizer(denySecret{}))
	entries, err := repo.ListDir(context.Background(), []string{"proj"}, "", vclib.ListOptions{})
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, "gone.c", entries[0].Name)
	assert.Equal(t, vclib.File, entries[0].Kind)
	assert.True(t, entries[0].InAttic)
	assert.Equal(t, "sample.c", entries[1].Name)
	assert.False(t, entries[1].InAttic)
	assert.Equal(t, "sub", entries[2].Name)
	assert.Equal(t, vclib.Dir, entries[2].Kind)

	_, err = repo.ItemType(context.Background(), []string{"proj", "secret"}, "")
	assert.True(t, vclib.IsNotFound(err))
}

func TestOpenFile(t *testing.T) {
	repo := newTestRepo(t)

	for _, toPin := range []struct {
		name     string
		path     string
		rev      string
		expected string
		actual   string
	}{
		{name: "head", path: "proj/sample.c", expected: "line one\nline two changed\nline three\nline four\n", actual: "1.3"},
		{name: "HEAD tag", path: "proj/sample.c", rev: "HEAD", expected: "line one\nline two changed\nline three\nline four\n", actual: "1.3"},
		{name: "revision", path: "proj/sample.c", rev: "1.2", expected: "line one\nline two changed\nline three\n", actual: "1.2"},
		{name: "first revision", path: "proj/sample.c", rev: "1.1", expected: "line one\nline two\nline three\n", actual: "1.1"},
		{name: "tag", path: "proj/sample.c", rev: "rel_1_0", expected: "line one\nline two changed\nline three\n", actual: "1.2"},
		{name: "branch", path: "proj/sample.c", rev: "branch_x", expected: "line one\nline two changed\nline three\nbranch line\n", actual: "1.2.2.1"},
		{name: "dead head", path: "proj/gone.c", expected: "", actual: "1.2"},
		{name: "attic", path: "proj/gone.c", rev: "1.1", expected: "gone\n", actual: "1.1"},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			content, actual := readAll(t, repo, fixture.path, fixture.rev)
			assert.Equal(t, fixture.expected, content)
			assert.Equal(t, fixture.actual, actual)
		})
	}

	_, _, err := repo.OpenFile(context.Background(), []string{"proj"}, "", vclib.OpenOptions{})
	assert.Error(t, err)

	_, _, err = repo.OpenFile(context.Background(), []string{"proj", "sample.c"}, "no_such_tag", vclib.OpenOptions{})
	assert.True(t, errors.Is(err, status.ErrInvalidRevision))
}

func TestItemLog(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	parts := []string{"proj", "sample.c"}

	tags := make(map[string]*vclib.Tag)
	revs, err := repo.ItemLog(ctx, parts, "", vclib.SortByRev, 0, 0, vclib.LogOptions{CVSTags: tags})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.3", "1.2.2.1", "1.2", "1.1"}, revIDs(revs))

	changed := make(map[string]string)
	for _, rev := range revs {
		changed[rev.ID] = rev.Changed
	}
	assert.Equal(t, map[string]string{"1.3": "+1 -0", "1.2.2.1": "+1 -0", "1.2": "+1 -1", "1.1": ""}, changed)

	assert.Equal(t, "alice", revs[0].LockInfo)
	assert.Equal(t, "third\n", revs[0].Log)
	assert.Equal(t, "first @ commit\n", revs[3].Log)
	assert.Equal(t, 1999, revs[3].Date.Year())

	require.Contains(t, tags, "rel_1_0")
	require.Contains(t, tags, "branch_x")
	require.Contains(t, tags, MainTag)
	require.Contains(t, tags, HeadTag)
	assert.True(t, tags["branch_x"].IsBranch)
	assert.Equal(t, []int{1, 2, 2}, tags["branch_x"].Number)
	assert.Equal(t, "1.2.2.1", tags["branch_x"].CoRev.ID)
	assert.Equal(t, "1.2", tags["rel_1_0"].CoRev.ID)
	assert.Equal(t, "1.3", tags[HeadTag].CoRev.ID)

	t.Run("branch", func(t *testing.T) {
		revs, err := repo.ItemLog(ctx, parts, "branch_x", vclib.SortByRev, 0, 0, vclib.LogOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"1.2.2.1", "1.2", "1.1"}, revIDs(revs))
	})

	t.Run("tag", func(t *testing.T) {
		revs, err := repo.ItemLog(ctx, parts, "rel_1_0", vclib.SortByDate, 0, 0, vclib.LogOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"1.2", "1.1"}, revIDs(revs))
	})

	t.Run("paging", func(t *testing.T) {
		revs, err := repo.ItemLog(ctx, parts, "", vclib.SortByRev, 1, 2, vclib.LogOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"1.2.2.1", "1.2"}, revIDs(revs))
	})

	t.Run("prune dead", func(t *testing.T) {
		parts := []string{"proj", "gone.c"}
		revs, err := repo.ItemLog(ctx, parts, "", vclib.SortByRev, 0, 0, vclib.LogOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"1.2", "1.1"}, revIDs(revs))
		assert.True(t, revs[0].Dead)

		revs, err = repo.ItemLog(ctx, parts, "", vclib.SortByRev, 0, 0, vclib.LogOptions{CVSPruneDead: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"1.1"}, revIDs(revs))
	})

	_, err = repo.ItemLog(ctx, parts, "no_such_tag", vclib.SortByRev, 0, 0, vclib.LogOptions{})
	assert.True(t, errors.Is(err, status.ErrInvalidRevision))

	_, err = repo.ItemLog(ctx, []string{"proj", "missing.c"}, "", vclib.SortByRev, 0, 0, vclib.LogOptions{})
	assert.True(t, vclib.IsNotFound(err))
}

func TestDirLogs(t *testing.T) {
	repo := newTestRepo(t, WithAuthorizer(denySecret{}))
	ctx := context.Background()
	parts := []string{"proj"}

	entries, err := repo.ListDir(ctx, parts, "", vclib.ListOptions{})
	require.NoError(t, err)

	var tags, branches []string
	require.NoError(t, repo.DirLogs(ctx, parts, "", entries, vclib.ListOptions{
		CVSSubdirs:  true,
		CVSTags:     &tags,
		CVSBranches: &branches,
	}))

	byName := make(map[string]*vclib.DirEntry)
	for _, entry := range entries {
		byName[entry.Name] = entry
	}

	sample := byName["sample.c"]
	assert.Equal(t, "1.3", sample.Rev)
	assert.Equal(t, "alice", sample.Author)
	assert.Equal(t, "third\n", sample.Log)
	assert.Equal(t, "alice", sample.LockInfo)
	assert.False(t, sample.Dead)

	gone := byName["gone.c"]
	assert.Equal(t, "1.2", gone.Rev)
	assert.True(t, gone.Dead)

	sub := byName["sub"]
	assert.Equal(t, "1.3", sub.Rev)
	assert.Equal(t, "inner.c", sub.LogFile)

	assert.Equal(t, []string{"HEAD", "rel_1_0"}, tags)
	assert.Equal(t, []string{"MAIN", "branch_x"}, branches)

	t.Run("on a branch", func(t *testing.T) {
		entries, err := repo.ListDir(ctx, parts, "branch_x", vclib.ListOptions{})
		require.NoError(t, err)
		require.NoError(t, repo.DirLogs(ctx, parts, "branch_x", entries, vclib.ListOptions{}))

		for _, entry := range entries {
			switch entry.Name {
			case "sample.c":
				assert.Equal(t, "1.2.2.1", entry.Rev)
				assert.Equal(t, "carol", entry.Author)
				assert.False(t, entry.Absent)
			case "gone.c":
				assert.True(t, entry.Absent)
				assert.Empty(t, entry.Rev)
			}
		}
	})
}

func TestAnnotate(t *testing.T) {
	repo := newTestRepo(t)

	var annotations []*vclib.Annotation
	rev, err := repo.Annotate(context.Background(), []string{"proj", "sample.c"}, "", true, func(a *vclib.Annotation) error {
		annotations = append(annotations, a)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1.3", rev)

	require.Len(t, annotations, 4)
	expected := []struct {
		rev  string
		text string
	}{
		{rev: "1.1", text: "line one"},
		{rev: "1.2", text: "line two changed"},
		{rev: "1.1", text: "line three"},
		{rev: "1.3", text: "line four"},
	}
	for idx, annotation := range annotations {
		assert.Equal(t, idx+1, annotation.LineNumber)
		assert.Equal(t, expected[idx].rev, annotation.Rev)
		require.NotNil(t, annotation.Text)
		assert.Equal(t, expected[idx].text, *annotation.Text)
	}
	assert.Equal(t, "1.2", annotations[3].PrevRev)
	assert.Equal(t, "alice", annotations[3].Author)
	require.NotNil(t, annotations[3].Date)

	stop := errors.New("stop")
	_, err = repo.Annotate(context.Background(), []string{"proj", "sample.c"}, "", false, func(a *vclib.Annotation) error {
		assert.Nil(t, a.Text)
		return stop
	})
	assert.True(t, errors.Is(err, stop))
}

func TestRawDiff(t *testing.T) {
	repo := newTestRepo(t)
	parts := []string{"proj", "sample.c"}

	fp, err := repo.RawDiff(context.Background(), parts, "1.1", parts, "1.2", vclib.Unified, vclib.DiffOptions{})
	require.NoError(t, err)
	defer func() { _ = fp.Close() }()

	out, err := ioutil.ReadAll(fp)
	require.NoError(t, err)
	diff := string(out)
	assert.True(t, strings.Contains(diff, "-line two\n"), diff)
	assert.True(t, strings.Contains(diff, "+line two changed\n"), diff)
	assert.True(t, strings.Contains(diff, "\t1.1"), diff)
}

func TestUnsupported(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.RevInfo(ctx, "1.1", false)
	assert.True(t, errors.Is(err, status.ErrUnsupportedFeature))

	size, err := repo.FileSize(ctx, []string{"proj", "sample.c"}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), size)

	props, err := repo.ItemProps(ctx, []string{"proj", "sample.c"}, "")
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestDeniedPaths(t *testing.T) {
	ctx := context.Background()
	file, dir := []string{"proj", "secret", "key.c"}, []string{"proj", "secret"}
	missing := []string{"proj", "missing.c"}

	repo := newTestRepo(t, WithAuthorizer(denySecret{}))
	for _, toPin := range []struct {
		name string
		call func(repo vclib.Repository, parts []string) error
	}{
		{name: "ItemType", call: func(repo vclib.Repository, parts []string) error {
			_, err := repo.ItemType(ctx, parts, "")
			return err
		}},
		{name: "OpenFile", call: func(repo vclib.Repository, parts []string) error {
			_, _, err := repo.OpenFile(ctx, parts, "", vclib.OpenOptions{})
			return err
		}},
		{name: "ItemLog", call: func(repo vclib.Repository, parts []string) error {
			_, err := repo.ItemLog(ctx, parts, "", vclib.SortByRev, 0, 0, vclib.LogOptions{})
			return err
		}},
		{name: "ItemProps", call: func(repo vclib.Repository, parts []string) error {
			_, err := repo.ItemProps(ctx, parts, "")
			return err
		}},
		{name: "Annotate", call: func(repo vclib.Repository, parts []string) error {
			_, err := repo.Annotate(ctx, parts, "", true, func(*vclib.Annotation) error { return nil })
			return err
		}},
		{name: "RawDiff", call: func(repo vclib.Repository, parts []string) error {
			_, err := repo.RawDiff(ctx, parts, "1.1", parts, "1.2", vclib.Unified, vclib.DiffOptions{})
			return err
		}},
		{name: "IsExecutable", call: func(repo vclib.Repository, parts []string) error {
			_, err := repo.IsExecutable(ctx, parts, "")
			return err
		}},
		{name: "FileSize", call: func(repo vclib.Repository, parts []string) error {
			_, err := repo.FileSize(ctx, parts, "")
			return err
		}},
		{name: "GetLocation", call: func(repo vclib.Repository, parts []string) error {
			_, err := repo.GetLocation(ctx, parts, "1.2", "1.1")
			return err
		}},
		{name: "CreatedRev", call: func(repo vclib.Repository, parts []string) error {
			_, err := repo.CreatedRev(ctx, parts, "1.2")
			return err
		}},
		{name: "LastRev", call: func(repo vclib.Repository, parts []string) error {
			_, _, err := repo.LastRev(ctx, parts, "1.1", "1.2")
			return err
		}},
		{name: "SymlinkTarget", call: func(repo vclib.Repository, parts []string) error {
			_, _, err := repo.SymlinkTarget(ctx, parts, "")
			return err
		}},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			assert.True(t, vclib.IsNotFound(fixture.call(repo, file)))
			assert.True(t, vclib.IsNotFound(fixture.call(repo, missing)))
		})
	}

	_, err := repo.ListDir(ctx, dir, "", vclib.ListOptions{})
	assert.True(t, vclib.IsNotFound(err))
	assert.True(t, vclib.IsNotFound(repo.DirLogs(ctx, dir, "", nil, vclib.ListOptions{})))

	// readable paths still report what CVS cannot tell
	created, err := repo.CreatedRev(ctx, []string{"proj", "sample.c"}, "1.2")
	require.NoError(t, err)
	assert.Equal(t, "1.2", created)
	_, err = repo.GetLocation(ctx, []string{"proj", "sample.c"}, "1.2", "1.1")
	assert.True(t, errors.Is(err, status.ErrUnsupportedFeature))
}

func TestRoots(t *testing.T) {
	fs := newTestFs(t)
	require.NoError(t, fs.MkdirAll("/parent/empty", 0755))
	require.NoError(t, afero.WriteFile(fs, "/parent/repo/CVSROOT/config", nil, 0644))

	roots, err := ExpandRootParent(fs, "/parent")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"repo": "/parent/repo"}, roots)

	pth, ok := FindRootInParent(fs, "/parent", "repo")
	assert.True(t, ok)
	assert.Equal(t, "/parent/repo", pth)

	_, ok = FindRootInParent(fs, "/parent", "empty")
	assert.False(t, ok)

	assert.True(t, IsRoot(fs, "/cvsroot"))
}

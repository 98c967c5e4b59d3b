package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"io/ioutil"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

type node struct {
	content string
	date    time.Time
	exec    bool
	link    string
	dead    bool
	unsized bool
	dir     bool
}

// memRepository serves a flat map of paths
type memRepository struct {
	vclib.Repository
	name     string
	rootType vclib.RootType
	nodes    map[string]node
}

func (m *memRepository) Name() string { return m.name }
func (m *memRepository) RootType() vclib.RootType { return m.rootType }

func (m *memRepository) ListDir(_ context.Context, parts []string, _ string, _ vclib.ListOptions) ([]*vclib.DirEntry, error) {
	prefix := vclib.JoinPath(parts)
	if prefix != "" {
		prefix += "/"
	}
	var entries []*vclib.DirEntry
	for pth, n := range m.nodes {
		if !strings.HasPrefix(pth, prefix) || strings.Contains(pth[len(prefix):], "/") {
			continue
		}
		kind := vclib.File
		if n.dir {
			kind = vclib.Dir
		}
		entries = append(entries, &vclib.DirEntry{Name: pth[len(prefix):], Kind: kind})
	}
	// reversed order, to check that entries are sorted
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name > entries[j].Name })
	return entries, nil
}

func (m *memRepository) DirLogs(_ context.Context, parts []string, _ string, entries []*vclib.DirEntry, _ vclib.ListOptions) error {
	for _, entry := range entries {
		n := m.nodes[vclib.JoinPath(append(append([]string{}, parts...), entry.Name))]
		if n.dir {
			continue
		}
		date := n.date
		entry.Date = &date
		entry.Rev = "1"
		entry.Dead = n.dead
	}
	return nil
}

func (m *memRepository) IsExecutable(_ context.Context, parts []string, _ string) (bool, error) {
	return m.nodes[vclib.JoinPath(parts)].exec, nil
}

func (m *memRepository) SymlinkTarget(_ context.Context, parts []string, _ string) (string, bool, error) {
	n := m.nodes[vclib.JoinPath(parts)]
	return n.link, n.link != "", nil
}

func (m *memRepository) FileSize(_ context.Context, parts []string, _ string) (int64, error) {
	n := m.nodes[vclib.JoinPath(parts)]
	if n.unsized || m.rootType == vclib.CVS {
		return -1, nil
	}
	return int64(len(n.content)), nil
}

func (m *memRepository) OpenFile(_ context.Context, parts []string, _ string, _ vclib.OpenOptions) (io.ReadCloser, string, error) {
	return ioutil.NopCloser(strings.NewReader(m.nodes[vclib.JoinPath(parts)].content)), "1", nil
}

func day(d int) time.Time {
	return time.Date(2020, 1, d, 12, 0, 0, 0, time.UTC)
}

type member struct {
	hdr     *tar.Header
	content string
}

func readArchive(t *testing.T, r io.Reader) []member {
	var members []member
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return members
		}
		require.NoError(t, err)
		b, err := ioutil.ReadAll(tr)
		require.NoError(t, err)
		members = append(members, member{hdr: hdr, content: string(b)})
	}
}

func names(members []member) []string {
	res := make([]string, 0, len(members))
	for _, m := range members {
		res = append(res, m.hdr.Name)
	}
	return res
}

func TestGenerate(t *testing.T) {
	repo := &memRepository{
		name:     "repos/proj",
		rootType: vclib.Git,
		nodes: map[string]node{
			"README":     {content: "readme\n", date: day(2)},
			"empty":      {dir: true},
			"src":        {dir: true},
			"src/a.txt":  {content: "hello\n", date: day(1), unsized: true},
			"src/run.sh": {content: "#!/bin/sh\n", date: day(3), exec: true},
			"src/link":   {content: "a.txt", date: day(4), link: "a.txt"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Generate(context.Background(), &buf, repo, nil, "", Options{}))
	assert.Equal(t, 0, buf.Len()%512)
	assert.Equal(t, make([]byte, 1024), buf.Bytes()[buf.Len()-1024:])

	members := readArchive(t, &buf)
	assert.Equal(t, []string{
		"proj/", "proj/README", "proj/empty/", "proj/src/", "proj/src/a.txt", "proj/src/link", "proj/src/run.sh",
	}, names(members))

	top := members[0].hdr
	assert.Equal(t, byte(tar.TypeDir), top.Typeflag)
	assert.Equal(t, day(2).Unix(), top.ModTime.Unix())
	assert.Equal(t, "viewvc", top.Uname)
	assert.Equal(t, "viewvc", top.Gname)

	assert.Equal(t, "readme\n", members[1].content)
	assert.Equal(t, int64(0644), members[1].hdr.Mode)
	assert.Equal(t, int64(0), members[2].hdr.ModTime.Unix())
	assert.Equal(t, day(4).Unix(), members[3].hdr.ModTime.Unix())

	assert.Equal(t, "hello\n", members[4].content)
	assert.Equal(t, int64(6), members[4].hdr.Size)

	assert.Equal(t, byte(tar.TypeSymlink), members[5].hdr.Typeflag)
	assert.Equal(t, "a.txt", members[5].hdr.Linkname)

	assert.Equal(t, int64(0755), members[6].hdr.Mode)
	assert.Equal(t, "#!/bin/sh\n", members[6].content)
}

func TestGenerateSubdir(t *testing.T) {
	repo := &memRepository{
		name:     "proj",
		rootType: vclib.SVN,
		nodes: map[string]node{
			"src":       {dir: true},
			"src/a.txt": {content: "hello\n", date: day(1)},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Generate(context.Background(), &buf, repo, []string{"src"}, "", Options{}))
	assert.Equal(t, []string{"src/", "src/a.txt"}, names(readArchive(t, &buf)))
}

func TestGenerateCVS(t *testing.T) {
	repo := &memRepository{
		name:     "m",
		rootType: vclib.CVS,
		nodes: map[string]node{
			"CVSROOT":        {dir: true},
			"CVSROOT/config": {content: "x", date: day(9)},
			"a":              {dir: true},
			"a/gone":         {content: "x", date: day(9), dead: true},
			"b":              {dir: true},
			"b/c":            {dir: true},
			"b/c/f":          {content: "file\n", date: day(5)},
		},
	}

	for _, toPin := range []struct {
		name     string
		opts     Options
		expected []string
	}{
		{
			name:     "hidden root",
			opts:     Options{HideCVSRoot: true},
			expected: []string{"m/", "m/b/", "m/b/c/", "m/b/c/f"},
		},
		{
			name:     "shown root",
			expected: []string{"m/", "m/CVSROOT/", "m/CVSROOT/config", "m/b/", "m/b/c/", "m/b/c/f"},
		},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Generate(context.Background(), &buf, repo, nil, "", fixture.opts))
			members := readArchive(t, &buf)
			require.Equal(t, fixture.expected, names(members))

			last := members[len(members)-1]
			assert.Equal(t, "file\n", last.content)
			assert.Equal(t, day(5).Unix(), members[len(members)-2].hdr.ModTime.Unix())
		})
	}
}

func TestGenerateGzipLongNames(t *testing.T) {
	long := strings.Repeat("d", 120)
	repo := &memRepository{
		name:     "proj",
		rootType: vclib.Git,
		nodes: map[string]node{
			long:          {dir: true},
			long + "/f":   {content: "x", date: day(1)},
			long + "/lnk": {date: day(1), link: strings.Repeat("t", 150)},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Generate(context.Background(), &buf, repo, nil, "", Options{Gzip: true}))

	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	members := readArchive(t, zr)
	assert.Equal(t, []string{"proj/", "proj/" + long + "/", "proj/" + long + "/f", "proj/" + long + "/lnk"}, names(members))
	assert.Equal(t, strings.Repeat("t", 150), members[3].hdr.Linkname)
}

package popen

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viewvc/viewvc-sub000/pkg/errors"
	"github.com/viewvc/viewvc-sub000/pkg/popen/status"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sh(script string) Cmd {
	return Cmd{Path: "/bin/sh", Args: []string{"-c", script}}
}

func TestParse(t *testing.T) {
	c, err := Parse(`/usr/local/bin/cvsnt rcsfile`)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/cvsnt", c.Path)
	assert.Equal(t, []string{"rcsfile"}, c.Args)

	c, err = Parse(`"/opt/my tools/diff" -a`)
	require.NoError(t, err)
	assert.Equal(t, "/opt/my tools/diff", c.Path)
	assert.Equal(t, []string{"-a"}, c.Args)

	w := c.With("x", "y")
	assert.Equal(t, []string{"-a", "x", "y"}, w.Args)
	assert.Equal(t, []string{"-a"}, c.Args)
	assert.Equal(t, "/opt/my tools/diff -a x y", w.String())

	_, err = Parse("   ")
	assert.True(t, errors.Is(err, status.ErrCommandLine))
}

func TestPipeSuccess(t *testing.T) {
	p, err := Start(context.Background(), sh("printf 'line1\\nline2\\n'"))
	require.NoError(t, err)
	out, err := ioutil.ReadAll(p)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\n", string(out))
	require.NoError(t, p.Close())
}

func TestPipeExitCodeAfterDrain(t *testing.T) {
	p, err := Start(context.Background(), sh("echo partial; echo 'svn: E160013: path not found' >&2; exit 3"))
	require.NoError(t, err)

	out, err := ioutil.ReadAll(p)
	require.Error(t, err)
	assert.Equal(t, "partial\n", string(out))

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Stderr, "E160013")
	assert.True(t, errors.Is(err, status.ErrCommandFailed))

	// already reported by Read
	assert.NoError(t, p.Close())
}

func TestPipeOkCodes(t *testing.T) {
	out, err := Output(context.Background(), sh("echo differ; exit 1"), OkCodes(1))
	require.NoError(t, err)
	assert.Equal(t, "differ\n", string(out))

	_, err = Output(context.Background(), sh("exit 2"), OkCodes(1))
	assert.True(t, errors.Is(err, status.ErrCommandFailed))
}

func TestPipeEarlyClose(t *testing.T) {
	p, err := Start(context.Background(), sh("while true; do echo y; done"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = p.Read(buf)
	require.NoError(t, err)
	assert.NoError(t, p.Close())

	_, err = p.Read(buf)
	assert.Error(t, err)
}

func TestPipeNotStarted(t *testing.T) {
	_, err := Start(context.Background(), Cmd{Path: "/nonexistent/tool"})
	assert.True(t, errors.Is(err, status.ErrNotStarted))
}

func TestRemoveOnClose(t *testing.T) {
	dir, err := ioutil.TempDir("", "popen")
	require.NoError(t, err)
	defer func() { _ = os.RemoveAll(dir) }()

	temp := filepath.Join(dir, "left")
	require.NoError(t, ioutil.WriteFile(temp, []byte("a\n"), 0600))

	p, err := Start(context.Background(), Cmd{Path: "/bin/cat", Args: []string{temp}}, RemoveOnClose(temp))
	require.NoError(t, err)
	out, err := ioutil.ReadAll(p)
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(out))
	require.NoError(t, p.Close())

	_, err = os.Stat(temp)
	assert.True(t, os.IsNotExist(err))
}

func TestTempFileAndRemovingReader(t *testing.T) {
	name, err := TempFile(ioutil.NopCloser(stringsReader("payload")), "viewvc-test")
	require.NoError(t, err)
	b, err := ioutil.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	rc := RemovingReader(ioutil.NopCloser(stringsReader("")), name)
	require.NoError(t, rc.Close())
	_, err = os.Stat(name)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveFiles(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a"), filepath.Join(dir, "b")
	require.NoError(t, ioutil.WriteFile(a, []byte("a"), 0600))
	require.NoError(t, ioutil.WriteFile(b, []byte("b"), 0600))

	require.NoError(t, RemoveFiles(a, b, filepath.Join(dir, "never-there")))
	for _, pth := range []string{a, b} {
		_, err := os.Stat(pth)
		assert.True(t, os.IsNotExist(err))
	}
	assert.NoError(t, RemoveFiles())

	// a non-empty directory cannot be removed
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "c"), []byte("c"), 0600))
	assert.Error(t, RemoveFiles(dir))
}

func TestPipeMergeStderr(t *testing.T) {
	out, err := Output(context.Background(), sh("echo header >&2; echo body; exit 1"), MergeStderr(), OkCodes(1))
	require.NoError(t, err)
	assert.Contains(t, string(out), "header\n")
	assert.Contains(t, string(out), "body\n")
}

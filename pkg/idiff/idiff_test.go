package idiff

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	left  = "a\nb\nc\n"
	right = "a\nB\nc\n"
)

func TestUnified(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Unified(&buf, []byte(left), []byte(right), "l1", "l2", Options{Context: DefaultContext}))
	assert.Equal(t, `--- l1
+++ l2
@@ -1,3 +1,3 @@
 a
-b
+B
 c
`, buf.String())
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Context(&buf, []byte(left), []byte(right), "l1", "l2", Options{Context: DefaultContext}))
	assert.Equal(t, `*** l1
--- l2
***************
*** 1,3 ****
  a
! b
  c
--- 1,3 ----
  a
! B
  c
`, buf.String())
}

func TestNoDifferences(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Unified(&buf, []byte(left), []byte(left), "l1", "l2", Options{Context: DefaultContext}))
	assert.Empty(t, buf.String())

	require.NoError(t, Unified(&buf, []byte("a b\n"), []byte("a   b\n"), "l1", "l2", Options{IgnoreWhite: true}))
	assert.Empty(t, buf.String())

	require.NoError(t, Unified(&buf, nil, nil, "l1", "l2", Options{}))
	assert.Empty(t, buf.String())
}

func TestFunctionNames(t *testing.T) {
	a := "func main\n x\n y\n z\n w\n v\n"
	b := "func main\n x\n y\n z\n w\n V\n"
	var buf bytes.Buffer
	require.NoError(t, Unified(&buf, []byte(a), []byte(b), "l1", "l2", Options{Context: 1, FunctionNames: true}))
	assert.Contains(t, buf.String(), "@@ -5,2 +5,2 @@ func main\n")
}

func TestWholeFileContext(t *testing.T) {
	a := "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n"
	b := strings.Replace(a, "5\n", "five\n", 1)
	var buf bytes.Buffer
	require.NoError(t, Unified(&buf, []byte(a), []byte(b), "l1", "l2", Options{Context: -1}))
	assert.Contains(t, buf.String(), "@@ -1,10 +1,10 @@\n")
}

func TestSideBySide(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SideBySide(&buf, []byte("same\nold\ngone\n"), []byte("same\nnew\n"), Options{Width: 23}))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, fmt.Sprintf("%-10s   %s", "same", "same"), lines[0])
	assert.Equal(t, fmt.Sprintf("%-10s | %s", "old", "new"), lines[1])
	assert.Equal(t, fmt.Sprintf("%-10s <", "gone"), strings.TrimRight(lines[2], " "))
}

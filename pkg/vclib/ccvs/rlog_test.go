package ccvs

import (
	"bufio"
	"io/ioutil"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viewvc/viewvc-sub000/pkg/errors"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"go.uber.org/zap"
)

const sampleLog = `
RCS file: /cvsroot/proj/sample.c,v
head: 1.3
branch:
locks: strict
	alice: 1.3
access list:
symbolic names:
	rel_1_0: 1.2
	branch_x: 1.2.0.2
keyword substitution: kv
total revisions: 4;	selected revisions: 4
description:
sample file
----------------------------
revision 1.3	locked by: alice;
date: 2020/03/01 10:00:00;  author: alice;  state: Exp;  lines: +1 -0
third
----------------------------
revision 1.2
date: 2020/02/01 10:00:00;  author: bob;  state: Exp;  lines: +1 -1
branches:  1.2.2;
second
----------------------------
revision 1.1
date: 1999/01/01 10:00:00;  author: alice;  state: Exp;  commitid: abc123;
first @ commit
----------------------------
revision 1.2.2.1
date: 2020-02-15 10:00:00+00;  author: carol;  state: Exp;  lines: +1 -0
on branch
=============================================================================
`

const otherLog = `
RCS file: /cvsroot/proj/other.c,v
head: 1.1
branch:
locks: strict
access list:
symbolic names:
keyword substitution: kv
total revisions: 1;	selected revisions: 1
description:
----------------------------
revision 1.1
date: 2020/01/01 10:00:00;  author: dave;  state: Exp;
other
=============================================================================
`

func TestReadLog(t *testing.T) {
	header, revs, err := readLog(strings.NewReader(sampleLog))
	require.NoError(t, err)

	assert.Equal(t, "/cvsroot/proj/sample.c,v", header.filename)
	assert.Equal(t, "1.3", header.head)
	assert.Equal(t, "", header.defaultBranch)
	assert.Equal(t, map[string]string{"rel_1_0": "1.2", "branch_x": "1.2.0.2"}, header.tags)
	assert.Equal(t, map[string]string{"1.3": "alice"}, header.lockInfo)
	assert.Equal(t, eofNone, header.eof)

	require.Len(t, revs, 4)
	assert.Equal(t, []string{"1.3", "1.2", "1.1", "1.2.2.1"}, revIDs(revs))
	assert.Equal(t, "third\n", revs[0].Log)
	assert.Equal(t, "+1 -1", revs[1].Changed)
	assert.Equal(t, "second\n", revs[1].Log)
	assert.Equal(t, "", revs[2].Changed)
	assert.Equal(t, time.Date(1999, 1, 1, 10, 0, 0, 0, time.UTC), *revs[2].Date)
	assert.Equal(t, time.Date(2020, 2, 15, 10, 0, 0, 0, time.UTC), *revs[3].Date)
	assert.Equal(t, "carol", revs[3].Author)

	filtered, tags, err := fileLog(revs, header.tags, header.lockInfo, header.defaultBranch, "branch_x")
	require.NoError(t, err)
	sortLog(filtered, vclib.SortByRev)
	assert.Equal(t, []string{"1.2.2.1", "1.2", "1.1"}, revIDs(filtered))
	assert.Equal(t, "alice", tags[HeadTag].CoRev.LockInfo)
}

func TestLogErrors(t *testing.T) {
	for _, toPin := range []struct {
		name     string
		output   string
		filename string
		msg      string
	}{
		{
			name:     "rlog",
			output:   "rlog: /cvsroot/proj/bad.c,v: No such file or directory\n",
			filename: "/cvsroot/proj/bad.c,v",
			msg:      "No such file or directory",
		},
		{
			name:     "rlog with line number",
			output:   "rlog: /cvsroot/proj/bad.c,v:8: unknown expand mode u\nrlog aborted\n",
			filename: "/cvsroot/proj/bad.c,v",
			msg:      "unknown expand mode u",
		},
		{
			name:     "cvsnt",
			output:   "cvs rcsfile: cannot open /cvsroot/proj/bad.c,v: No such file or directory\n",
			filename: "/cvsroot/proj/bad.c,v",
			msg:      "No such file or directory",
		},
		{
			name: "warning",
			output: "rlog: /cvsroot/proj/w.c,v: warning: Unknown phrases like `commitid ...;' are present.\n" +
				"rlog: /cvsroot/proj/w.c,v: broken\n",
			filename: "/cvsroot/proj/w.c,v",
			msg:      "broken",
		},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			header, err := parseLogHeader(bufio.NewReader(strings.NewReader(fixture.output)))
			require.NoError(t, err)
			assert.Equal(t, eofError, header.eof)
			assert.Equal(t, fixture.filename, header.filename)
			assert.Equal(t, fixture.msg, header.msg)
		})
	}

	header, err := parseLogHeader(bufio.NewReader(strings.NewReader("")))
	require.NoError(t, err)
	assert.Equal(t, eofLog, header.eof)
}

func TestParseLogDate(t *testing.T) {
	for _, toPin := range []struct {
		value    string
		expected time.Time
	}{
		{value: "2020/03/01 10:00:00", expected: time.Date(2020, 3, 1, 10, 0, 0, 0, time.UTC)},
		{value: "2020-03-01 10:00:00+00", expected: time.Date(2020, 3, 1, 10, 0, 0, 0, time.UTC)},
		{value: "2020-03-01 12:00:00+02", expected: time.Date(2020, 3, 1, 10, 0, 0, 0, time.UTC)},
		{value: "1904/05/06 07:08:09", expected: time.Date(2004, 5, 6, 7, 8, 9, 0, time.UTC)},
	} {
		fixture := toPin
		t.Run(fixture.value, func(t *testing.T) {
			date, err := parseLogDate(fixture.value)
			require.NoError(t, err)
			assert.True(t, fixture.expected.Equal(date), "got %v", date)
		})
	}

	_, err := parseLogDate("0004/01/01 00:00:00")
	assert.Error(t, err)
	_, err = parseLogDate("yesterday")
	assert.Error(t, err)
}

func TestParseCOHeader(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("/cvsroot/proj/sample.c,v  -->  standard output\nrevision 1.3\nline one\n"))
	filename, rev, err := parseCOHeader(r)
	require.NoError(t, err)
	assert.Equal(t, "/cvsroot/proj/sample.c", filename)
	assert.Equal(t, "1.3", rev)
	rest, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "line one\n", string(rest))

	r = bufio.NewReader(strings.NewReader("/cvsroot/proj/sample.c,v  -->  stdout\n" +
		"co: /cvsroot/proj/sample.c,v: warning: Unknown phrases like `commitid ...;' are present.\n" +
		"revision 1.1\n"))
	_, rev, err = parseCOHeader(r)
	require.NoError(t, err)
	assert.Equal(t, "1.1", rev)

	r = bufio.NewReader(strings.NewReader("/cvsroot/proj/sample.c,v  -->  standard output\n" +
		"co: /cvsroot/proj/sample.c,v: revision 1.9 absent\n"))
	_, _, err = parseCOHeader(r)
	assert.True(t, errors.Is(err, errCOMissingRevision))

	r = bufio.NewReader(strings.NewReader("/cvsroot/proj/sample.c,v  -->  standard output\n" +
		"co: /cvsroot/proj/sample.c,v: no side branches present for 1.2.4\n"))
	_, _, err = parseCOHeader(r)
	assert.True(t, errors.Is(err, errCOMissingRevision))

	r = bufio.NewReader(strings.NewReader("garbage\n"))
	_, _, err = parseCOHeader(r)
	assert.True(t, errors.Is(err, errCOMalformed))

	filename, rev, err = parseCOHeader(bufio.NewReader(strings.NewReader("")))
	require.NoError(t, err)
	assert.Empty(t, filename)
	assert.Empty(t, rev)
}

func TestMatchEntry(t *testing.T) {
	repo := &BinRepository{base: &base{l: zap.NewNop()}}

	for _, toPin := range []struct {
		name    string
		viewTag string
		sample  string
		other   string
		absent  bool
	}{
		{name: "branch", viewTag: "branch_x", sample: "1.2.2.1", absent: true},
		{name: "tag", viewTag: "rel_1_0", sample: "1.2", absent: true},
		{name: "main", viewTag: "MAIN", sample: "1.3", other: "1.1"},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			reader := bufio.NewReader(strings.NewReader(sampleLog + otherLog))
			sample := &vclib.DirEntry{Name: "sample.c", Kind: vclib.File}
			other := &vclib.DirEntry{Name: "other.c", Kind: vclib.File}

			for _, entry := range []*vclib.DirEntry{sample, other} {
				header, err := parseLogHeader(reader)
				require.NoError(t, err)
				assert.True(t, pathsEqual(header.filename, "/cvsroot/proj/"+entry.Name+",v"))
				repo.matchEntry(reader, entry, header, fixture.viewTag)
			}

			assert.Equal(t, fixture.sample, sample.Rev)
			assert.False(t, sample.Absent)
			assert.Equal(t, fixture.other, other.Rev)
			assert.Equal(t, fixture.absent, other.Absent)
		})
	}
}

func TestSkipFile(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader(sampleLog + otherLog))
	_, err := parseLogHeader(reader)
	require.NoError(t, err)
	skipFile(reader)

	header, revs, err := readLog(reader)
	require.NoError(t, err)
	assert.Equal(t, "/cvsroot/proj/other.c,v", header.filename)
	assert.Equal(t, []string{"1.1"}, revIDs(revs))
	assert.Equal(t, "other\n", revs[0].Log)
}

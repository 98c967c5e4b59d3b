package rcsparse

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viewvc/viewvc-sub000/pkg/errors"
)

type recordingSink struct {
	NopSink
	events   []string
	head     string
	tags     map[string]string
	lockers  map[string]string
	dates    map[string]time.Time
	authors  map[string]string
	nexts    map[string]string
	branches map[string][]string
	logs     map[string]string
	texts    map[string]string
	desc     string
	stopAt   string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		tags:     make(map[string]string),
		lockers:  make(map[string]string),
		dates:    make(map[string]time.Time),
		authors:  make(map[string]string),
		nexts:    make(map[string]string),
		branches: make(map[string][]string),
		logs:     make(map[string]string),
		texts:    make(map[string]string),
	}
}

func (s *recordingSink) SetHeadRevision(rev string) error {
	s.head = rev
	return nil
}

func (s *recordingSink) DefineTag(name, rev string) error {
	s.tags[name] = rev
	return nil
}

func (s *recordingSink) SetLocker(rev, locker string) error {
	s.lockers[rev] = locker
	return nil
}

func (s *recordingSink) AdminCompleted() error {
	s.events = append(s.events, "admin")
	return nil
}

func (s *recordingSink) DefineRevision(rev string, timestamp time.Time, author, state string, branches []string, next string) error {
	s.events = append(s.events, "rev "+rev)
	s.dates[rev] = timestamp
	s.authors[rev] = author
	s.nexts[rev] = next
	s.branches[rev] = branches
	return nil
}

func (s *recordingSink) TreeCompleted() error {
	s.events = append(s.events, "tree")
	return nil
}

func (s *recordingSink) SetDescription(desc string) error {
	s.desc = desc
	return nil
}

func (s *recordingSink) SetRevisionInfo(rev, log string, text []byte) error {
	s.events = append(s.events, "text "+rev)
	s.logs[rev] = log
	s.texts[rev] = string(text)
	if rev == s.stopAt {
		return ErrStop
	}
	return nil
}

func (s *recordingSink) ParseCompleted() error {
	s.events = append(s.events, "done")
	return nil
}

func readSample(t *testing.T) []byte {
	data, err := ioutil.ReadFile(filepath.Join("testdata", "sample,v"))
	require.NoError(t, err)
	return data
}

func TestParse(t *testing.T) {
	sink := newRecordingSink()
	require.NoError(t, Parse(bytes.NewReader(readSample(t)), sink))

	assert.Equal(t, []string{
		"admin",
		"rev 1.3", "rev 1.2", "rev 1.1", "rev 1.2.2.1",
		"tree",
		"text 1.3", "text 1.2", "text 1.1", "text 1.2.2.1",
		"done",
	}, sink.events)

	assert.Equal(t, "1.3", sink.head)
	assert.Equal(t, map[string]string{"rel_1_0": "1.2", "branch_x": "1.2.0.2"}, sink.tags)
	assert.Equal(t, map[string]string{"1.3": "alice"}, sink.lockers)
	assert.Equal(t, "sample file\n", sink.desc)

	assert.Equal(t, time.Date(2020, 3, 1, 10, 0, 0, 0, time.UTC), sink.dates["1.3"])
	assert.Equal(t, time.Date(1999, 1, 1, 10, 0, 0, 0, time.UTC), sink.dates["1.1"])
	assert.Equal(t, "bob", sink.authors["1.2"])
	assert.Equal(t, "1.1", sink.nexts["1.2"])
	assert.Equal(t, "", sink.nexts["1.1"])
	assert.Equal(t, []string{"1.2.2.1"}, sink.branches["1.2"])

	assert.Equal(t, "first @ commit\n", sink.logs["1.1"])
	assert.Equal(t, "line one\nline two changed\nline three\nline four\n", sink.texts["1.3"])
	assert.Equal(t, "d2 1\na2 1\nline two\n", sink.texts["1.1"])
}

func TestParseStop(t *testing.T) {
	sink := newRecordingSink()
	sink.stopAt = "1.2"
	require.NoError(t, Parse(bytes.NewReader(readSample(t)), sink))

	assert.Equal(t, "text 1.2", sink.events[len(sink.events)-1])
}

func TestParseErrors(t *testing.T) {
	for _, toPin := range []struct {
		name  string
		input string
		err   error
	}{
		{name: "empty", input: "", err: ErrUnexpectedEOF},
		{name: "truncated admin", input: "head 1.1;\naccess", err: ErrUnexpectedEOF},
		{name: "missing date", input: "head 1.1;\n1.1\nauthor x;\n", err: ErrSyntax},
		{name: "bad year", input: "head 1.1;\n1.1\ndate 1969.01.01.00.00.00; author x; state Exp;\nbranches; next ;\ndesc @@\n", err: ErrSyntax},
		{name: "unterminated string", input: "head 1.1;\ncomment @oops", err: ErrUnexpectedEOF},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			err := Parse(strings.NewReader(fixture.input), newRecordingSink())
			require.Error(t, err)
			assert.True(t, errors.Is(err, fixture.err), "got %v", err)
		})
	}
}

func TestTokenizer(t *testing.T) {
	ts := newTokenStream(strings.NewReader("head\t1.1;\n@a@@b@ x:y"))
	var tokens []string
	for {
		token, err := ts.get()
		if err != nil {
			break
		}
		tokens = append(tokens, string(token))
	}
	// the last word is not terminated
	assert.Equal(t, []string{"head", "1.1", ";", "a@b", "x", ":"}, tokens)
}

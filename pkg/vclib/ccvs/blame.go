package ccvs

import (
	"regexp"
	"time"

	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/ccvs/rcsparse"
)

var (
	reTrunkRev    = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)
	reLastBranch  = regexp.MustCompile(`^(.*)\.[0-9]+$`)
	reMagicBranch = regexp.MustCompile(`^(.*)\.0\.([0-9]+)$`)
)

// blameSink digests the topology of the revision tree and all delta texts
type blameSink struct {
	rcsparse.NopSink

	head         string
	tagRevision  map[string]string
	lastRevision map[string]string // branch number => latest revision on the branch
	// prevRevision is the ancestor of a revision: towards 1.1, on the trunk and on branches
	prevRevision map[string]string
	// prevDelta is the revision which delta text is the basis of a revision's delta text
	prevDelta map[string]string
	timestamp map[string]time.Time
	author    map[string]string
	deltaText map[string]string
}

func newBlameSink() *blameSink {
	return &blameSink{
		tagRevision:  make(map[string]string),
		lastRevision: make(map[string]string),
		prevRevision: make(map[string]string),
		prevDelta:    make(map[string]string),
		timestamp:    make(map[string]time.Time),
		author:       make(map[string]string),
		deltaText:    make(map[string]string),
	}
}

func (s *blameSink) SetHeadRevision(rev string) error {
	s.head = rev
	return nil
}

func (s *blameSink) DefineTag(name, rev string) error {
	s.tagRevision[name] = rev
	return nil
}

func (s *blameSink) DefineRevision(rev string, timestamp time.Time, author, _ string, branches []string, next string) error {
	s.tagRevision[rev] = rev
	if m := reLastBranch.FindStringSubmatch(rev); m != nil {
		s.lastRevision[m[1]] = rev
	}
	s.timestamp[rev] = timestamp
	s.author[rev] = author

	for _, branch := range branches {
		s.prevRevision[branch] = rev
		s.prevDelta[branch] = rev
	}
	if next != "" {
		s.prevDelta[next] = rev
		if reTrunkRev.MatchString(rev) {
			s.prevRevision[rev] = next
		} else {
			s.prevRevision[next] = rev
		}
	}
	return nil
}

func (s *blameSink) SetRevisionInfo(rev, _ string, text []byte) error {
	s.deltaText[rev] = string(text)
	return nil
}

// resolve maps a tag, a branch or a revision number to a revision
func (s *blameSink) resolve(tagOrRev string) string {
	if tagOrRev == "" || tagOrRev == HeadTag || tagOrRev == MainTag {
		return s.head
	}
	rev, ok := s.tagRevision[tagOrRev]
	if !ok {
		rev = tagOrRev
	}
	if m := reMagicBranch.FindStringSubmatch(rev); m != nil {
		if last, ok := s.lastRevision[m[1]+"."+m[2]]; ok {
			return last
		}
		return m[1]
	}
	if number, err := parseNumber(rev); err == nil && len(number)%2 == 1 {
		// plain branch number
		return s.lastRevision[rev]
	}
	if _, ok := s.timestamp[rev]; !ok {
		return ""
	}
	return rev
}

func (s *blameSink) deltaLines(rev string) []string {
	return splitLines(s.deltaText[rev])
}

// extract rebuilds the text of a revision
func (s *blameSink) extract(revision string) ([]string, error) {
	var path []string
	for rev := revision; rev != ""; rev = s.prevDelta[rev] {
		path = append(path, rev)
	}
	text := &streamText{lines: s.deltaLines(s.head)}
	// from the revision after the head, down to the requested one
	for i := len(path) - 2; i >= 0; i-- {
		if err := text.apply([]byte(s.deltaText[path[i]])); err != nil {
			return nil, err
		}
	}
	return text.lines, nil
}

func repeat(rev string, count int) []string {
	revs := make([]string, count)
	for i := range revs {
		revs[i] = rev
	}
	return revs
}

func insertAt(revMap []string, pos int, revs []string) []string {
	if pos < 0 {
		pos = 0
	}
	if pos > len(revMap) {
		pos = len(revMap)
	}
	result := make([]string, 0, len(revMap)+len(revs))
	result = append(result, revMap[:pos]...)
	result = append(result, revs...)
	return append(result, revMap[pos:]...)
}

func deleteRange(revMap []string, begin, end int) []string {
	if begin < 0 {
		begin = 0
	}
	if end > len(revMap) {
		end = len(revMap)
	}
	if begin >= end {
		return revMap
	}
	return append(revMap[:begin], revMap[end:]...)
}

// revisionMap computes, for each line of a revision, the revision which introduced it.
//
// Starting from the primordial revision, deltas are replayed onto a list of
// revisions rather than onto lines of text. Trunk deltas transform a revision
// into an earlier one, so their commands are inverted.
func (s *blameSink) revisionMap(revision string) ([]string, error) {
	primordial := revision
	for s.prevRevision[primordial] != "" {
		primordial = s.prevRevision[primordial]
	}

	// line count of the primordial revision, going back from the head
	lineCount := len(s.deltaLines(s.head))
	for rev := s.prevRevision[s.head]; rev != ""; rev = s.prevRevision[rev] {
		skip := 0
		for _, command := range s.deltaLines(rev) {
			if skip > 0 {
				skip--
				continue
			}
			cmd, ok := parseEditCommand(command)
			if !ok {
				return nil, vclib.Errorf("illegal RCS file: bad edit command %q", command)
			}
			if cmd.add {
				skip = cmd.count
				lineCount += cmd.count
			} else {
				lineCount -= cmd.count
			}
		}
	}
	if lineCount < 0 {
		return nil, vclib.Errorf("illegal RCS file: negative line count")
	}

	revMap := repeat(primordial, lineCount)

	ancestors := []string{revision}
	for rev := s.prevRevision[revision]; rev != ""; rev = s.prevRevision[rev] {
		ancestors = append(ancestors, rev)
	}
	// drop the primordial revision, then walk forward in time
	ancestors = ancestors[:len(ancestors)-1]

	last := primordial
	for i := len(ancestors) - 1; i >= 0; i-- {
		rev := ancestors[i]
		skip, adjust := 0, 0

		if reTrunkRev.MatchString(rev) {
			for _, command := range s.deltaLines(last) {
				if skip > 0 {
					skip--
					continue
				}
				cmd, ok := parseEditCommand(command)
				if !ok {
					return nil, vclib.Errorf("error parsing diff commands: %q", command)
				}
				if cmd.add {
					revMap = deleteRange(revMap, cmd.start, cmd.start+cmd.count)
					skip = cmd.count
				} else {
					revMap = insertAt(revMap, cmd.start-1, repeat(rev, cmd.count))
				}
			}
		} else {
			for _, command := range s.deltaLines(rev) {
				if skip > 0 {
					skip--
					continue
				}
				cmd, ok := parseEditCommand(command)
				if !ok {
					return nil, vclib.Errorf("error parsing diff commands: %q", command)
				}
				if cmd.add {
					revMap = insertAt(revMap, cmd.start+adjust, repeat(rev, cmd.count))
					skip = cmd.count
					adjust += cmd.count
				} else {
					begin := cmd.start + adjust - 1
					revMap = deleteRange(revMap, begin, begin+cmd.count)
					adjust -= cmd.count
				}
			}
		}
		last = rev
	}
	return revMap, nil
}

// blame annotates each line of a revision with the revision which introduced it
func blame(sink *blameSink, rev string, includeText bool, apply func(*vclib.Annotation) error) (string, error) {
	revision := sink.resolve(rev)
	if revision == "" {
		return "", vclib.InvalidRevision(rev)
	}

	revMap, err := sink.revisionMap(revision)
	if err != nil {
		return "", err
	}
	lines, err := sink.extract(revision)
	if err != nil {
		return "", err
	}
	if len(lines) != len(revMap) {
		return "", vclib.Errorf("internal consistency error annotating %s: %d lines, %d annotations", revision, len(lines), len(revMap))
	}

	for idx, lineRev := range revMap {
		annotation := &vclib.Annotation{
			LineNumber: idx + 1,
			Rev:        lineRev,
			PrevRev:    sink.prevRevision[lineRev],
			Author:     sink.author[lineRev],
		}
		if ts, ok := sink.timestamp[lineRev]; ok {
			date := ts
			annotation.Date = &date
		}
		if includeText {
			text := lines[idx]
			annotation.Text = &text
		}
		if err := apply(annotation); err != nil {
			return revision, err
		}
	}
	return revision, nil
}

package ccvs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/ccvs/rcsparse"
)

var (
	reDeleteCmd = regexp.MustCompile(`^d(\d+)\s(\d+)`)
	reAddCmd    = regexp.MustCompile(`^a(\d+)\s(\d+)`)
)

// editCommand is one command of an RCS edit script
type editCommand struct {
	add   bool
	start int
	count int
}

func parseEditCommand(line string) (editCommand, bool) {
	if m := reDeleteCmd.FindStringSubmatch(line); m != nil {
		start, _ := strconv.Atoi(m[1])
		count, _ := strconv.Atoi(m[2])
		return editCommand{start: start, count: count}, true
	}
	if m := reAddCmd.FindStringSubmatch(line); m != nil {
		start, _ := strconv.Atoi(m[1])
		count, _ := strconv.Atoi(m[2])
		return editCommand{add: true, start: start, count: count}, true
	}
	return editCommand{}, false
}

// splitLines splits a text, dropping the empty string after a final newline
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// revisionDef is what an RCS file tells about a revision
type revisionDef struct {
	id      string
	date    time.Time
	author  string
	dead    bool
	log     string
	changed string
	// nextChanged is the line count of the change to the next trunk revision
	nextChanged string
}

// treeData is the parsed content of an RCS file, without the texts.
// It is immutable once parsed, so it may be cached.
type treeData struct {
	head          string
	defaultBranch string
	tags          map[string]string
	lockInfo      map[string]string
	revs          []*revisionDef
	byID          map[string]*revisionDef
}

// revisions builds fresh revisions, ready to be linked
func (t *treeData) revisions() ([]*vclib.Revision, error) {
	revs := make([]*vclib.Revision, 0, len(t.revs))
	for _, def := range t.revs {
		rev, err := newRevision(def.id, def.date, def.author, def.dead)
		if err != nil {
			return nil, err
		}
		rev.Log = def.log
		rev.Changed = def.changed
		revs = append(revs, rev)
	}
	return revs, nil
}

// treeSink collects the revision tree and logs of an RCS file, with line counts of changes
type treeSink struct {
	rcsparse.NopSink
	data *treeData
}

func newTreeSink() *treeSink {
	return &treeSink{data: &treeData{
		tags:     make(map[string]string),
		lockInfo: make(map[string]string),
		byID:     make(map[string]*revisionDef),
	}}
}

func (s *treeSink) SetHeadRevision(rev string) error {
	s.data.head = rev
	return nil
}

func (s *treeSink) SetPrincipalBranch(branch string) error {
	s.data.defaultBranch = branch
	return nil
}

func (s *treeSink) SetLocker(rev, locker string) error {
	s.data.lockInfo[rev] = locker
	return nil
}

func (s *treeSink) DefineTag(name, rev string) error {
	s.data.tags[name] = rev
	return nil
}

func (s *treeSink) DefineRevision(rev string, timestamp time.Time, author, state string, _ []string, _ string) error {
	if _, err := revisionNumber(rev); err != nil {
		return err
	}
	def := &revisionDef{id: rev, date: timestamp, author: author, dead: state == "dead"}
	s.data.revs = append(s.data.revs, def)
	s.data.byID[rev] = def
	return nil
}

func (s *treeSink) SetRevisionInfo(rev, log string, text []byte) error {
	def, ok := s.data.byID[rev]
	if !ok {
		return vclib.Errorf("delta text for undefined revision %s", rev)
	}
	def.log = log
	if rev == s.data.head {
		return nil
	}

	var added, deleted int
	lines := strings.Split(string(text), "\n")
	for idx := 0; idx < len(lines); {
		command := lines[idx]
		idx++
		cmd, ok := parseEditCommand(command)
		switch {
		case ok && cmd.add:
			added += cmd.count
			idx += cmd.count
		case ok:
			deleted += cmd.count
		case command != "":
			return vclib.Errorf("error while parsing deltatext: %s", command)
		}
	}

	// trunk deltas go backwards in time, branch deltas forward
	if len(strings.Split(rev, ".")) == 2 {
		def.nextChanged = fmt.Sprintf("+%d -%d", deleted, added)
	} else {
		def.changed = fmt.Sprintf("+%d -%d", added, deleted)
	}
	return nil
}

// matchingSink resolves the tag, branch or revision looked for
type matchingSink struct {
	rcsparse.NopSink
	find    string
	findTag *vclib.Tag
}

func newMatchingSink(find string) matchingSink {
	if find == MainTag || find == HeadTag {
		find = ""
	}
	return matchingSink{find: find}
}

func (s *matchingSink) SetPrincipalBranch(branch string) error {
	if s.find == "" {
		if tag, err := newTag("", branch); err == nil {
			s.findTag = tag
		}
	}
	return nil
}

func (s *matchingSink) DefineTag(name, rev string) error {
	if s.find != "" && name == s.find {
		if tag, err := newTag("", rev); err == nil {
			s.findTag = tag
		}
	}
	return nil
}

func (s *matchingSink) AdminCompleted() error {
	if s.findTag != nil {
		return nil
	}
	if s.find == "" {
		s.findTag = &vclib.Tag{Number: []int{}, IsBranch: true}
		return nil
	}
	if tag, err := newTag("", s.find); err == nil {
		s.findTag = tag
	}
	return nil
}

// streamText applies edit scripts to a text, held as lines
type streamText struct {
	lines []string
}

func newStreamText(text []byte) *streamText {
	return &streamText{lines: strings.Split(string(text), "\n")}
}

func (s *streamText) apply(script []byte) error {
	commands := strings.Split(string(script), "\n")
	if len(commands) > 0 && commands[len(commands)-1] == "" {
		commands = commands[:len(commands)-1]
	}
	if len(commands) == 0 {
		return nil
	}
	if commands[0] == "" {
		commands = commands[1:]
	}

	var adjust, addRemaining, start int
	for _, command := range commands {
		if addRemaining > 0 {
			// lines inserted by the previous "a" command
			pos := start + adjust
			s.lines = append(s.lines, "")
			copy(s.lines[pos+1:], s.lines[pos:])
			s.lines[pos] = command
			addRemaining--
			adjust++
			continue
		}
		cmd, ok := parseEditCommand(command)
		if !ok {
			return vclib.Errorf("error parsing diff commands: %q", command)
		}
		start = cmd.start
		if cmd.add {
			addRemaining = cmd.count
			continue
		}
		begin := start + adjust - 1
		end := begin + cmd.count
		if begin < 0 || end > len(s.lines) {
			return vclib.Errorf("delete command out of range: %q", command)
		}
		s.lines = append(s.lines[:begin], s.lines[end:]...)
		adjust -= cmd.count
	}
	return nil
}

func (s *streamText) String() string {
	return strings.Join(s.lines, "\n")
}

// coSink checks a revision out, applying delta texts along the path from the head revision
type coSink struct {
	matchingSink
	head *vclib.Revision
	last *vclib.Revision
	text *streamText
	log  string
}

func newCOSink(rev string) *coSink {
	return &coSink{matchingSink: newMatchingSink(rev)}
}

func (s *coSink) SetHeadRevision(rev string) error {
	head, err := newRevision(rev, time.Time{}, "", false)
	if err != nil {
		return err
	}
	s.head = head
	return nil
}

func (s *coSink) AdminCompleted() error {
	if err := s.matchingSink.AdminCompleted(); err != nil {
		return err
	}
	if s.findTag == nil {
		return vclib.InvalidRevision(s.find)
	}
	if s.head == nil {
		return vclib.Errorf("rcs file has no head revision")
	}
	return nil
}

func (s *coSink) SetRevisionInfo(revision, log string, text []byte) error {
	tag := s.findTag
	rev, err := newRevision(revision, time.Time{}, "", false)
	if err != nil {
		return err
	}
	if equalNumbers(rev.Number, tag.Number) {
		s.log = log
	}

	depth := len(rev.Number)
	switch {
	case equalNumbers(rev.Number, s.head.Number):
		s.text = newStreamText(text)
	case s.text == nil:
		return vclib.Errorf("delta text of %s found before the head revision", revision)
	case depth == 2 && len(tag.Number) > 0 && cmpNumbers(rev.Number, prefix(tag.Number, depth)) >= 0:
		// trunk revisions leading to the tag
		if err := s.text.apply(text); err != nil {
			return err
		}
	case depth > 2 && equalNumbers(rev.Number[:depth-1], prefix(tag.Number, depth-1)) &&
		(cmpNumbers(rev.Number, tag.Number) <= 0 || len(tag.Number) == depth-1):
		// branch revisions leading to the tag
		if err := s.text.apply(text); err != nil {
			return err
		}
	default:
		return nil
	}
	s.last = rev
	return nil
}

// prefix returns at most n leading components of a number
func prefix(number []int, n int) []int {
	if n > len(number) {
		return number
	}
	return number[:n]
}

// infoSink finds the revision of a file matching a tag, for directory listings
type infoSink struct {
	matchingSink
	entry       *vclib.DirEntry
	allTags     map[string]string
	lockInfo    map[string]string
	matching    *vclib.Revision
	perfect     bool
	sawRevision bool
}

func newInfoSink(entry *vclib.DirEntry, tag string, allTags map[string]string) *infoSink {
	return &infoSink{
		matchingSink: newMatchingSink(tag),
		entry:        entry,
		allTags:      allTags,
		lockInfo:     make(map[string]string),
	}
}

func (s *infoSink) DefineTag(name, rev string) error {
	s.allTags[name] = rev
	return s.matchingSink.DefineTag(name, rev)
}

func (s *infoSink) AdminCompleted() error {
	if err := s.matchingSink.AdminCompleted(); err != nil {
		return err
	}
	if s.findTag == nil {
		// the tag does not exist for this file
		if s.entry.Kind == vclib.File {
			s.entry.Absent = true
		}
		return rcsparse.ErrStop
	}
	return nil
}

func (s *infoSink) ParseCompleted() error {
	if !s.sawRevision {
		s.entry.Absent = true
	}
	return nil
}

func (s *infoSink) SetLocker(rev, locker string) error {
	s.lockInfo[rev] = locker
	return nil
}

func (s *infoSink) DefineRevision(revision string, timestamp time.Time, author, state string, _ []string, _ string) error {
	s.sawRevision = true
	if s.perfect {
		return nil
	}

	tag := s.findTag
	rev, err := newRevision(revision, timestamp, author, state == "dead")
	if err != nil {
		return err
	}
	rev.LockInfo = s.lockInfo[revision]

	// a perfect match is the tagged revision itself, or any trunk revision when
	// the trunk is looked for. On a branch, the highest revision of the branch,
	// or else the branch point, are imperfect matches.
	n := len(rev.Number)
	perfect := equalNumbers(rev.Number, tag.Number) || (len(tag.Number) == 0 && n == 2)
	onBranch := tag.IsBranch && equalNumbers(tag.Number, rev.Number[:n-1]) &&
		(s.matching == nil || cmpNumbers(rev.Number, s.matching.Number) > 0)
	branchPoint := tag.IsBranch && len(tag.Number) > 0 && equalNumbers(rev.Number, tag.Number[:len(tag.Number)-1])
	if perfect || onBranch || branchPoint {
		s.matching = rev
		s.perfect = perfect
	}
	return nil
}

func (s *infoSink) SetRevisionInfo(revision, log string, _ []byte) error {
	if s.matching == nil {
		return rcsparse.ErrStop
	}
	if revision != s.matching.ID {
		return nil
	}
	s.entry.Rev = s.matching.ID
	s.entry.Date = s.matching.Date
	s.entry.Author = s.matching.Author
	s.entry.Dead = s.matching.Dead
	s.entry.LockInfo = s.matching.LockInfo
	s.entry.Absent = false
	s.entry.Log = log
	return rcsparse.ErrStop
}

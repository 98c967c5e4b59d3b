package ccvs

import (
	"bufio"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/viewvc/viewvc-sub000/pkg/errors"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

// rlog output separators
const (
	logEndMarker   = "============================================================================="
	entryEndMarker = "----------------------------"
)

// logEOF tells where parsing rlog output stopped
type logEOF int

const (
	eofNone logEOF = iota
	// eofFile: no more entries for this RCS file
	eofFile
	// eofLog: the true end of the output
	eofLog
	// eofError: rlog issued an error
	eofError
)

var (
	// rlog errors look like "rlog: file,v: message" or "rlog: file,v:123: message".
	// Some windows builds omit the "rlog: " prefix.
	reLogError = regexp.MustCompile(`^(?:rlog\: )*(.*,v)(?:\:\d+)?\: (.*)$`)

	// CVSNT variants
	reCVSNTError = regexp.MustCompile("^(?:cvs rcsfile\\: |cvs \\[rcsfile aborted\\]: )" +
		"(?:\\`(.*,v)' |cannot open (.*,v)\\: |(.*,v)\\: |)" +
		"(.*)$")

	reLogInfo = regexp.MustCompile(`^date:\s+([^;]+);` +
		`\s+author:\s+([^;]+);` +
		`\s+state:\s+([^;]+);` +
		`(\s+lines:\s+([0-9\s+-]+);?)?` +
		`(\s+commitid:\s+([a-zA-Z0-9]+);?)?\s*$`)

	reRev = regexp.MustCompile(`^revision\s+([0-9.]+)`)

	reCOFilename   = regexp.MustCompile(`^(.*),v\s+-->\s+(?:(?:standard output)|(?:stdout))\s*$`)
	reCOWarning    = regexp.MustCompile(`^.*co: .*,v: warning: Unknown phrases like .*$`)
	reCOMissingRev = regexp.MustCompile(`^.*co: .*,v: revision.*absent$`)
	reCOSideBranch = regexp.MustCompile(`^.*co: .*,v: no side branches present for [\d\.]+$`)
	reCORevision   = regexp.MustCompile(`^revision\s+([\d\.]+)\s*$`)
)

var (
	errCOMalformed       = errors.New("malformed co output")
	errCOMissingRevision = errors.New("missing revision in co output")
)

// readLine returns the next line without its end of line. ok is false at the end of the input.
func readLine(r *bufio.Reader) (string, bool) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

// logHeader is the per file header of rlog output
type logHeader struct {
	filename      string
	head          string
	defaultBranch string
	tags          map[string]string
	lockInfo      map[string]string
	msg           string
	eof           logEOF
}

// parseLogHeader reads rlog output up to the first revision entry of a file.
// It consumes the separator after the header, or the end of file marker when there
// is no revision entry.
func parseLogHeader(r *bufio.Reader) (*logHeader, error) {
	h := &logHeader{
		tags:     make(map[string]string),
		lockInfo: make(map[string]string),
	}
	const (
		stateBase = iota
		stateSymbols
		stateLocks
	)
	state := stateBase

	for {
		line, ok := readLine(r)
		if !ok {
			h.eof = eofLog
			return h, nil
		}

		if state == stateSymbols {
			if strings.HasPrefix(line, "\t") {
				if kv := strings.SplitN(line, ":", 2); len(kv) == 2 {
					h.tags[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
				}
				continue
			}
			state = stateBase
		}
		if state == stateLocks {
			if strings.HasPrefix(line, "\t") {
				if kv := strings.SplitN(line, ":", 2); len(kv) == 2 {
					h.lockInfo[strings.TrimSpace(kv[1])] = strings.TrimSpace(kv[0])
				}
				continue
			}
			state = stateBase
		}

		switch {
		case strings.HasPrefix(line, "RCS file:"):
			h.filename = strings.TrimSpace(line[len("RCS file:"):])
		case strings.HasPrefix(line, "head:"):
			h.head = strings.TrimSpace(line[len("head:"):])
		case strings.HasPrefix(line, "branch:"):
			h.defaultBranch = strings.TrimSpace(line[len("branch:"):])
		case strings.HasPrefix(line, "locks:"):
			state = stateLocks
		case strings.HasPrefix(line, "symbolic names"):
			state = stateSymbols
		case line == entryEndMarker:
			return h, nil
		case line == logEndMarker:
			h.eof = eofFile
			return h, nil
		default:
			if m := reCVSNTError.FindStringSubmatch(line); m != nil {
				h.filename = firstNonEmpty(m[1], m[2], m[3])
				if h.filename == "" {
					return nil, vclib.Errorf("could not get filename from CVSNT error: %s", line)
				}
				h.msg = m[4]
				h.eof = eofError
				return h, nil
			}
			if m := reLogError.FindStringSubmatch(line); m != nil {
				// unknown fields such as "permissions 644;" are harmless
				if strings.HasPrefix(m[2], "warning: Unknown phrases like ") {
					continue
				}
				h.filename, h.msg = m[1], m[2]
				h.eof = eofError
				return h, nil
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseLogDate reads rlog dates, either "2006/01/02 15:04:05" or the ISO-like
// "2006-01-02 15:04:05+00" of recent RCS versions, in UTC
func parseLogDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var (
		t   time.Time
		err error
	)
	for _, layout := range []string{"2006/01/02 15:04:05", "2006-01-02 15:04:05-07", "2006-01-02 15:04:05"} {
		if t, err = time.Parse(layout, value); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, err
	}
	t = t.UTC()
	// two digit years are reported as 19xx
	if t.Year() < 1970 {
		if t.Year()-1900 < 70 {
			t = t.AddDate(100, 0, 0)
		}
		if t.Year() < 1970 {
			return time.Time{}, vclib.Errorf("invalid year in date %q", value)
		}
	}
	return t, nil
}

// parseLogEntry reads one revision entry of rlog output. It consumes the
// separator after the entry, or the end of file marker.
//
// The revision is nil when the entry could not be parsed.
func parseLogEntry(r *bufio.Reader) (*vclib.Revision, logEOF, error) {
	line, ok := readLine(r)
	if !ok {
		return nil, eofLog, nil
	}
	// some versions of RCS precede the end of file marker with an entry separator
	if line == logEndMarker {
		return nil, eofFile, nil
	}

	var (
		rev  string
		info []string
	)
	if strings.HasPrefix(line, "revision") {
		m := reRev.FindStringSubmatch(line)
		if m == nil {
			return nil, eofLog, nil
		}
		rev = m[1]

		line, ok = readLine(r)
		if !ok {
			return nil, eofLog, nil
		}
		info = reLogInfo.FindStringSubmatch(line)
	}

	eof := eofNone
	var log strings.Builder
	for {
		line, ok = readLine(r)
		if !ok {
			eof = eofLog
			break
		}
		if strings.HasPrefix(line, "branches:") {
			continue
		}
		if line == entryEndMarker {
			break
		}
		if line == logEndMarker {
			eof = eofFile
			break
		}
		log.WriteString(line)
		log.WriteString("\n")
	}

	if rev == "" || info == nil {
		return nil, eof, nil
	}

	date, err := parseLogDate(info[1])
	if err != nil {
		return nil, eof, vclib.Errorf("parsing date of revision %s: %v", rev, err)
	}
	revision, err := newRevision(rev, date, info[2], info[3] == "dead")
	if err != nil {
		return nil, eof, err
	}
	revision.Changed = strings.TrimSpace(info[5])
	revision.Log = log.String()
	return revision, eof, nil
}

// skipFile skips the rest of the log of a file
func skipFile(r *bufio.Reader) {
	for {
		line, ok := readLine(r)
		if !ok || line == logEndMarker {
			return
		}
	}
}

// readLog parses the whole rlog output for a single file
func readLog(r io.Reader) (*logHeader, []*vclib.Revision, error) {
	br := bufio.NewReader(r)
	header, err := parseLogHeader(br)
	if err != nil {
		return nil, nil, err
	}
	var revs []*vclib.Revision
	eof := header.eof
	for eof == eofNone {
		var rev *vclib.Revision
		rev, eof, err = parseLogEntry(br)
		if err != nil {
			return nil, nil, err
		}
		if rev != nil {
			revs = append(revs, rev)
		}
	}
	return header, revs, nil
}

// parseCOHeader reads the header co writes on standard error:
//
//   /home/cvsroot/project/file.c,v  -->  standard output
//   revision 1.1
//
// Both values are empty when co produced no output at all.
func parseCOHeader(r *bufio.Reader) (string, string, error) {
	line, ok := readLine(r)
	if !ok {
		return "", "", nil
	}
	m := reCOFilename.FindStringSubmatch(line)
	if m == nil {
		return "", "", errCOMalformed.Message("unable to find filename in co output stream")
	}
	filename := m[1]

	for {
		line, ok = readLine(r)
		if !ok {
			break
		}
		if m := reCORevision.FindStringSubmatch(line); m != nil {
			return filename, m[1], nil
		}
		if reCOMissingRev.MatchString(line) || reCOSideBranch.MatchString(line) {
			return "", "", errCOMissingRevision
		}
		if !reCOWarning.MatchString(line) {
			break
		}
	}
	return "", "", errCOMalformed.Message("unable to find revision in co output stream")
}

// pathsEqual compares file names reported by RCS tools. CVSNT rewrites drive
// letters and separators.
func pathsEqual(a, b string) bool {
	return filepath.Clean(filepath.FromSlash(a)) == filepath.Clean(filepath.FromSlash(b))
}

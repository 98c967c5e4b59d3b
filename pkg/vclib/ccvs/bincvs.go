package ccvs

import (
	"bufio"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/viewvc/viewvc-sub000/pkg/errors"
	"github.com/viewvc/viewvc-sub000/pkg/popen"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/status"
	"go.uber.org/zap"
)

// maximum number of files passed to a single rlog invocation
const rlogBatchSize = 100

// BinRepository reads RCS files with the rlog, co and rcsdiff programs
type BinRepository struct {
	*base
}

var _ vclib.Repository = &BinRepository{}

// NewBin CVS repository, running the RCS tools
func NewBin(name, rootPath string, opts ...Option) (*BinRepository, error) {
	b, err := newBase(name, rootPath, opts...)
	if err != nil {
		return nil, err
	}
	return &BinRepository{base: b}, nil
}

// rcsCmd builds the command line of an RCS tool
func (r *BinRepository) rcsCmd(tool string, args ...string) popen.Cmd {
	if r.cvsnt != "" {
		return popen.Cmd{Path: r.cvsnt, Args: append([]string{"rcsfile", tool}, args...)}
	}
	pth := tool
	if r.rcsDir != "" {
		pth = filepath.Join(r.rcsDir, tool)
	}
	return popen.Cmd{Path: pth, Args: args}
}

// rcsPipe runs an RCS tool. Diagnostics are read along with the output.
func (r *BinRepository) rcsPipe(ctx context.Context, tool string, args ...string) (*popen.ReadPipe, error) {
	// RCS tools exit with 1 on errors about a single file
	return popen.Start(ctx, r.rcsCmd(tool, args...), popen.MergeStderr(), popen.OkCodes(1), popen.Logger(r.l))
}

// coPipe is the content of a checkout, past the co header
type coPipe struct {
	*bufio.Reader
	io.Closer
}

func (r *BinRepository) co(ctx context.Context, revFlag, keywordFlag, fullName string) (*coPipe, string, string, error) {
	pipe, err := r.rcsPipe(ctx, "co", revFlag, keywordFlag, fullName)
	if err != nil {
		return nil, "", "", err
	}
	reader := bufio.NewReader(pipe)
	filename, revision, err := parseCOHeader(reader)
	if err != nil {
		_ = pipe.Close()
		return nil, "", "", err
	}
	return &coPipe{Reader: reader, Closer: pipe}, filename, revision, nil
}

// OpenFile checks a revision out with co. Tags and branches are resolved with rlog
// when co does not understand them.
func (r *BinRepository) OpenFile(ctx context.Context, parts []string, rev string, opts vclib.OpenOptions) (io.ReadCloser, string, error) {
	if err := r.checkFile(ctx, parts, rev); err != nil {
		return nil, "", err
	}
	pth, err := r.rcsFile(parts)
	if err != nil {
		return nil, "", err
	}
	fullName := strings.TrimSuffix(pth, rcsSuffix)

	revFlag := "-p"
	if rev != "" && rev != HeadTag && rev != MainTag {
		revFlag += rev
	}
	keywordFlag := "-kkv"
	if opts.OldKeywords {
		keywordFlag = "-ko"
	}

	var tip *vclib.Revision
	fp, filename, revision, err := r.co(ctx, revFlag, keywordFlag, fullName)
	if errors.Is(err, errCOMissingRevision) {
		// rev is probably a tag or a branch
		if tip, err = r.tipRevision(ctx, pth, rev); err != nil {
			return nil, "", err
		}
		fp, filename, revision, err = r.co(ctx, "-p"+tip.ID, keywordFlag, fullName)
	}
	if err != nil {
		return nil, "", vclib.Errorf("checking out %s: %v", vclib.JoinPath(parts), err)
	}

	if filename == "" {
		// CVSNT's co outputs nothing for a dead revision: check out the closest live ancestor instead
		_ = fp.Close()
		if tip == nil {
			if tip, err = r.tipRevision(ctx, pth, rev); err != nil {
				return nil, "", err
			}
		}
		if tip.Undead == nil {
			return nil, "", vclib.Errorf("could not find non-dead revision preceding %q", rev)
		}
		fp, filename, revision, err = r.co(ctx, "-p"+tip.Undead.ID, keywordFlag, fullName)
		if err != nil {
			return nil, "", vclib.Errorf("checking out %s: %v", vclib.JoinPath(parts), err)
		}
		if filename == "" {
			_ = fp.Close()
			return nil, "", vclib.Errorf("could not find non-dead revision preceding %q", rev)
		}
	}

	if !pathsEqual(filename, fullName) {
		_ = fp.Close()
		return nil, "", vclib.Errorf("the filename from co (%s) did not match (%s)", filename, fullName)
	}
	return fp, revision, nil
}

// rlog runs rlog on a single RCS file and parses its output
func (r *BinRepository) rlog(ctx context.Context, pth string) (*logHeader, []*vclib.Revision, error) {
	pipe, err := r.rcsPipe(ctx, "rlog", pth)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pipe.Close() }()

	header, revs, err := readLog(pipe)
	if err != nil {
		return nil, nil, err
	}
	switch header.eof {
	case eofLog:
		return nil, nil, vclib.Errorf("rlog output ended early for %s", pth)
	case eofError:
		if strings.Contains(header.msg, "No such file") {
			return nil, nil, status.ErrItemNotFound.Message(pth)
		}
		return nil, nil, vclib.Errorf("rlog error on %s: %s", pth, header.msg)
	}
	return header, revs, nil
}

// tipRevision is the youngest revision of an RCS file seen from rev
func (r *BinRepository) tipRevision(ctx context.Context, pth, rev string) (*vclib.Revision, error) {
	header, revs, err := r.rlog(ctx, pth)
	if err != nil {
		return nil, err
	}
	filtered, _, err := fileLog(revs, header.tags, header.lockInfo, header.defaultBranch, rev)
	if err != nil {
		return nil, err
	}
	tip := tipRevision(filtered)
	if tip == nil {
		return nil, vclib.InvalidRevision(rev)
	}
	return tip, nil
}

// ItemLog returns the revisions of a file visible from rev: a revision, a branch or a tag.
// The empty revision returns all revisions.
func (r *BinRepository) ItemLog(ctx context.Context, parts []string, rev string, sortBy vclib.LogSort, first, limit int, opts vclib.LogOptions) ([]*vclib.Revision, error) {
	if err := r.checkFile(ctx, parts, rev); err != nil {
		return nil, err
	}
	pth, err := r.rcsFile(parts)
	if err != nil {
		return nil, err
	}
	header, revs, err := r.rlog(ctx, pth)
	if err != nil {
		return nil, err
	}
	filtered, tags, err := fileLog(revs, header.tags, header.lockInfo, header.defaultBranch, rev)
	if err != nil {
		return nil, err
	}
	return finishLog(filtered, tags, sortBy, first, limit, opts), nil
}

// logTarget is a directory entry awaiting its rlog output
type logTarget struct {
	entry *vclib.DirEntry
	path  string
	idx   int
}

// DirLogs finds the revision of each entry matching rev, running rlog on batches of files
func (r *BinRepository) DirLogs(ctx context.Context, parts []string, rev string, entries []*vclib.DirEntry, opts vclib.ListOptions) error {
	if err := r.checkDir(ctx, parts, rev); err != nil {
		return err
	}

	dirPath := r.getPath(parts)
	allTags := dirTags()
	next := 0
	for next < len(entries) {
		chunk := make([]*logTarget, 0, rlogBatchSize)
		for len(chunk) < rlogBatchSize && next < len(entries) {
			entry := entries[next]
			resetEntry(entry)
			child := append(append([]string{}, parts...), entry.Name)
			if vclib.CheckPathAccess(ctx, r, child, entry.Kind, rev) {
				if pth, newest := r.logPath(entry, dirPath, opts.CVSSubdirs); pth != "" {
					entry.LogFile = newest
					chunk = append(chunk, &logTarget{entry: entry, path: pth, idx: next})
				}
			}
			next++
		}
		if len(chunk) == 0 {
			break
		}

		restart, err := r.rlogChunk(ctx, chunk, rev, allTags)
		if err != nil {
			return err
		}
		if restart >= 0 {
			next = restart
		}
	}

	splitTags(allTags, opts)
	return nil
}

// rlogChunk fills a batch of entries from a single rlog run.
//
// rlog gives up on all remaining files after some errors. The returned index is then
// the entry to resume from, and -1 otherwise.
func (r *BinRepository) rlogChunk(ctx context.Context, chunk []*logTarget, viewTag string, allTags map[string]string) (int, error) {
	args := make([]string, 0, len(chunk)+1)
	if viewTag == "" {
		// the latest revision on the default branch is enough
		args = append(args, "-r")
	}
	for _, target := range chunk {
		args = append(args, target.path)
	}
	pipe, err := r.rcsPipe(ctx, "rlog", args...)
	if err != nil {
		return -1, err
	}
	defer func() { _ = pipe.Close() }()
	reader := bufio.NewReader(pipe)

	i := 0
	for i < len(chunk) {
		target := chunk[i]
		header, err := parseLogHeader(reader)
		if err != nil {
			return -1, err
		}

		if header.eof == eofLog {
			if len(target.entry.Errors) > 0 {
				if i+1 < len(chunk) {
					return chunk[i+1].idx, nil
				}
				return -1, nil
			}
			return -1, vclib.Errorf("rlog output ended early, expected RCS file %q", target.path)
		}

		// files rlog complained about may not appear at all
		for !pathsEqual(target.path, header.filename) {
			if len(target.entry.Errors) == 0 {
				return -1, vclib.Errorf("error parsing rlog output, expected RCS file %q, found %q", target.path, header.filename)
			}
			i++
			if i >= len(chunk) {
				return -1, vclib.Errorf("error parsing rlog output, unexpected RCS file %q", header.filename)
			}
			target = chunk[i]
		}

		if header.eof == eofError {
			// more output may follow about the same file
			target.entry.Errors = append(target.entry.Errors, "rlog error: "+header.msg)
			continue
		}

		r.matchEntry(reader, target.entry, header, viewTag)
		for name, tagRev := range header.tags {
			allTags[name] = tagRev
		}
		i++
	}
	return -1, nil
}

// matchEntry reads the revisions of a file until the one matching viewTag
func (r *BinRepository) matchEntry(reader *bufio.Reader, entry *vclib.DirEntry, header *logHeader, viewTag string) {
	var (
		tag *vclib.Tag
		err error
	)
	eof := header.eof
	switch tagRev, ok := header.tags[viewTag]; {
	case viewTag == MainTag || viewTag == HeadTag:
		tag, err = newTag("", header.defaultBranch)
	case ok:
		tag, err = newTag("", tagRev)
	case viewTag != "" && eof != eofFile:
		// the file does not carry the tag
		skipFile(reader)
		eof = eofFile
	}
	if err != nil {
		r.l.Debug("ignoring garbled tag", zap.String("tag", viewTag), zap.Error(err))
		tag = nil
	}

	var wanted *vclib.Revision
	for eof == eofNone {
		var rev *vclib.Revision
		rev, eof, err = parseLogEntry(reader)
		if err != nil || rev == nil {
			break
		}
		// a perfect match has the tag, lies on the viewed branch, or is any trunk revision
		// when no tag is viewed. The branch point is an imperfect match.
		n := len(rev.Number)
		perfect := tag == nil ||
			equalNumbers(rev.Number, tag.Number) ||
			(n == 2 && len(tag.Number) == 0) ||
			equalNumbers(rev.Number[:n-1], tag.Number)
		if perfect || (len(tag.Number) > 0 && equalNumbers(rev.Number, tag.Number[:len(tag.Number)-1])) {
			wanted = rev
			if perfect {
				break
			}
		}
	}

	switch {
	case wanted != nil:
		entry.Rev = wanted.ID
		entry.Date = wanted.Date
		entry.Author = wanted.Author
		entry.Dead = entry.Kind == vclib.File && wanted.Dead
		entry.Absent = false
		entry.Log = wanted.Log
		entry.LockInfo = header.lockInfo[wanted.ID]
		// a usable revision makes earlier rlog errors moot
		entry.Errors = nil
	case entry.Kind == vclib.File:
		entry.Dead = false
		entry.Absent = true
	}

	if eof == eofNone {
		skipFile(reader)
	}
}

// RawDiff runs rcsdiff between two revisions of the same file
func (r *BinRepository) RawDiff(ctx context.Context, parts1 []string, rev1 string, parts2 []string, rev2 string, diffType vclib.DiffType, opts vclib.DiffOptions) (io.ReadCloser, error) {
	if err := r.checkFile(ctx, parts1, rev1); err != nil {
		return nil, err
	}
	if err := r.checkFile(ctx, parts2, rev2); err != nil {
		return nil, err
	}
	if vclib.JoinPath(parts1) != vclib.JoinPath(parts2) {
		return nil, vclib.Unsupported("diff across paths in CVS")
	}

	args, err := vclib.DiffArgs(diffType, opts)
	if err != nil {
		return nil, err
	}
	if opts.OldKeywords {
		args = append(args, "-ko")
	} else {
		args = append(args, "-kk")
	}
	pth, err := r.rcsFile(parts1)
	if err != nil {
		return nil, err
	}
	args = append(args, "-r"+rev1, "-r"+rev2, pth)

	pipe, err := r.rcsPipe(ctx, "rcsdiff", args...)
	if err != nil {
		return nil, err
	}
	reader := bufio.NewReader(pipe)
	// skip the rcsdiff banner
	for {
		line, err := reader.ReadString('\n')
		if strings.HasPrefix(line, "diff ") || err != nil {
			break
		}
	}
	return &coPipe{Reader: reader, Closer: pipe}, nil
}

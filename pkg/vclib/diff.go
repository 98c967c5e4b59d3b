package vclib

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"time"

	"github.com/viewvc/viewvc-sub000/pkg/idiff"
	"github.com/viewvc/viewvc-sub000/pkg/popen"
	"go.uber.org/zap"
)

// DiffArgs maps a diff type and options to diff(1) (or rcsdiff(1)) arguments
func DiffArgs(diffType DiffType, opts DiffOptions) ([]string, error) {
	var args []string
	switch diffType {
	case Context:
		if opts.Context != nil {
			args = append(args, fmt.Sprintf("--context=%d", contextLines(opts.Context)))
		} else {
			args = append(args, "-c")
		}
	case Unified:
		if opts.Context != nil {
			args = append(args, fmt.Sprintf("--unified=%d", contextLines(opts.Context)))
		} else {
			args = append(args, "-u")
		}
	case SideBySide:
		args = append(args, "--side-by-side", "--width=164")
	default:
		return nil, Errorf("diff type %d not implemented", diffType)
	}

	if opts.FunctionNames {
		args = append(args, "-p")
	}
	if opts.IgnoreWhite {
		args = append(args, "-w")
	}
	return args, nil
}

func contextLines(c *int) int {
	if *c < 0 {
		return -1
	}
	return *c
}

// DiffInfo identifies one side of a diff, for labels
type DiffInfo struct {
	Path string
	Date *time.Time
	Rev  string
}

// DiffLabel formats a diff label as "path<TAB>YYYY/MM/DD HH:MM:SS<TAB>rev"
func DiffLabel(info DiffInfo) string {
	date := ""
	if info.Date != nil {
		date = info.Date.UTC().Format("2006/01/02 15:04:05")
	}
	return fmt.Sprintf("%s\t%s\t%s", info.Path, date, info.Rev)
}

// DiffFiles compares two temporary files. Both files are removed once the returned stream is closed,
// or right away on failure.
//
// When diffCmd is empty, the diff is computed in process.
func DiffFiles(ctx context.Context, diffCmd string, temp1, temp2 string, info1, info2 DiffInfo,
	diffType DiffType, opts DiffOptions, l *zap.Logger) (io.ReadCloser, error) {
	args, err := DiffArgs(diffType, opts)
	if err != nil {
		_ = popen.RemoveFiles(temp1, temp2)
		return nil, err
	}
	label1, label2 := DiffLabel(info1), DiffLabel(info2)

	if diffCmd == "" {
		return internalDiff(temp1, temp2, label1, label2, diffType, opts)
	}

	cmd, err := popen.Parse(diffCmd)
	if err != nil {
		_ = popen.RemoveFiles(temp1, temp2)
		return nil, err
	}
	args = append(args, "-L", label1, "-L", label2, temp1, temp2)
	// diff exits with 1 when files differ
	return popen.Start(ctx, cmd.With(args...), popen.OkCodes(1), popen.RemoveOnClose(temp1, temp2), popen.Logger(l))
}

func internalDiff(temp1, temp2, label1, label2 string, diffType DiffType, opts DiffOptions) (io.ReadCloser, error) {
	defer func() { _ = popen.RemoveFiles(temp1, temp2) }()

	a, err := ioutil.ReadFile(temp1)
	if err != nil {
		return nil, Errorf("reading diff input: %v", err)
	}
	b, err := ioutil.ReadFile(temp2)
	if err != nil {
		return nil, Errorf("reading diff input: %v", err)
	}

	o := idiff.Options{
		Context:       idiff.DefaultContext,
		FunctionNames: opts.FunctionNames,
		IgnoreWhite:   opts.IgnoreWhite,
	}
	if opts.Context != nil {
		o.Context = *opts.Context
	}

	var buf bytes.Buffer
	switch diffType {
	case Unified:
		err = idiff.Unified(&buf, a, b, label1, label2, o)
	case Context:
		err = idiff.Context(&buf, a, b, label1, label2, o)
	default:
		err = idiff.SideBySide(&buf, a, b, o)
	}
	if err != nil {
		return nil, err
	}
	return ioutil.NopCloser(&buf), nil
}


package svn

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"io/ioutil"
	"regexp"
	"strconv"
	"strings"

	"github.com/viewvc/viewvc-sub000/pkg/errors"
	"github.com/viewvc/viewvc-sub000/pkg/popen"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/status"
	"go.uber.org/zap"
)

// Subversion error codes, from svn_error_codes.h
const (
	errFsNotFound               = 160013
	errClientUnrelatedResources = 195012
)

// Runner starts the svn command line client.
//
// The returned stream yields the standard output of the client. A client which
// exits with a non-zero code reports a *popen.ExitError, either from Start or once
// the stream is drained.
type Runner interface {
	Start(ctx context.Context, args ...string) (io.ReadCloser, error)
}

type cliRunner struct {
	cmd popen.Cmd
	l   *zap.Logger
}

// NewRunner runs the svn client found at the given command line
func NewRunner(commandLine string, l *zap.Logger) (Runner, error) {
	cmd, err := popen.Parse(commandLine)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &cliRunner{cmd: cmd, l: l}, nil
}

func (c *cliRunner) Start(ctx context.Context, args ...string) (io.ReadCloser, error) {
	p, err := popen.Start(ctx, c.cmd.With(args...), popen.Logger(c.l))
	if err != nil {
		return nil, err
	}
	return p, nil
}

var reSvnError = regexp.MustCompile(`(?m)^svn: E([0-9]+): (.*)$`)

// CommandError reports a failed svn invocation
type CommandError struct {
	Cmd     string
	RetCode int
	// ErrCode is the Subversion error number, when one could be found in the error output
	ErrCode int
	Msg     string
}

func newCommandError(errout, cmd string, retCode int) *CommandError {
	errout = strings.TrimSuffix(errout, "\n")
	e := &CommandError{Cmd: cmd, RetCode: retCode, Msg: errout}
	if m := reSvnError.FindStringSubmatch(errout); m != nil {
		e.ErrCode, _ = strconv.Atoi(m[1])
		e.Msg = strings.TrimRight(m[2], "\r")
	}
	return e
}

func (e *CommandError) Error() string {
	if e.ErrCode != 0 {
		return fmt.Sprintf("svn %s: E%d: %s", e.Cmd, e.ErrCode, e.Msg)
	}
	return fmt.Sprintf("svn %s exit with code %d: %s", e.Cmd, e.RetCode, e.Msg)
}

// Is status.ErrVersionControl
func (e *CommandError) Is(target error) bool {
	return target == status.ErrVersionControl
}

// notFound tells whether the failure means that a path does not exist at some revision
func notFound(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return cmdErr.ErrCode == errFsNotFound || cmdErr.ErrCode == errClientUnrelatedResources
}

func commandError(cmd string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *popen.ExitError
	if errors.As(err, &exitErr) {
		return newCommandError(exitErr.Stderr, cmd, exitErr.Code)
	}
	return err
}

// cmdPipe maps child process failures to CommandError
type cmdPipe struct {
	io.ReadCloser
	cmd string
}

func (p *cmdPipe) Read(b []byte) (int, error) {
	n, err := p.ReadCloser.Read(b)
	if err != nil && err != io.EOF {
		err = commandError(p.cmd, err)
	}
	return n, err
}

func (p *cmdPipe) Close() error {
	return commandError(p.cmd, p.ReadCloser.Close())
}

// start runs an svn subcommand
func (r *Repository) start(ctx context.Context, cmd string, args ...string) (io.ReadCloser, error) {
	full := make([]string, 0, len(args)+3)
	full = append(full, cmd, "--non-interactive")
	if r.configDir != "" {
		full = append(full, "--config-dir="+r.configDir)
	}
	full = append(full, args...)

	rc, err := r.runner.Start(ctx, full...)
	if err != nil {
		return nil, commandError(cmd, err)
	}
	return &cmdPipe{ReadCloser: rc, cmd: cmd}, nil
}

// text runs an svn subcommand and returns its whole output
func (r *Repository) text(ctx context.Context, cmd string, args ...string) (string, error) {
	rc, err := r.start(ctx, cmd, args...)
	if err != nil {
		return "", err
	}
	out, err := ioutil.ReadAll(rc)
	if cerr := rc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// xmlCmd runs an svn subcommand with --xml and decodes its output into v
func (r *Repository) xmlCmd(ctx context.Context, v interface{}, cmd string, args ...string) error {
	rc, err := r.start(ctx, cmd, append([]string{"--xml"}, args...)...)
	if err != nil {
		return err
	}
	derr := xml.NewDecoder(rc).Decode(v)
	// the exit status tells more than a truncated document
	_, cerr := io.Copy(ioutil.Discard, rc)
	if err := rc.Close(); err != nil && cerr == nil {
		cerr = err
	}

	var cmdErr *CommandError
	switch {
	case errors.As(derr, &cmdErr):
		return derr
	case cerr != nil:
		return cerr
	case derr != nil:
		return status.ErrVersionControl.Messagef("decoding the output of svn %s", cmd).Wrap(derr)
	}
	return nil
}

package popen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/viewvc/viewvc-sub000/pkg/errors"
	"github.com/viewvc/viewvc-sub000/pkg/popen/status"
	"go.uber.org/zap"
)

// ExitError reports a child process which exited with an unexpected code
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimRight(e.Stderr, "\n")
	if msg == "" {
		return fmt.Sprintf("%s exited with code %d", e.Cmd, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Cmd, e.Code, msg)
}

// Is status.ErrCommandFailed
func (e *ExitError) Is(target error) bool {
	return target == status.ErrCommandFailed
}

// ReadPipe streams the standard output of a running child process
type ReadPipe struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	name   string
	opts   *options

	mu       sync.Mutex
	finished bool
	closed   bool
	reported bool
	exitErr  error
}

// Start runs the command and returns a pipe on its standard output
func Start(ctx context.Context, c Cmd, opts ...Option) (*ReadPipe, error) {
	o := defaultOptions()
	for _, apply := range opts {
		apply(o)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...) // #nosec
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if o.stdin != nil {
		cmd.Stdin = o.stdin
	}

	p := &ReadPipe{
		cmd:  cmd,
		name: c.String(),
		opts: o,
	}
	var writer *os.File
	if o.merge {
		pr, pw, err := os.Pipe()
		if err != nil {
			_ = p.cleanup()
			return nil, status.ErrNotStarted.Wrap(err)
		}
		cmd.Stdout = pw
		cmd.Stderr = pw
		p.stdout = pr
		writer = pw
		o.cleanups = append(o.cleanups, pr.Close)
	} else {
		cmd.Stderr = &p.stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			_ = p.cleanup()
			return nil, status.ErrNotStarted.Wrap(err)
		}
		p.stdout = stdout
	}

	o.l.Debug("running command", zap.String("cmd", p.name))
	err := cmd.Start()
	if writer != nil {
		// the child holds its own copy of the write end
		_ = writer.Close()
	}
	if err != nil {
		_ = p.cleanup()
		return nil, status.ErrNotStarted.Message(p.name).Wrap(err)
	}
	return p, nil
}

// Read from the standard output of the child.
//
// Once the output is exhausted, the child is reaped: an unexpected exit code
// is returned instead of io.EOF.
func (p *ReadPipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, os.ErrClosed
	}
	if p.finished {
		if p.exitErr != nil {
			p.reported = true
			return 0, p.exitErr
		}
		return 0, io.EOF
	}

	n, err := p.stdout.Read(b)
	if err == io.EOF {
		p.wait()
		if p.exitErr != nil {
			p.reported = true
			return n, p.exitErr
		}
	}
	return n, err
}

// Close the pipe. A child still running is killed.
//
// Close returns the exit error of a child which was fully drained, unless Read
// already reported it.
func (p *ReadPipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	if !p.finished {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_, _ = io.Copy(ioutil.Discard, p.stdout)
		_ = p.cmd.Wait()
		p.finished = true
	} else if p.exitErr != nil && !p.reported {
		p.reported = true
		err = p.exitErr
	}

	if cerr := p.cleanup(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Stderr returns what the child wrote to its standard error, once finished
func (p *ReadPipe) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finished {
		return ""
	}
	return p.stderr.String()
}

func (p *ReadPipe) wait() {
	p.finished = true
	err := p.cmd.Wait()
	if err == nil {
		return
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if p.opts.okCodes[code] {
			return
		}
		p.exitErr = &ExitError{Cmd: p.name, Code: code, Stderr: p.stderr.String()}
	} else {
		p.exitErr = status.ErrCommandFailed.Message(p.name).Wrap(err)
	}
	p.opts.l.Warn("command failed", zap.String("cmd", p.name), zap.Error(p.exitErr))
}

func (p *ReadPipe) cleanup() error {
	var first error
	for _, fn := range p.opts.cleanups {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	p.opts.cleanups = nil
	return first
}

// Output runs the command to completion and returns its standard output
func Output(ctx context.Context, c Cmd, opts ...Option) ([]byte, error) {
	p, err := Start(ctx, c, opts...)
	if err != nil {
		return nil, err
	}
	out, err := ioutil.ReadAll(p)
	if cerr := p.Close(); err == nil {
		err = cerr
	}
	return out, err
}

func removeFunc(pth string) func() error {
	return func() error {
		err := os.Remove(pth)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
}

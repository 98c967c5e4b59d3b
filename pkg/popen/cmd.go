package popen

import (
	"strings"

	shlex "github.com/anmitsu/go-shlex"
	"github.com/viewvc/viewvc-sub000/pkg/popen/status"
)

// Cmd describes an external tool invocation.
//
// Path may come from configuration, in which case it is split like a shell
// would: "/usr/local/bin/cvsnt rcsfile" yields the path "/usr/local/bin/cvsnt"
// and the leading argument "rcsfile".
type Cmd struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// Parse a configured command line
func Parse(commandLine string) (Cmd, error) {
	words, err := shlex.Split(strings.TrimSpace(commandLine), true)
	if err != nil {
		return Cmd{}, status.ErrCommandLine.Wrap(err)
	}
	if len(words) == 0 {
		return Cmd{}, status.ErrCommandLine.Messagef("empty command line %q", commandLine)
	}
	return Cmd{Path: words[0], Args: words[1:]}, nil
}

// MustParse is like Parse but panics on invalid input. It is intended for constant command lines.
func MustParse(commandLine string) Cmd {
	c, err := Parse(commandLine)
	if err != nil {
		panic(err)
	}
	return c
}

// With returns a copy of the command with extra arguments appended
func (c Cmd) With(args ...string) Cmd {
	all := make([]string, 0, len(c.Args)+len(args))
	all = append(all, c.Args...)
	all = append(all, args...)
	return Cmd{Path: c.Path, Args: all, Dir: c.Dir, Env: c.Env}
}

// String renders the command for logs and error messages
func (c Cmd) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

package svn

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"io/ioutil"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/viewvc/viewvc-sub000/pkg/popen"
)

// fakeSvn answers svn client invocations from an in-memory history

type fakeNode struct {
	kind    string
	content string
	props   map[string]string
}

type fakeChange struct {
	action   string
	path     string
	kind     string
	content  string
	props    map[string]string
	copyPath string
	copyRev  int64
}

type fakeRev struct {
	author   string
	date     string
	msg      string
	revprops map[string]string
	changes  []fakeChange
	tree     map[string]*fakeNode
}

type fakeSvn struct {
	root  string
	revs  []*fakeRev
	locks map[string]string

	mu    sync.Mutex
	calls []string
}

func newFakeSvn(root string, revs ...*fakeRev) *fakeSvn {
	f := &fakeSvn{
		root:  root,
		locks: make(map[string]string),
		revs:  []*fakeRev{{tree: map[string]*fakeNode{"/": {kind: kindDir}}}},
	}
	for _, rev := range revs {
		prev := f.revs[len(f.revs)-1].tree
		tree := make(map[string]*fakeNode, len(prev))
		for k, v := range prev {
			tree[k] = v
		}
		for _, c := range rev.changes {
			f.apply(tree, c)
		}
		rev.tree = tree
		f.revs = append(f.revs, rev)
	}
	return f
}

func (f *fakeSvn) apply(tree map[string]*fakeNode, c fakeChange) {
	switch c.action {
	case "D":
		for k := range tree {
			if under(k, c.path) {
				delete(tree, k)
			}
		}
	case "M":
		old := tree[c.path]
		node := &fakeNode{kind: old.kind, content: old.content, props: map[string]string{}}
		for k, v := range old.props {
			node.props[k] = v
		}
		if c.content != "" {
			node.content = c.content
		}
		for k, v := range c.props {
			node.props[k] = v
		}
		tree[c.path] = node
	default:
		if c.copyPath != "" {
			for k, v := range f.revs[c.copyRev].tree {
				if under(k, c.copyPath) {
					tree[c.path+k[len(c.copyPath):]] = v
				}
			}
			return
		}
		tree[c.path] = &fakeNode{kind: c.kind, content: c.content, props: c.props}
	}
}

// under tells whether pth is root or lies below it
func under(pth, root string) bool {
	return pth == root || root == "/" || isChildOf(pth, root)
}

func (f *fakeSvn) youngest() int64 {
	return int64(len(f.revs) - 1)
}

func (f *fakeSvn) callsOf(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, cmd+" ") {
			n++
		}
	}
	return n
}

type fakeArgs struct {
	cmd        string
	from, to   int64
	hasRev     bool
	limit      int
	verbose    bool
	stopOnCopy bool
	showItem   string
	path       string
	peg        int64
}

func (f *fakeSvn) parse(args []string) (*fakeArgs, error) {
	a := &fakeArgs{cmd: args[0], peg: f.youngest()}
	var positional []string
	for i := 1; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-r":
			i++
			if err := f.parseRev(a, args[i]); err != nil {
				return nil, err
			}
		case strings.HasPrefix(arg, "-r"):
			if err := f.parseRev(a, arg[2:]); err != nil {
				return nil, err
			}
		case arg == "-l":
			i++
			a.limit, _ = strconv.Atoi(args[i])
		case arg == "-v":
			a.verbose = true
		case arg == "--stop-on-copy":
			a.stopOnCopy = true
		case strings.HasPrefix(arg, "--show-item="):
			a.showItem = strings.TrimPrefix(arg, "--show-item=")
		case strings.HasPrefix(arg, "-"):
		default:
			positional = append(positional, arg)
		}
	}

	target := positional[len(positional)-1]
	if at := strings.LastIndex(target, "@"); at > len(f.root) {
		peg, err := strconv.ParseInt(target[at+1:], 10, 64)
		if err != nil {
			return nil, err
		}
		a.peg = peg
		target = target[:at]
	}
	pth, err := url.PathUnescape(strings.TrimPrefix(target, f.root))
	if err != nil {
		return nil, err
	}
	if pth == "" {
		pth = "/"
	}
	a.path = pth
	if !a.hasRev {
		a.from, a.to = a.peg, a.peg
	}
	return a, nil
}

func (f *fakeSvn) parseRev(a *fakeArgs, spec string) error {
	parts := strings.SplitN(spec, ":", 2)
	revs := make([]int64, 0, 2)
	for _, p := range parts {
		if p == "HEAD" {
			revs = append(revs, f.youngest())
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return err
		}
		revs = append(revs, n)
	}
	a.from, a.to, a.hasRev = revs[0], revs[len(revs)-1], true
	return nil
}

func svnFailure(code int, msg string) error {
	return &popen.ExitError{Cmd: "svn", Code: 1, Stderr: fmt.Sprintf("svn: E%d: %s\n", code, msg)}
}

func (f *fakeSvn) Start(_ context.Context, args ...string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls = append(f.calls, strings.Join(args, " "))
	f.mu.Unlock()

	a, err := f.parse(args)
	if err != nil {
		return nil, err
	}
	if a.peg > f.youngest() || a.from > f.youngest() {
		return nil, svnFailure(160006, "No such revision")
	}
	if f.revs[a.peg].tree[a.path] == nil {
		if a.cmd == "info" {
			return nil, &popen.ExitError{Cmd: "svn", Code: 1, Stderr: "svn: warning: W170000: URL non-existent\n\n" +
				"svn: E200009: Could not display info for all targets because some targets don't exist\n"}
		}
		return nil, svnFailure(errFsNotFound, fmt.Sprintf("File not found: revision %d, path '%s'", a.peg, a.path))
	}

	var out string
	switch a.cmd {
	case "propget":
		out = fmt.Sprintf("<?xml version=\"1.0\"?>\n<properties>\n<revprops rev=\"%d\">\n<property name=\"svn:date\">%s</property>\n</revprops>\n</properties>\n",
			f.youngest(), f.revs[f.youngest()].date)
	case "info":
		out, err = f.info(a)
	case "ls":
		out = f.ls(a)
	case "log":
		out = f.log(a)
	case "cat":
		out = f.revs[a.peg].tree[a.path].content
	case "proplist":
		out = f.proplist(a)
	case "blame":
		out = f.blame(a)
	default:
		err = fmt.Errorf("unexpected svn command %q", a.cmd)
	}
	if err != nil {
		return nil, err
	}
	return ioutil.NopCloser(strings.NewReader(out)), nil
}

func esc(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func (f *fakeSvn) url(pth string) string {
	if pth == "/" {
		return f.root
	}
	return f.root + "/" + escapePath(strings.Split(pth[1:], "/"))
}

// lastChanged is the youngest revision not newer than rev which changed pth or its children
func (f *fakeSvn) lastChanged(pth string, rev int64) int64 {
	for rv := rev; rv >= 1; rv-- {
		var copied *fakeChange
		for i, c := range f.revs[rv].changes {
			if under(c.path, pth) {
				return rv
			}
			if c.copyPath != "" && isChildOf(pth, c.path) {
				copied = &f.revs[rv].changes[i]
			}
		}
		if copied != nil {
			pth = copied.copyPath + pth[len(copied.path):]
			rv = copied.copyRev + 1
		}
	}
	return 0
}

type fakeHistory struct {
	rev  int64
	path string
}

// history lists the revisions, from newest to oldest, which touched pth
func (f *fakeSvn) history(pth string, from, to int64, stopOnCopy bool, limit int) []fakeHistory {
	var out []fakeHistory
	for rv := from; rv >= to && rv >= 1; rv-- {
		touched, added := false, false
		var copied *fakeChange
		for i, c := range f.revs[rv].changes {
			if under(c.path, pth) {
				touched = true
			}
			if c.copyPath != "" && (c.path == pth || isChildOf(pth, c.path)) {
				touched = true
				copied = &f.revs[rv].changes[i]
			} else if c.path == pth && c.action == "A" {
				added = true
			}
		}
		if touched {
			out = append(out, fakeHistory{rev: rv, path: pth})
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		if added {
			break
		}
		if copied != nil {
			if stopOnCopy {
				break
			}
			pth = copied.copyPath + pth[len(copied.path):]
			rv = copied.copyRev + 1
		}
	}
	return out
}

func (f *fakeSvn) info(a *fakeArgs) (string, error) {
	node := f.revs[a.peg].tree[a.path]
	switch a.showItem {
	case "kind":
		return node.kind, nil
	case "last-changed-revision":
		return strconv.FormatInt(f.lastChanged(a.path, a.peg), 10), nil
	case "":
	default:
		return "", fmt.Errorf("unexpected item %q", a.showItem)
	}

	// location of the item in another revision
	pth := a.path
	if a.to > a.peg {
		for rv := a.peg + 1; rv <= a.to; rv++ {
			for _, c := range f.revs[rv].changes {
				if (c.action == "A" || c.action == "R" || c.action == "D") && under(pth, c.path) {
					return "", svnFailure(errClientUnrelatedResources, "Unrelated resources")
				}
			}
		}
	} else {
		for rv := a.peg; rv > a.to; rv-- {
			for _, c := range f.revs[rv].changes {
				if c.copyPath != "" && under(pth, c.path) {
					pth = c.copyPath + pth[len(c.path):]
					rv = c.copyRev + 1
					break
				}
				if c.action == "A" && c.path == pth {
					return "", svnFailure(errFsNotFound, "path not found")
				}
			}
		}
	}
	old := f.revs[a.to].tree[pth]
	if old == nil {
		return "", svnFailure(errFsNotFound, "path not found")
	}
	return fmt.Sprintf("<?xml version=\"1.0\"?>\n<info>\n<entry kind=\"%s\" path=\"x\" revision=\"%d\">\n<url>%s</url>\n</entry>\n</info>\n",
		old.kind, a.to, esc(f.url(pth))), nil
}

func (f *fakeSvn) ls(a *fakeArgs) string {
	tree := f.revs[a.peg].tree
	var names []string
	for k := range tree {
		if k != a.path && under(k, a.path) && !strings.Contains(strings.TrimPrefix(k[len(a.path):], "/"), "/") {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	var buf strings.Builder
	fmt.Fprintf(&buf, "<?xml version=\"1.0\"?>\n<lists>\n<list path=\"%s\">\n", esc(f.url(a.path)))
	for _, k := range names {
		node := tree[k]
		lc := f.lastChanged(k, a.peg)
		fmt.Fprintf(&buf, "<entry kind=\"%s\">\n<name>%s</name>\n", node.kind, esc(k[strings.LastIndex(k, "/")+1:]))
		if node.kind == kindFile {
			fmt.Fprintf(&buf, "<size>%d</size>\n", len(node.content))
		}
		fmt.Fprintf(&buf, "<commit revision=\"%d\">\n<author>%s</author>\n<date>%s</date>\n</commit>\n", lc, f.revs[lc].author, f.revs[lc].date)
		if owner, ok := f.locks[k]; ok {
			fmt.Fprintf(&buf, "<lock>\n<token>opaquelocktoken:1</token>\n<owner>%s</owner>\n</lock>\n", owner)
		}
		buf.WriteString("</entry>\n")
	}
	buf.WriteString("</list>\n</lists>\n")
	return buf.String()
}

func (f *fakeSvn) log(a *fakeArgs) string {
	var buf strings.Builder
	buf.WriteString("<?xml version=\"1.0\"?>\n<log>\n")
	for _, h := range f.history(a.path, a.from, a.to, a.stopOnCopy, a.limit) {
		rev := f.revs[h.rev]
		fmt.Fprintf(&buf, "<logentry revision=\"%d\">\n<author>%s</author>\n<date>%s</date>\n", h.rev, esc(rev.author), rev.date)
		if a.verbose {
			buf.WriteString("<paths>\n")
			for _, c := range rev.changes {
				kind := c.kind
				if kind == "" {
					if node := rev.tree[c.path]; node != nil {
						kind = node.kind
					}
				}
				fmt.Fprintf(&buf, "<path action=\"%s\" kind=\"%s\" text-mods=\"%t\" prop-mods=\"%t\"", c.action, kind, c.content != "", len(c.props) > 0)
				if c.copyPath != "" {
					fmt.Fprintf(&buf, " copyfrom-path=\"%s\" copyfrom-rev=\"%d\"", esc(c.copyPath), c.copyRev)
				}
				fmt.Fprintf(&buf, ">%s</path>\n", esc(c.path))
			}
			buf.WriteString("</paths>\n")
		}
		fmt.Fprintf(&buf, "<msg>%s</msg>\n", esc(rev.msg))
		if len(rev.revprops) > 0 {
			buf.WriteString("<revprops>\n")
			for k, v := range rev.revprops {
				fmt.Fprintf(&buf, "<property name=\"%s\">%s</property>\n", esc(k), esc(v))
			}
			buf.WriteString("</revprops>\n")
		}
		buf.WriteString("</logentry>\n")
	}
	buf.WriteString("</log>\n")
	return buf.String()
}

func (f *fakeSvn) proplist(a *fakeArgs) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "<?xml version=\"1.0\"?>\n<properties>\n<target path=\"%s\">\n", esc(f.url(a.path)))
	for k, v := range f.revs[a.peg].tree[a.path].props {
		fmt.Fprintf(&buf, "<property name=\"%s\">%s</property>\n", esc(k), esc(v))
	}
	buf.WriteString("</target>\n</properties>\n")
	return buf.String()
}

// blame attributes each line to the oldest revision since which it did not change
func (f *fakeSvn) blame(a *fakeArgs) string {
	hist := f.history(a.path, a.peg, a.from, false, 0)
	var lines []string
	var owners []int64
	for i := len(hist) - 1; i >= 0; i-- {
		current := strings.SplitAfter(f.revs[hist[i].rev].tree[hist[i].path].content, "\n")
		if current[len(current)-1] == "" {
			current = current[:len(current)-1]
		}
		next := make([]int64, len(current))
		for j, line := range current {
			if j < len(lines) && lines[j] == line {
				next[j] = owners[j]
			} else {
				next[j] = hist[i].rev
			}
		}
		lines, owners = current, next
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "<?xml version=\"1.0\"?>\n<blame>\n<target path=\"%s\">\n", esc(f.url(a.path)))
	for j, owner := range owners {
		rev := f.revs[owner]
		fmt.Fprintf(&buf, "<entry line-number=\"%d\">\n<commit revision=\"%d\">\n<author>%s</author>\n<date>%s</date>\n</commit>\n</entry>\n",
			j+1, owner, esc(rev.author), rev.date)
	}
	buf.WriteString("</target>\n</blame>\n")
	return buf.String()
}

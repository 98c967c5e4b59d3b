// Copyright © 2018 One Concern

// Package idiff renders line diffs in process, in the formats produced by diff(1):
// unified, context and side-by-side.
//
// It is used when no external diff utility is available.
package idiff

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
)

// Options for rendering a diff
type Options struct {
	// Context lines around each hunk. A negative value shows whole files.
	Context int
	// FunctionNames appends the nearest preceding function-like line to hunk headers (diff -p)
	FunctionNames bool
	// IgnoreWhite compares lines regardless of white space (diff -w)
	IgnoreWhite bool
	// Width of side-by-side output
	Width int
}

// DefaultContext is the number of context lines used by diff -u and diff -c
const DefaultContext = 3

// DefaultWidth of side-by-side output
const DefaultWidth = 164

type differ struct {
	a, b   []string
	opts   Options
	groups [][]difflib.OpCode
}

func newDiffer(a, b []byte, opts Options) *differ {
	d := &differ{
		a:    splitLines(a),
		b:    splitLines(b),
		opts: opts,
	}
	return d
}

func (d *differ) matcher() *difflib.SequenceMatcher {
	if !d.opts.IgnoreWhite {
		return difflib.NewMatcher(d.a, d.b)
	}
	return difflib.NewMatcher(squeeze(d.a), squeeze(d.b))
}

func (d *differ) grouped() [][]difflib.OpCode {
	n := d.opts.Context
	if n < 0 {
		n = len(d.a) + len(d.b) + 1
	}
	var groups [][]difflib.OpCode
	for _, g := range d.matcher().GetGroupedOpCodes(n) {
		if len(g) == 1 && g[0].Tag == 'e' {
			continue
		}
		groups = append(groups, g)
	}
	return groups
}

// Unified writes a unified diff between a and b
func Unified(w io.Writer, a, b []byte, label1, label2 string, opts Options) error {
	d := newDiffer(a, b, opts)
	groups := d.grouped()
	if len(groups) == 0 {
		return nil
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "--- %s\n+++ %s\n", label1, label2)
	for _, g := range groups {
		first, last := g[0], g[len(g)-1]
		fmt.Fprintf(bw, "@@ -%s +%s @@%s\n",
			unifiedRange(first.I1, last.I2), unifiedRange(first.J1, last.J2), d.function(first.I1))
		for _, c := range g {
			switch c.Tag {
			case 'e':
				writeLines(bw, " ", d.a[c.I1:c.I2])
			case 'r':
				writeLines(bw, "-", d.a[c.I1:c.I2])
				writeLines(bw, "+", d.b[c.J1:c.J2])
			case 'd':
				writeLines(bw, "-", d.a[c.I1:c.I2])
			case 'i':
				writeLines(bw, "+", d.b[c.J1:c.J2])
			}
		}
	}
	return bw.Flush()
}

// Context writes a context diff between a and b
func Context(w io.Writer, a, b []byte, label1, label2 string, opts Options) error {
	d := newDiffer(a, b, opts)
	groups := d.grouped()
	if len(groups) == 0 {
		return nil
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "*** %s\n--- %s\n", label1, label2)
	for _, g := range groups {
		first, last := g[0], g[len(g)-1]
		fmt.Fprintf(bw, "***************%s\n", d.function(first.I1))

		fmt.Fprintf(bw, "*** %s ****\n", contextRange(first.I1, last.I2))
		if hasTag(g, 'r', 'd') {
			for _, c := range g {
				switch c.Tag {
				case 'e':
					writeLines(bw, "  ", d.a[c.I1:c.I2])
				case 'r':
					writeLines(bw, "! ", d.a[c.I1:c.I2])
				case 'd':
					writeLines(bw, "- ", d.a[c.I1:c.I2])
				}
			}
		}

		fmt.Fprintf(bw, "--- %s ----\n", contextRange(first.J1, last.J2))
		if hasTag(g, 'r', 'i') {
			for _, c := range g {
				switch c.Tag {
				case 'e':
					writeLines(bw, "  ", d.b[c.J1:c.J2])
				case 'r':
					writeLines(bw, "! ", d.b[c.J1:c.J2])
				case 'i':
					writeLines(bw, "+ ", d.b[c.J1:c.J2])
				}
			}
		}
	}
	return bw.Flush()
}

// SideBySide writes both files in two columns, marking differing lines in a gutter
func SideBySide(w io.Writer, a, b []byte, opts Options) error {
	d := newDiffer(a, b, opts)
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	col := (width - 3) / 2

	bw := bufio.NewWriter(w)
	row := func(left, gutter, right string) {
		left = column(left, col)
		right = strings.TrimRight(column(right, col), " ")
		if right == "" && gutter == " " {
			fmt.Fprintf(bw, "%s\n", strings.TrimRight(left, " "))
			return
		}
		fmt.Fprintf(bw, "%-*s %s %s\n", col, left, gutter, right)
	}
	for _, c := range d.matcher().GetOpCodes() {
		switch c.Tag {
		case 'e':
			for i := 0; i < c.I2-c.I1; i++ {
				row(d.a[c.I1+i], " ", d.b[c.J1+i])
			}
		case 'r':
			n := max(c.I2-c.I1, c.J2-c.J1)
			for i := 0; i < n; i++ {
				switch {
				case c.I1+i < c.I2 && c.J1+i < c.J2:
					row(d.a[c.I1+i], "|", d.b[c.J1+i])
				case c.I1+i < c.I2:
					row(d.a[c.I1+i], "<", "")
				default:
					row("", ">", d.b[c.J1+i])
				}
			}
		case 'd':
			for _, l := range d.a[c.I1:c.I2] {
				row(l, "<", "")
			}
		case 'i':
			for _, l := range d.b[c.J1:c.J2] {
				row("", ">", l)
			}
		}
	}
	return bw.Flush()
}

// function finds the nearest line before index i looking like the start of a function
func (d *differ) function(i int) string {
	if !d.opts.FunctionNames {
		return ""
	}
	for j := i - 1; j >= 0; j-- {
		line := strings.TrimRight(d.a[j], "\r\n")
		if line == "" {
			continue
		}
		r := rune(line[0])
		if unicode.IsLetter(r) || r == '_' || r == '$' {
			if len(line) > 40 {
				line = line[:40]
			}
			return " " + line
		}
	}
	return ""
}

func splitLines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	lines := difflib.SplitLines(string(b))
	// SplitLines always appends a trailing newline to the last line
	if strings.HasSuffix(string(b), "\n") && len(lines) > 0 && lines[len(lines)-1] == "\n" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func squeeze(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.Join(strings.Fields(l), "")
	}
	return out
}

func writeLines(w io.Writer, prefix string, lines []string) {
	for _, l := range lines {
		if !strings.HasSuffix(l, "\n") {
			l += "\n"
		}
		fmt.Fprint(w, prefix+l)
	}
}

func column(s string, width int) string {
	s = strings.TrimRight(s, "\r\n")
	s = strings.Replace(s, "\t", "        ", -1)
	if len(s) > width {
		return s[:width]
	}
	return s
}

func hasTag(g []difflib.OpCode, tags ...byte) bool {
	for _, c := range g {
		for _, t := range tags {
			if c.Tag == t {
				return true
			}
		}
	}
	return false
}

func unifiedRange(start, stop int) string {
	beginning := start + 1
	length := stop - start
	if length == 1 {
		return fmt.Sprintf("%d", beginning)
	}
	if length == 0 {
		beginning--
	}
	return fmt.Sprintf("%d,%d", beginning, length)
}

func contextRange(start, stop int) string {
	beginning := start + 1
	length := stop - start
	if length == 0 {
		beginning--
	}
	if length <= 1 {
		return fmt.Sprintf("%d", beginning)
	}
	return fmt.Sprintf("%d,%d", beginning, beginning+length-1)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

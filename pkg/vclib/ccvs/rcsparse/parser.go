package rcsparse

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/viewvc/viewvc-sub000/pkg/errors"
)

type parser struct {
	ts   *tokenStream
	sink Sink
}

// Parse reads an RCS file and reports its contents to the sink.
//
// Parsing stops with no error when the sink returns ErrStop.
func Parse(r io.Reader, sink Sink) error {
	p := &parser{ts: newTokenStream(r), sink: sink}
	err := p.parse()
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

func (p *parser) parse() error {
	if _, err := p.ts.r.Peek(1); err != nil {
		if err == io.EOF {
			return ErrUnexpectedEOF.Message("empty rcs file")
		}
		return err
	}

	if err := p.parseAdmin(); err != nil {
		return err
	}
	if err := p.sink.AdminCompleted(); err != nil {
		return err
	}
	if err := p.parseTree(); err != nil {
		return err
	}
	if err := p.sink.TreeCompleted(); err != nil {
		return err
	}
	if err := p.parseDescription(); err != nil {
		return err
	}
	if err := p.parseDeltaTexts(); err != nil {
		return err
	}
	return p.sink.ParseCompleted()
}

func startsWithDigit(token []byte) bool {
	return len(token) > 0 && token[0] >= '0' && token[0] <= '9'
}

// optionalValue reads "value ;" or a bare ";"
func (p *parser) optionalValue() (string, bool, error) {
	token, err := p.ts.mustGet()
	if err != nil {
		return "", false, err
	}
	if string(token) == ";" {
		return "", false, nil
	}
	return string(token), true, p.ts.match(";")
}

// pairs reads "a:b c:d ;" lists
func (p *parser) pairs(apply func(left, right string) error) error {
	for {
		left, err := p.ts.mustGet()
		if err != nil {
			return err
		}
		if string(left) == ";" {
			return nil
		}
		if err = p.ts.match(":"); err != nil {
			return err
		}
		right, err := p.ts.mustGet()
		if err != nil {
			return err
		}
		if err = apply(string(left), string(right)); err != nil {
			return err
		}
	}
}

func (p *parser) parseAdmin() error {
	for {
		token, err := p.ts.mustGet()
		if err != nil {
			return err
		}

		switch string(token) {
		case "head":
			rev, ok, err := p.optionalValue()
			if err != nil {
				return err
			}
			if ok {
				if err = p.sink.SetHeadRevision(rev); err != nil {
					return err
				}
			}
		case "branch":
			branch, ok, err := p.optionalValue()
			if err != nil {
				return err
			}
			if ok {
				if err = p.sink.SetPrincipalBranch(branch); err != nil {
					return err
				}
			}
		case "access":
			tokens, err := p.ts.untilSemicolon()
			if err != nil {
				return err
			}
			if len(tokens) > 0 {
				accessors := make([]string, 0, len(tokens))
				for _, t := range tokens {
					accessors = append(accessors, string(t))
				}
				if err = p.sink.SetAccess(accessors); err != nil {
					return err
				}
			}
		case "symbols":
			if err = p.pairs(p.sink.DefineTag); err != nil {
				return err
			}
		case "locks":
			err = p.pairs(func(locker, rev string) error {
				return p.sink.SetLocker(rev, locker)
			})
			if err != nil {
				return err
			}
		case "strict":
			if err = p.sink.SetLocking("strict"); err != nil {
				return err
			}
			if err = p.ts.match(";"); err != nil {
				return err
			}
		case "comment", "expand":
			value, err := p.ts.mustGet()
			if err != nil {
				return err
			}
			if string(token) == "comment" {
				err = p.sink.SetComment(string(value))
			} else {
				err = p.sink.SetExpansion(string(value))
			}
			if err != nil {
				return err
			}
			if err = p.ts.match(";"); err != nil {
				return err
			}
		case "desc":
			p.ts.unget(token)
			return nil
		default:
			// the tree starts with a revision number
			if startsWithDigit(token) {
				p.ts.unget(token)
				return nil
			}
			// skip newphrases
			if _, err = p.ts.untilSemicolon(); err != nil {
				return err
			}
		}
	}
}

// parseDate converts an RCS date (YY.MM.DD.hh.mm.ss, or YYYY.MM.DD.hh.mm.ss after 1999), in UTC
func parseDate(rev string, date []byte) (time.Time, error) {
	fields := strings.Split(string(date), ".")
	if len(fields) != 6 {
		return time.Time{}, ErrSyntax.Messagef("invalid date for revision %s: %q", rev, date)
	}
	if len(fields[0]) == 2 {
		fields[0] = "19" + fields[0]
	}
	values := make([]int, 0, 6)
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return time.Time{}, ErrSyntax.Messagef("invalid date for revision %s: %q", rev, date)
		}
		values = append(values, v)
	}
	if values[0] < 1970 {
		return time.Time{}, ErrSyntax.Messagef("invalid year for revision %s", rev)
	}
	if values[1] < 1 || values[1] > 12 || values[2] < 1 || values[2] > 31 ||
		values[3] > 23 || values[4] > 59 || values[5] > 61 {
		return time.Time{}, ErrSyntax.Messagef("invalid date for revision %s: %q", rev, date)
	}
	return time.Date(values[0], time.Month(values[1]), values[2], values[3], values[4], values[5], 0, time.UTC), nil
}

func (p *parser) parseTreeEntry(revision []byte) error {
	rev := string(revision)

	if err := p.ts.match("date"); err != nil {
		return err
	}
	date, err := p.ts.mustGet()
	if err != nil {
		return err
	}
	if err = p.ts.match(";"); err != nil {
		return err
	}
	timestamp, err := parseDate(rev, date)
	if err != nil {
		return err
	}

	// authors with white space are invalid, but produced by CVSNT
	if err = p.ts.match("author"); err != nil {
		return err
	}
	authorTokens, err := p.ts.untilSemicolon()
	if err != nil {
		return err
	}
	author := string(bytes.Join(authorTokens, []byte(" ")))

	if err = p.ts.match("state"); err != nil {
		return err
	}
	stateTokens, err := p.ts.untilSemicolon()
	if err != nil {
		return err
	}
	state := string(bytes.Join(stateTokens, []byte(" ")))

	if err = p.ts.match("branches"); err != nil {
		return err
	}
	branchTokens, err := p.ts.untilSemicolon()
	if err != nil {
		return err
	}
	branches := make([]string, 0, len(branchTokens))
	for _, b := range branchTokens {
		branches = append(branches, string(b))
	}

	if err = p.ts.match("next"); err != nil {
		return err
	}
	next, _, err := p.optionalValue()
	if err != nil {
		return err
	}

	// skip newphrases such as "commitid", "owner" or "permissions"
	for {
		token, err := p.ts.mustGet()
		if err != nil {
			return err
		}
		if string(token) == "desc" || startsWithDigit(token) {
			p.ts.unget(token)
			break
		}
		if _, err = p.ts.untilSemicolon(); err != nil {
			return err
		}
	}

	return p.sink.DefineRevision(rev, timestamp, author, state, branches, next)
}

func (p *parser) parseTree() error {
	for {
		revision, err := p.ts.mustGet()
		if err != nil {
			return err
		}
		if string(revision) == "desc" {
			p.ts.unget(revision)
			return nil
		}
		if err = p.parseTreeEntry(revision); err != nil {
			return err
		}
	}
}

func (p *parser) parseDescription() error {
	if err := p.ts.match("desc"); err != nil {
		return err
	}
	desc, err := p.ts.mustGet()
	if err != nil {
		return err
	}
	return p.sink.SetDescription(string(desc))
}

func (p *parser) parseDeltaTexts() error {
	for {
		revision, err := p.ts.get()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if err = p.ts.match("log"); err != nil {
			return err
		}
		log, err := p.ts.mustGet()
		if err != nil {
			return err
		}

		// skip newphrases until the text
		for {
			token, err := p.ts.mustGet()
			if err != nil {
				return err
			}
			if string(token) == "text" {
				break
			}
			if _, err = p.ts.untilSemicolon(); err != nil {
				return err
			}
		}
		text, err := p.ts.mustGet()
		if err != nil {
			return err
		}

		if err = p.sink.SetRevisionInfo(string(revision), string(log), text); err != nil {
			return err
		}
	}
}

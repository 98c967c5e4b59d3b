// Package forbidden hides top-level modules whose name matches glob patterns.
//
// The "forbidden" parameter holds a comma separated list of patterns. A
// pattern prefixed by "!" grants access to matching modules; the presence of
// any such pattern makes modules matching no pattern unreadable. Patterns are
// evaluated in order and the first match wins.
package forbidden

import (
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/viewvc/viewvc-sub000/pkg/vcauth"
	"github.com/viewvc/viewvc-sub000/pkg/vcauth/status"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

const name = "forbidden"

type pattern struct {
	glob    string
	negated bool
}

// Authorizer for top-level modules
type Authorizer struct {
	patterns []pattern
}

var _ vclib.Authorizer = &Authorizer{}

// New builds a forbidden modules authorizer. The username is not relevant.
func New(_ string, params vcauth.Params) (vclib.Authorizer, error) {
	a := &Authorizer{}
	for _, item := range params.List(name) {
		p := pattern{glob: item}
		if strings.HasPrefix(item, "!") {
			p = pattern{glob: item[1:], negated: true}
		}
		// fnmatch style negated classes
		p.glob = strings.Replace(p.glob, "[!", "[^", -1)
		if _, err := doublestar.Match(p.glob, "x"); err != nil {
			return nil, status.ErrInvalidParam.Messagef("invalid forbidden pattern %q", item).Wrap(err)
		}
		a.patterns = append(a.patterns, p)
	}
	return a, nil
}

// CheckRootAccess grants access to every root
func (a *Authorizer) CheckRootAccess(string) bool {
	return true
}

// CheckUniversalAccess grants access when no pattern is configured
func (a *Authorizer) CheckUniversalAccess(string) vclib.Access {
	if len(a.patterns) == 0 {
		return vclib.AccessGranted
	}
	return vclib.AccessUnknown
}

// CheckPathAccess matches the top-level module of a path
func (a *Authorizer) CheckPathAccess(_ string, parts []string, pathType vclib.ItemType, _ string) bool {
	if len(parts) == 0 {
		return true
	}
	// a file at the top-level is not a module
	if len(parts) == 1 && pathType != vclib.Dir {
		return true
	}

	module := parts[0]
	allowed := true
	for _, p := range a.patterns {
		matched, _ := doublestar.Match(p.glob, module)
		if p.negated {
			allowed = false
			if matched {
				return true
			}
		} else if matched {
			return false
		}
	}
	return allowed
}

func init() {
	vcauth.Register(name, New)
}

// Package forbiddenre hides paths matching regular expressions.
//
// The "forbiddenre" parameter holds a comma separated list of regular
// expressions, searched in "root/path" strings (directories end with a
// slash). An expression prefixed by "!" grants access; the presence of any
// such expression makes paths matching no expression unreadable.
package forbiddenre

import (
	"regexp"
	"strings"

	"github.com/viewvc/viewvc-sub000/pkg/vcauth"
	"github.com/viewvc/viewvc-sub000/pkg/vcauth/status"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

const name = "forbiddenre"

type rule struct {
	re      *regexp.Regexp
	negated bool
}

// Authorizer based on regular expressions
type Authorizer struct {
	rules []rule
}

var _ vclib.Authorizer = &Authorizer{}

// New builds a regexp authorizer. The username is not relevant.
func New(_ string, params vcauth.Params) (vclib.Authorizer, error) {
	a := &Authorizer{}
	for _, item := range params.List(name) {
		negated := strings.HasPrefix(item, "!")
		expr := item
		if negated {
			expr = item[1:]
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, status.ErrInvalidParam.Messagef("invalid forbiddenre expression %q", item).Wrap(err)
		}
		a.rules = append(a.rules, rule{re: re, negated: negated})
	}
	return a, nil
}

func (a *Authorizer) check(rootPath string) bool {
	allowed := true
	for _, r := range a.rules {
		if r.negated {
			allowed = false
			if r.re.MatchString(rootPath) {
				return true
			}
		} else if r.re.MatchString(rootPath) {
			return false
		}
	}
	return allowed
}

// CheckRootAccess matches the root name alone
func (a *Authorizer) CheckRootAccess(rootName string) bool {
	return a.check(rootName)
}

// CheckUniversalAccess grants access when no expression is configured
func (a *Authorizer) CheckUniversalAccess(string) vclib.Access {
	if len(a.rules) == 0 {
		return vclib.AccessGranted
	}
	return vclib.AccessUnknown
}

// CheckPathAccess matches "root/path", with a trailing slash for directories
func (a *Authorizer) CheckPathAccess(rootName string, parts []string, pathType vclib.ItemType, _ string) bool {
	rootPath := rootName + "/"
	if len(parts) > 0 {
		rootPath += vclib.JoinPath(parts)
		if pathType == vclib.Dir {
			rootPath += "/"
		}
	}
	return a.check(rootPath)
}

func init() {
	vcauth.Register(name, New)
}

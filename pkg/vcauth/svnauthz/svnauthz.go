// Package svnauthz enforces Subversion authz files.
//
// Parameters:
//   - authzfile: location of the authz file (required)
//   - force_username_case: "upper" or "lower" normalizes the username
//
// The authz file holds a [groups] section (members may be users, @groups or
// &aliases), an [aliases] section, and access sections named after a path
// ("[/trunk]") or a root and a path ("[calc:/trunk]"). Within access sections,
// keys are user specifications ("*", a username, "$authenticated",
// "$anonymous", "@group", "&alias", optionally inverted with "~") and values
// are permissions: only "r" matters here.
package svnauthz

import (
	"strings"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/spf13/afero"
	"github.com/viewvc/viewvc-sub000/pkg/vcauth"
	"github.com/viewvc/viewvc-sub000/pkg/vcauth/status"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
	"gopkg.in/ini.v1"
)

const name = "svnauthz"

// Authorizer applying an authz file
type Authorizer struct {
	cfg      *ini.File
	username string

	groups  map[string]bool
	aliases map[string]bool

	mu    sync.Mutex
	roots map[string]*rootRules
}

var _ vclib.Authorizer = &Authorizer{}

// rootRules holds the explicit access determinations for one root.
//
// A nil *rootRules means that no path of the root is readable.
type rootRules struct {
	paths    *iradix.Tree
	allowed  int
	denied   int
	hasSlash bool
}

// New reads the authz file from the local file system
func New(username string, params vcauth.Params) (vclib.Authorizer, error) {
	return NewWithFs(afero.NewOsFs(), username, params)
}

// NewWithFs reads the authz file from some file system
func NewWithFs(fs afero.Fs, username string, params vcauth.Params) (vclib.Authorizer, error) {
	authzFile := params["authzfile"]
	if authzFile == "" {
		return nil, status.ErrInvalidParam.Message("No authzfile configured")
	}
	exists, err := afero.Exists(fs, authzFile)
	if err != nil || !exists {
		return nil, status.ErrInvalidParam.Message("Configured authzfile file not found")
	}

	switch params["force_username_case"] {
	case "upper":
		username = strings.ToUpper(username)
	case "lower":
		username = strings.ToLower(username)
	case "":
	default:
		return nil, status.ErrInvalidParam.Message("Invalid value for force_username_case option")
	}

	data, err := afero.ReadFile(fs, authzFile)
	if err != nil {
		return nil, status.ErrAuthzFile.Wrap(err)
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:         "=",
		IgnoreInlineComment:        true,
		AllowPythonMultilineValues: true,
	}, data)
	if err != nil {
		return nil, status.ErrAuthzFile.Wrap(err)
	}

	a := &Authorizer{
		cfg:      cfg,
		username: username,
		roots:    make(map[string]*rootRules),
	}
	a.aliases = a.resolveAliases()
	a.groups = a.resolveGroups()
	return a, nil
}

func (a *Authorizer) anonymous() bool {
	return a.username == ""
}

func (a *Authorizer) resolveAliases() map[string]bool {
	aliases := make(map[string]bool)
	sec, err := a.cfg.GetSection("aliases")
	if err != nil {
		return aliases
	}
	for _, key := range sec.Keys() {
		if strings.TrimSpace(key.Value()) == a.username {
			aliases[key.Name()] = true
		}
	}
	return aliases
}

// resolveGroups finds the groups the user belongs to, possibly through nested groups.
// Groups may be defined in any order; recursion is guarded.
func (a *Authorizer) resolveGroups() map[string]bool {
	member := make(map[string]bool)
	sec, err := a.cfg.GetSection("groups")
	if err != nil {
		return member
	}
	visited := make(map[string]bool)

	var process func(group string) bool
	process = func(group string) bool {
		group = strings.TrimSpace(group)
		if member[group] {
			return true
		}
		if visited[group] || !sec.HasKey(group) {
			return false
		}
		visited[group] = true

		for _, entry := range strings.Split(sec.Key(group).Value(), ",") {
			entry = strings.TrimSpace(entry)
			switch {
			case entry == a.username && entry != "":
			case strings.HasPrefix(entry, "@") && process(entry[1:]):
			case strings.HasPrefix(entry, "&") && a.aliases[entry[1:]]:
			default:
				continue
			}
			member[group] = true
			return true
		}
		return false
	}

	for _, key := range sec.Keys() {
		process(key.Name())
	}
	return member
}

func (a *Authorizer) matches(userspec string) bool {
	if strings.HasPrefix(userspec, "~") {
		return !a.matches(userspec[1:])
	}
	switch {
	case userspec == "*":
		return true
	case userspec == "$authenticated":
		return !a.anonymous()
	case userspec == "$anonymous":
		return a.anonymous()
	case strings.HasPrefix(userspec, "@"):
		return a.groups[userspec[1:]]
	case strings.HasPrefix(userspec, "&"):
		return a.aliases[userspec[1:]]
	default:
		return !a.anonymous() && userspec == a.username
	}
}

// accessFor tells whether a section explicitly allows or denies read access to the user.
// The most permissive matching entry wins.
func (a *Authorizer) accessFor(sec *ini.Section) (allow, deny bool) {
	for _, key := range sec.Keys() {
		if !a.matches(strings.TrimSpace(key.Name())) {
			continue
		}
		allow = strings.Contains(key.Value(), "r")
		deny = !allow
		if allow {
			break
		}
	}
	return allow, deny
}

func normalizePath(pth string) string {
	if pth == "/" {
		return pth
	}
	return "/" + vclib.JoinPath(vclib.PathParts(pth))
}

// treeKey ends directories with a slash, so that "/a/b" is not taken for a prefix of "/a/bc"
func treeKey(pth string) []byte {
	if pth == "/" {
		return []byte(pth)
	}
	return []byte(pth + "/")
}

func (a *Authorizer) rulesFor(rootName string) *rootRules {
	a.mu.Lock()
	defer a.mu.Unlock()

	if rules, ok := a.roots[rootName]; ok {
		return rules
	}

	determinations := make(map[string]bool)
	record := func(sec *ini.Section, pth string) {
		allow, deny := a.accessFor(sec)
		if allow || deny {
			determinations[normalizePath(pth)] = allow
		}
	}

	// root-agnostic sections first, then those specific to this root override them
	var rootSections []*ini.Section
	for _, sec := range a.cfg.Sections() {
		secName := sec.Name()
		if secName == ini.DefaultSection || secName == "groups" || secName == "aliases" {
			continue
		}
		idx := strings.Index(secName, ":")
		if idx < 0 {
			record(sec, secName)
			continue
		}
		if secName[:idx] == rootName {
			rootSections = append(rootSections, sec)
		}
	}
	for _, sec := range rootSections {
		record(sec, sec.Name()[strings.Index(sec.Name(), ":")+1:])
	}

	rules := &rootRules{}
	txn := iradix.New().Txn()
	for pth, allow := range determinations {
		txn.Insert(treeKey(pth), allow)
		if allow {
			rules.allowed++
		} else {
			rules.denied++
		}
		if pth == "/" {
			rules.hasSlash = true
		}
	}
	rules.paths = txn.Commit()

	if rules.allowed == 0 {
		// no readable path: the root itself is not readable
		rules = nil
	}
	a.roots[rootName] = rules
	return rules
}

// CheckRootAccess grants access when at least one path of the root is readable
func (a *Authorizer) CheckRootAccess(rootName string) bool {
	return a.rulesFor(rootName) != nil
}

// CheckUniversalAccess tells whether access determinations are uniform for the root
func (a *Authorizer) CheckUniversalAccess(rootName string) vclib.Access {
	rules := a.rulesFor(rootName)
	switch {
	case rules == nil:
		return vclib.AccessDenied
	case rules.allowed > 0 && rules.denied > 0:
		return vclib.AccessUnknown
	case rules.denied > 0:
		return vclib.AccessDenied
	case rules.hasSlash:
		return vclib.AccessGranted
	default:
		return vclib.AccessUnknown
	}
}

// CheckPathAccess applies the determination of the closest path at or above the requested one
func (a *Authorizer) CheckPathAccess(rootName string, parts []string, _ vclib.ItemType, _ string) bool {
	rules := a.rulesFor(rootName)
	if rules == nil {
		return false
	}
	_, v, found := rules.paths.Root().LongestPrefix(treeKey(normalizePath("/" + vclib.JoinPath(parts))))
	if !found {
		return false
	}
	return v.(bool)
}

func init() {
	vcauth.Register(name, New)
}

// Package vcauth provides the authorizers deciding which paths of a root a user may read.
//
// Authorizer implementations register themselves under a name, and are
// built from that name, a username and string parameters taken from
// configuration:
//
//   import _ "github.com/viewvc/viewvc-sub000/pkg/vcauth/svnauthz"
//
//   auth, err := vcauth.New("svnauthz", "harry", vcauth.Params{"authzfile": "/etc/svn/authz"})
package vcauth

import (
	"sort"
	"sync"

	"github.com/viewvc/viewvc-sub000/pkg/vcauth/status"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

// Params configure an authorizer
type Params map[string]string

// Factory builds an authorizer for a user. An empty username designates an anonymous user.
type Factory func(username string, params Params) (vclib.Authorizer, error)

var (
	mx        sync.RWMutex
	factories = map[string]Factory{}
)

// Register an authorizer factory
func Register(name string, factory Factory) {
	mx.Lock()
	defer mx.Unlock()
	factories[name] = factory
}

// Registered lists the names of registered authorizers
func Registered() []string {
	mx.RLock()
	defer mx.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds a registered authorizer. An empty name yields a nil authorizer, i.e. no access control.
func New(name, username string, params Params) (vclib.Authorizer, error) {
	if name == "" {
		return nil, nil
	}
	mx.RLock()
	factory, ok := factories[name]
	mx.RUnlock()
	if !ok {
		return nil, status.ErrUnknownAuthorizer.Messagef("unknown authorizer %q", name)
	}
	return factory(username, params)
}

// Permissive grants read access to everything
type Permissive struct{}

var _ vclib.Authorizer = Permissive{}

// CheckRootAccess always grants access
func (Permissive) CheckRootAccess(string) bool { return true }

// CheckUniversalAccess always grants access
func (Permissive) CheckUniversalAccess(string) vclib.Access { return vclib.AccessGranted }

// CheckPathAccess always grants access
func (Permissive) CheckPathAccess(string, []string, vclib.ItemType, string) bool { return true }

func init() {
	Register("permissive", func(string, Params) (vclib.Authorizer, error) {
		return Permissive{}, nil
	})
}

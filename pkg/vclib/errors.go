package vclib

import (
	"fmt"

	"github.com/viewvc/viewvc-sub000/pkg/errors"
	"github.com/viewvc/viewvc-sub000/pkg/vclib/status"
)

// ItemNotFound builds an error for a path which does not exist, or may not be read
func ItemNotFound(parts []string) error {
	return status.ErrItemNotFound.Message(JoinPath(parts))
}

// InvalidRevision builds an error for a revision which cannot be resolved
func InvalidRevision(rev string) error {
	if rev == "" {
		return status.ErrInvalidRevision.Message("Invalid revision")
	}
	return status.ErrInvalidRevision.Message("Invalid revision " + rev)
}

// Unsupported builds an error for an operation a backend does not implement
func Unsupported(op string) error {
	return status.ErrUnsupportedFeature.Message(op + " is not supported by this repository")
}

// ReposNotFound builds an error for a root which is not a repository
func ReposNotFound(root string, err error) error {
	e := status.ErrReposNotFound.Messagef("repository %q not found", root)
	if err != nil {
		return e.Wrap(err)
	}
	return e
}

// Errorf builds a generic version control error
func Errorf(format string, args ...interface{}) error {
	return status.ErrVersionControl.Message(fmt.Sprintf(format, args...))
}

// IsNotFound tells whether an error reports a missing (or unreadable) item
func IsNotFound(err error) bool {
	return errors.Is(err, status.ErrItemNotFound)
}

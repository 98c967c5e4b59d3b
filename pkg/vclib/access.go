package vclib

import "context"

// CheckRootAccess tells whether the user associated to the repository authorizer may read the repository
func CheckRootAccess(repo Repository) bool {
	auth := repo.Authorizer()
	if auth == nil {
		return true
	}
	return auth.CheckRootAccess(repo.Name())
}

// CheckPathAccess tells whether the user associated to the repository authorizer may read a path.
//
// When pathType is Unknown, the path type is looked up first: a path which cannot be
// looked up is not readable.
func CheckPathAccess(ctx context.Context, repo Repository, parts []string, pathType ItemType, rev string) bool {
	auth := repo.Authorizer()
	if auth == nil {
		return true
	}
	if pathType == Unknown {
		var err error
		pathType, err = repo.ItemType(ctx, parts, rev)
		if err != nil {
			return false
		}
	}
	return auth.CheckPathAccess(repo.Name(), parts, pathType, rev)
}

// UniversalAuthorizer returns the authorizer a repository should keep after opening:
// nil when every path of the root is readable anyway.
func UniversalAuthorizer(rootName string, auth Authorizer) Authorizer {
	if auth == nil {
		return nil
	}
	if auth.CheckUniversalAccess(rootName) == AccessGranted {
		return nil
	}
	return auth
}

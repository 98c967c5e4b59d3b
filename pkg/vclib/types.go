package vclib

import (
	"strings"
	"time"
)

// ItemType tells files from directories
type ItemType uint8

const (
	// Unknown item type, only used to request a lookup when checking access
	Unknown ItemType = iota
	// File is a versioned file
	File
	// Dir is a versioned directory
	Dir
)

func (t ItemType) String() string {
	switch t {
	case File:
		return "file"
	case Dir:
		return "dir"
	default:
		return "unknown"
	}
}

// RootType identifies a backend
type RootType string

const (
	// CVS roots are directories of RCS files
	CVS RootType = "cvs"
	// SVN roots are Subversion repositories, local or remote
	SVN RootType = "svn"
	// Git roots are git repositories
	Git RootType = "git"
)

// DiffType selects the output format of RawDiff
type DiffType int

const (
	// Unified diff (diff -u)
	Unified DiffType = 1
	// Context diff (diff -c)
	Context DiffType = 2
	// SideBySide diff (diff --side-by-side)
	SideBySide DiffType = 3
)

// Action qualifies how a path changed in a revision
type Action uint8

const (
	// Added path
	Added Action = iota + 1
	// Deleted path
	Deleted
	// Replaced path: deleted then added again within the same revision
	Replaced
	// Modified path
	Modified
)

func (a Action) String() string {
	actionStrings := map[Action]string{
		Added:    "added",
		Deleted:  "deleted",
		Replaced: "replaced",
		Modified: "modified",
	}
	return actionStrings[a]
}

// LogSort orders the revisions returned by ItemLog
type LogSort int

const (
	// SortByDefault lets the backend pick its natural order
	SortByDefault LogSort = iota
	// SortByDate sorts newest first by date
	SortByDate
	// SortByRev sorts newest first by revision number
	SortByRev
)

// Access is the tri-state answer of an authorizer about universal read access
type Access int

const (
	// AccessUnknown means that access must be checked path by path
	AccessUnknown Access = iota
	// AccessGranted means that every path of the root is readable
	AccessGranted
	// AccessDenied means that no path of the root is readable
	AccessDenied
)

// DirEntry is one child of a directory.
//
// ListDir only fills Name, Kind and Errors. DirLogs enriches entries in
// place with the revision which last changed them.
type DirEntry struct {
	Name   string   `json:"name" yaml:"name"`
	Kind   ItemType `json:"kind" yaml:"kind"`
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`

	Rev      string     `json:"rev,omitempty" yaml:"rev,omitempty"`
	Date     *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
	Author   string     `json:"author,omitempty" yaml:"author,omitempty"`
	Log      string     `json:"log,omitempty" yaml:"log,omitempty"`
	Size     int64      `json:"size,omitempty" yaml:"size,omitempty"`
	LockInfo string     `json:"lockinfo,omitempty" yaml:"lockinfo,omitempty"`

	// CVS only
	Dead    bool `json:"dead,omitempty" yaml:"dead,omitempty"`
	InAttic bool `json:"in_attic,omitempty" yaml:"in_attic,omitempty"`
	// Absent is set by DirLogs when the entry has no revision on the selected tag
	Absent bool `json:"absent,omitempty" yaml:"absent,omitempty"`
	// LogFile is the newest file of a subdirectory, which log is reported for the subdirectory
	LogFile string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
}

// Tag is a CVS symbolic name, attached to a revision or a branch
type Tag struct {
	Name     string `json:"name" yaml:"name"`
	Number   []int  `json:"number,omitempty" yaml:"number,omitempty"`
	IsBranch bool   `json:"is_branch" yaml:"is_branch"`

	// CoRev is the revision checked out by this tag: the tagged revision, or the tip of the branch
	CoRev *Revision `json:"-" yaml:"-"`
	// BranchRev is the first revision on a branch
	BranchRev *Revision `json:"-" yaml:"-"`
	// Aliases are other tags with the same number
	Aliases []*Tag `json:"-" yaml:"-"`
}

// Revision describes one historical state of a path.
//
// Date is nil and Author, Log are empty when redacted by authorization rules.
type Revision struct {
	// Number is the numeric form of the revision: dotted components for CVS, a single
	// revision number for Subversion, nil for Git
	Number []int `json:"number,omitempty" yaml:"number,omitempty"`
	// ID is the canonical revision identifier
	ID       string     `json:"id" yaml:"id"`
	Date     *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
	Author   string     `json:"author,omitempty" yaml:"author,omitempty"`
	Log      string     `json:"log,omitempty" yaml:"log,omitempty"`
	Size     int64      `json:"size,omitempty" yaml:"size,omitempty"`
	LockInfo string     `json:"lockinfo,omitempty" yaml:"lockinfo,omitempty"`
	// Changed summarizes changed lines, e.g. "+3 -1"
	Changed string `json:"changed,omitempty" yaml:"changed,omitempty"`

	// CVS
	Prev         *Revision `json:"-" yaml:"-"`
	Next         *Revision `json:"-" yaml:"-"`
	Parent       *Revision `json:"-" yaml:"-"`
	Undead       *Revision `json:"-" yaml:"-"`
	Dead         bool      `json:"dead,omitempty" yaml:"dead,omitempty"`
	Tags         []*Tag    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Branches     []*Tag    `json:"branches,omitempty" yaml:"branches,omitempty"`
	BranchPoints []*Tag    `json:"branch_points,omitempty" yaml:"branch_points,omitempty"`
	BranchNumber []int     `json:"branch_number,omitempty" yaml:"branch_number,omitempty"`

	// Subversion
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
	CopyPath string `json:"copy_path,omitempty" yaml:"copy_path,omitempty"`
	CopyRev  string `json:"copy_rev,omitempty" yaml:"copy_rev,omitempty"`

	// Git
	Parents []string `json:"parents,omitempty" yaml:"parents,omitempty"`

	Props map[string]string `json:"props,omitempty" yaml:"props,omitempty"`
}

// ChangedPath describes how one path changed in a revision.
//
// BasePath and BaseRev are set only when the change is a copy, or a modification
// with a known predecessor.
type ChangedPath struct {
	Path         []string `json:"path" yaml:"path"`
	Rev          string   `json:"rev" yaml:"rev"`
	PathType     ItemType `json:"pathtype" yaml:"pathtype"`
	BasePath     []string `json:"base_path,omitempty" yaml:"base_path,omitempty"`
	BaseRev      string   `json:"base_rev,omitempty" yaml:"base_rev,omitempty"`
	Action       Action   `json:"action" yaml:"action"`
	Copied       bool     `json:"copied" yaml:"copied"`
	TextChanged  bool     `json:"text_changed" yaml:"text_changed"`
	PropsChanged bool     `json:"props_changed" yaml:"props_changed"`
}

// Annotation tells which revision last touched a line of a file
type Annotation struct {
	// Text of the line, when requested
	Text       *string    `json:"text,omitempty" yaml:"text,omitempty"`
	LineNumber int        `json:"line" yaml:"line"`
	Rev        string     `json:"rev" yaml:"rev"`
	PrevRev    string     `json:"prev_rev,omitempty" yaml:"prev_rev,omitempty"`
	Author     string     `json:"author,omitempty" yaml:"author,omitempty"`
	Date       *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
}

// RevInfo holds the metadata of a revision, and possibly its changed paths
type RevInfo struct {
	Date    *time.Time        `json:"date,omitempty" yaml:"date,omitempty"`
	Author  string            `json:"author,omitempty" yaml:"author,omitempty"`
	Log     string            `json:"log,omitempty" yaml:"log,omitempty"`
	Props   map[string]string `json:"props,omitempty" yaml:"props,omitempty"`
	Changes []*ChangedPath    `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// OpenOptions tune OpenFile
type OpenOptions struct {
	// OldKeywords checks CVS files out with keywords left unexpanded (co -ko)
	OldKeywords bool
}

// ListOptions tune ListDir and DirLogs
type ListOptions struct {
	// CVSSubdirs retrieves the newest log of each subdirectory (CVS)
	CVSSubdirs bool
	// CVSTags, when not nil, receives the names of the tags found on the directory files (CVS DirLogs)
	CVSTags *[]string
	// CVSBranches, when not nil, receives the names of the branches found on the directory files (CVS DirLogs)
	CVSBranches *[]string
}

// LogOptions tune ItemLog
type LogOptions struct {
	// SVNCrossCopies follows the history of a path across copies
	SVNCrossCopies bool
	// SVNShowAllDirLogs includes revisions changing only children of a directory
	SVNShowAllDirLogs bool
	// SVNLatestLog stops after the most recent revision
	SVNLatestLog bool
	// GitLatestLog stops after the most recent commit
	GitLatestLog bool
	// CVSPruneDead leaves dead revisions out of the log (CVS)
	CVSPruneDead bool
	// CVSTags, when not nil, receives every tag of the file, by name
	CVSTags map[string]*Tag
}

// DiffOptions tune RawDiff
type DiffOptions struct {
	// Context lines. Nil means the diff default; a negative value shows whole files.
	Context *int
	// FunctionNames shows the enclosing function in hunk headers (diff -p)
	FunctionNames bool
	// IgnoreWhite ignores white space changes (diff -w)
	IgnoreWhite bool
	// OldKeywords keeps CVS keywords unexpanded (-ko) rather than collapsed (-kk)
	OldKeywords bool
}

// PathParts splits a slash separated path into path parts, dropping empty components
func PathParts(pth string) []string {
	var parts []string
	for _, p := range strings.Split(pth, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// JoinPath joins path parts with slashes
func JoinPath(parts []string) string {
	return strings.Join(parts, "/")
}

package ccvs

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

// Artificial tags
const (
	// MainTag designates the default branch: the trunk, or the principal branch when set
	MainTag = "MAIN"
	// HeadTag designates the latest revision on the default branch
	HeadTag = "HEAD"
)

func parseNumber(s string) ([]int, error) {
	parts := strings.Split(s, ".")
	number := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, vclib.InvalidRevision(s)
		}
		number = append(number, n)
	}
	return number, nil
}

// revisionNumber parses a revision number, which has an even number of components
func revisionNumber(s string) ([]int, error) {
	number, err := parseNumber(s)
	if err != nil {
		return nil, err
	}
	if len(number)%2 != 0 {
		return nil, vclib.InvalidRevision(s)
	}
	return number, nil
}

// tagNumber parses a revision or branch number.
//
// Magic branch numbers (1.2.0.4) are normalized to their branch number (1.2.4).
// The empty string and single numbers yield an empty number, i.e. the trunk.
func tagNumber(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	number, err := parseNumber(s)
	if err != nil {
		return nil, err
	}
	l := len(number)
	if l == 1 {
		return []int{}, nil
	}
	if l > 2 && l%2 == 0 && number[l-2] == 0 {
		number = append(number[:l-2], number[l-1])
	}
	return number, nil
}

func isBranchNumber(number []int) bool {
	return len(number) == 0 || len(number)%2 == 1
}

func newRevision(rev string, date time.Time, author string, dead bool) (*vclib.Revision, error) {
	number, err := revisionNumber(rev)
	if err != nil {
		return nil, err
	}
	r := &vclib.Revision{
		Number: number,
		ID:     rev,
		Author: author,
		Dead:   dead,
	}
	if !date.IsZero() {
		d := date
		r.Date = &d
	}
	return r, nil
}

func newTag(name, rev string) (*vclib.Tag, error) {
	number, err := tagNumber(rev)
	if err != nil {
		return nil, err
	}
	return &vclib.Tag{Name: name, Number: number, IsBranch: isBranchNumber(number)}, nil
}

// cmpNumbers compares revision numbers component by component. A number is
// smaller than any longer number it prefixes.
func cmpNumbers(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func equalNumbers(a, b []int) bool {
	return cmpNumbers(a, b) == 0
}

// hasPrefix tells whether the number starts with prefix
func hasPrefix(number, prefix []int) bool {
	return len(prefix) <= len(number) && equalNumbers(number[:len(prefix)], prefix)
}

func numberKey(number []int) string {
	parts := make([]string, 0, len(number))
	for _, n := range number {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ".")
}

func sortRevisions(revs []*vclib.Revision) {
	sort.SliceStable(revs, func(i, j int) bool {
		return cmpNumbers(revs[i].Number, revs[j].Number) < 0
	})
}

func linkAliases(tags []*vclib.Tag) {
	for _, tag := range tags {
		tag.Aliases = tags
	}
}

// matchRevsTags links revisions with each other and with tags.
//
// On revisions, it sets Prev and Next (on the same branch), Parent (the
// branch point), Undead (the closest non-dead ancestor, or the revision
// itself), Tags, BranchPoints (branches starting from the revision),
// Branches and BranchNumber. On tags, it sets CoRev, BranchRev and Aliases.
//
// Revisions are sorted in place by number.
func matchRevsTags(revs []*vclib.Revision, tags []*vclib.Tag) {
	branchTags := make(map[string][]*vclib.Tag)
	revTags := make(map[string][]*vclib.Tag)
	branchPoints := make(map[string][]*vclib.Tag)

	for _, tag := range tags {
		tag.CoRev = nil
		tag.BranchRev = nil
		if tag.IsBranch {
			if len(tag.Number) > 0 {
				key := numberKey(tag.Number[:len(tag.Number)-1])
				branchPoints[key] = append(branchPoints[key], tag)
			}
			key := numberKey(tag.Number)
			branchTags[key] = append(branchTags[key], tag)
		} else {
			key := numberKey(tag.Number)
			revTags[key] = append(revTags[key], tag)
		}
	}
	for _, group := range branchTags {
		linkAliases(group)
	}
	for _, group := range revTags {
		linkAliases(group)
	}

	sortRevisions(revs)

	// most recent revision seen, by branch depth
	var history []*vclib.Revision

	for _, rev := range revs {
		depth := len(rev.Number)/2 - 1

		rev.Prev, rev.Next = nil, nil
		if depth < len(history) {
			prev := history[depth]
			if prev != nil && (depth == 0 || equalNumbers(rev.Number[:len(rev.Number)-1], prev.Number[:len(prev.Number)-1])) {
				rev.Prev = prev
				prev.Next = rev
			}
		}

		rev.Parent = nil
		if depth > 0 && depth <= len(history) {
			parent := history[depth-1]
			if parent != nil && equalNumbers(parent.Number, rev.Number[:len(rev.Number)-2]) {
				rev.Parent = parent
			}
		}

		if rev.Dead {
			prev := rev.Prev
			if prev == nil {
				prev = rev.Parent
			}
			rev.Undead = nil
			if prev != nil {
				rev.Undead = prev.Undead
			}
		} else {
			rev.Undead = rev
		}

		key := numberKey(rev.Number)
		rev.Tags = revTags[key]
		rev.BranchPoints = branchPoints[key]

		if rev.Prev != nil {
			rev.Branches = rev.Prev.Branches
			rev.BranchNumber = rev.Prev.BranchNumber
		} else {
			rev.BranchNumber = []int{}
			if depth > 0 {
				rev.BranchNumber = rev.Number[:len(rev.Number)-1]
			}
			rev.Branches = branchTags[numberKey(rev.BranchNumber)]
		}

		for _, tag := range rev.Tags {
			tag.CoRev = rev
		}
		for _, tag := range rev.BranchPoints {
			tag.CoRev = rev
			tag.BranchRev = rev
		}
		// the tip of the branch wins
		for _, branch := range rev.Branches {
			branch.CoRev = rev
		}

		for len(history) <= depth {
			history = append(history, nil)
		}
		history[depth] = rev
	}
}

// addTag creates a non-branch tag pointing at a revision
func addTag(name string, rev *vclib.Revision) *vclib.Tag {
	tag := &vclib.Tag{Name: name, Number: []int{}, CoRev: rev}
	if rev != nil {
		tag.Number = rev.Number
		rev.Tags = append(rev.Tags, tag)
		linkAliases(rev.Tags)
	} else {
		tag.Aliases = []*vclib.Tag{tag}
	}
	return tag
}

func withoutTag(tags []*vclib.Tag, tag *vclib.Tag) []*vclib.Tag {
	idx := -1
	for i, t := range tags {
		if t == tag {
			idx = i
			break
		}
	}
	if idx < 0 {
		return tags
	}
	kept := make([]*vclib.Tag, 0, len(tags)-1)
	kept = append(kept, tags[:idx]...)
	return append(kept, tags[idx+1:]...)
}

// removeTag undoes the associations of a tag made by matchRevsTags
func removeTag(revs []*vclib.Revision, tags []*vclib.Tag, tag *vclib.Tag) {
	for _, rev := range revs {
		rev.Tags = withoutTag(rev.Tags, tag)
		rev.Branches = withoutTag(rev.Branches, tag)
		rev.BranchPoints = withoutTag(rev.BranchPoints, tag)
	}
	for _, t := range tags {
		t.Aliases = withoutTag(t.Aliases, tag)
	}
}

// fileLog links revisions and tags, adds the artificial MAIN and HEAD tags,
// and returns the revisions visible from filter, along with all tags by name.
//
// The filter is empty, a revision number, a branch number or a tag name.
// For a revision tag, the tagged revision and its ancestors are returned. For
// a branch, the revisions on the branch, its branch point and their ancestors
// are returned.
func fileLog(revs []*vclib.Revision, tagRevs, lockInfo map[string]string, defaultBranch, filter string) ([]*vclib.Revision, map[string]*vclib.Tag, error) {
	names := make([]string, 0, len(tagRevs)+1)
	for name := range tagRevs {
		if name != MainTag {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	tags := make(map[string]*vclib.Tag, len(names)+2)
	all := make([]*vclib.Tag, 0, len(names)+2)

	// MAIN is the default branch: the vendor branch after "cvs import", the trunk otherwise
	mainTag, err := newTag(MainTag, defaultBranch)
	if err != nil {
		return nil, nil, err
	}
	tags[MainTag] = mainTag
	all = append(all, mainTag)

	for _, name := range names {
		tag, err := newTag(name, tagRevs[name])
		if err != nil {
			// ignore garbled symbols
			continue
		}
		tags[name] = tag
		all = append(all, tag)
	}

	var viewTag *vclib.Tag
	if filter != "" {
		if t, err := newTag("", filter); err == nil {
			viewTag = t
			all = append(all, viewTag)
		}
	}

	matchRevsTags(revs, all)

	for _, rev := range revs {
		rev.LockInfo = lockInfo[rev.ID]
	}

	// HEAD is what co checks out by default, not the "head" field of the RCS file
	tags[HeadTag] = addTag(HeadTag, mainTag.CoRev)

	if filter == "" {
		return revs, tags, nil
	}

	if viewTag == nil {
		t, ok := tags[filter]
		if !ok {
			return nil, nil, vclib.InvalidRevision(filter)
		}
		viewTag = t
	}

	var branch []int
	switch {
	case viewTag.IsBranch:
		branch = viewTag.Number
	case len(viewTag.Number) > 2:
		branch = viewTag.Number[:len(viewTag.Number)-1]
	default:
		branch = []int{}
	}

	filtered := make([]*vclib.Revision, 0, len(revs))
	for _, rev := range revs {
		if equalNumbers(rev.Number, viewTag.Number) ||
			equalNumbers(rev.BranchNumber, viewTag.Number) ||
			(cmpNumbers(rev.Number, viewTag.Number) < 0 && hasPrefix(branch, rev.BranchNumber)) {
			filtered = append(filtered, rev)
		}
	}

	if viewTag.Name == "" {
		removeTag(revs, all, viewTag)
	}
	return filtered, tags, nil
}

func sortLog(revs []*vclib.Revision, sortBy vclib.LogSort) {
	switch sortBy {
	case vclib.SortByDate:
		sort.SliceStable(revs, func(i, j int) bool {
			di, dj := revs[i].Date, revs[j].Date
			if di != nil && dj != nil && !di.Equal(*dj) {
				return di.After(*dj)
			}
			return cmpNumbers(revs[i].Number, revs[j].Number) > 0
		})
	case vclib.SortByRev:
		sort.SliceStable(revs, func(i, j int) bool {
			return cmpNumbers(revs[i].Number, revs[j].Number) > 0
		})
	}
}

func pruneDead(revs []*vclib.Revision) []*vclib.Revision {
	kept := revs[:0:0]
	for _, rev := range revs {
		if !rev.Dead {
			kept = append(kept, rev)
		}
	}
	return kept
}

// tipRevision is the youngest revision visible from filter, i.e. the last one in revision order
func tipRevision(revs []*vclib.Revision) *vclib.Revision {
	if len(revs) == 0 {
		return nil
	}
	return revs[len(revs)-1]
}

package vclib

// PageRevisions returns at most limit revisions, skipping the first ones.
// A zero limit means no limit.
func PageRevisions(revs []*Revision, first, limit int) []*Revision {
	if first < 0 {
		first = 0
	}
	if len(revs) < first {
		return []*Revision{}
	}
	revs = revs[first:]
	if limit > 0 && len(revs) > limit {
		revs = revs[:limit]
	}
	return revs
}

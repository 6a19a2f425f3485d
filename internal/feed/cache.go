package feed

// Page is one loaded page of the feed.
type Page struct {
	Records    []EnrichedPost
	TotalCount int
	PageSize   int
	PageIndex  int // 1-based
}

// pageCache holds the current page and the per-post image toggles. Both
// are replaced rather than mutated so published snapshots stay valid.
type pageCache struct {
	page     Page
	expanded map[string]bool
}

func (c *pageCache) replace(p Page) {
	c.page = p
	c.expanded = map[string]bool{}
}

func (c *pageCache) setRecords(records []EnrichedPost) {
	c.page.Records = records
}

// toggle flips the image flag of a post on the current page. It reports
// false for unknown ids.
func (c *pageCache) toggle(postID string) bool {
	if !c.contains(postID) {
		return false
	}
	next := make(map[string]bool, len(c.expanded)+1)
	for id, v := range c.expanded {
		next[id] = v
	}
	if next[postID] {
		delete(next, postID)
	} else {
		next[postID] = true
	}
	c.expanded = next
	return true
}

func (c *pageCache) contains(postID string) bool {
	for _, r := range c.page.Records {
		if r.ID == postID {
			return true
		}
	}
	return false
}

package transcript

import "strings"

// SegmentBounds returns the playback span of entries[i] in milliseconds. The
// span ends where the next entry starts; the last entry has no end (0).
func SegmentBounds(entries []Entry, i int) (start, end int64, ok bool) {
	if i < 0 || i >= len(entries) {
		return 0, 0, false
	}
	start = entries[i].Timing
	if i+1 < len(entries) {
		end = entries[i+1].Timing
		if end < start {
			end = start
		}
	}
	return start, end, true
}

// Search returns the indices of entries whose speaker or content contains
// query, case-insensitively. A blank query matches nothing.
func Search(entries []Entry, query string) []int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var hits []int
	for i, e := range entries {
		if strings.Contains(strings.ToLower(e.Content), q) || strings.Contains(strings.ToLower(e.Speaker), q) {
			hits = append(hits, i)
		}
	}
	return hits
}

// Cursor walks search results in a ring.
type Cursor struct {
	results []int
	current int
}

func NewCursor(results []int) *Cursor {
	c := &Cursor{results: results, current: -1}
	if len(results) > 0 {
		c.current = 0
	}
	return c
}

// Current returns the entry index under the cursor, or -1.
func (c *Cursor) Current() int {
	if c.current < 0 {
		return -1
	}
	return c.results[c.current]
}

func (c *Cursor) Next() int {
	if len(c.results) == 0 {
		return -1
	}
	c.current = (c.current + 1) % len(c.results)
	return c.results[c.current]
}

func (c *Cursor) Prev() int {
	if len(c.results) == 0 {
		return -1
	}
	if c.current <= 0 {
		c.current = len(c.results) - 1
	} else {
		c.current--
	}
	return c.results[c.current]
}

func (c *Cursor) Len() int {
	return len(c.results)
}

// Package scenes provides the views of the alert browser.
package scenes

// cursor tracks the selected row and the first visible row of a list.
type cursor struct {
	pos     int
	offset  int
	maxRows int
}

func newCursor() cursor {
	return cursor{maxRows: 10}
}

func (c *cursor) resize(height, reserved int) {
	c.maxRows = max(5, height-reserved)
	c.follow()
}

func (c *cursor) up() {
	if c.pos > 0 {
		c.pos--
	}
	c.follow()
}

func (c *cursor) down(n int) {
	if c.pos < n-1 {
		c.pos++
	}
	c.follow()
}

func (c *cursor) pageUp() {
	c.pos = max(0, c.pos-c.maxRows)
	c.follow()
}

func (c *cursor) pageDown(n int) {
	c.pos = max(0, min(n-1, c.pos+c.maxRows))
	c.follow()
}

func (c *cursor) home() {
	c.pos, c.offset = 0, 0
}

func (c *cursor) end(n int) {
	c.pos = max(0, n-1)
	c.follow()
}

// clamp keeps the cursor inside a list of n rows.
func (c *cursor) clamp(n int) {
	if c.pos >= n {
		c.pos = max(0, n-1)
	}
	c.follow()
}

// follow scrolls so the cursor row is visible.
func (c *cursor) follow() {
	if c.pos < c.offset {
		c.offset = c.pos
	}
	if c.pos >= c.offset+c.maxRows {
		c.offset = c.pos - c.maxRows + 1
	}
}

// window returns the visible range [start, end) of a list of n rows.
func (c *cursor) window(n int) (int, int) {
	start := min(c.offset, n)
	return start, min(start+c.maxRows, n)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

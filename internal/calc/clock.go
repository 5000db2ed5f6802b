package calc

import (
	"regexp"
	"strconv"
	"sync"
	"time"
)

// Clock anchors the `current_*` keyword tags to one instant that is
// refreshed at most once per ttl, so every evaluation inside that window
// sees the same "now".  Safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	loc     *time.Location
	ttl     time.Duration
	now     func() time.Time
	anchor  time.Time
	expires time.Time
}

// NewClock returns a clock in loc with the given anchor lifetime.
func NewClock(loc *time.Location, ttl time.Duration) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Clock{loc: loc, ttl: ttl, now: time.Now}
}

// FixedClock always answers t.  Tests and previews use it.
func FixedClock(t time.Time) *Clock {
	return &Clock{loc: t.Location(), ttl: time.Hour, now: func() time.Time { return t }}
}

// Now returns the anchored instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.now()
	if c.anchor.IsZero() || !n.Before(c.expires) {
		c.anchor = n.In(c.loc)
		c.expires = n.Add(c.ttl)
	}
	return c.anchor
}

// Anchor is the unix second of the current anchor; it keys caches.
func (c *Clock) Anchor() int64 { return c.Now().Unix() }

type keyword struct {
	count int
	unit  string
}

var keywordRe = regexp.MustCompile(`^(?:([-+]?\d+)_)?([a-z_]+)$`)

var keywordUnits = map[string]bool{
	"current_date": true, "current_day": true, "current_week": true,
	"current_month": true, "current_year": true,
	"day": true, "days": true, "week": true, "weeks": true,
	"month": true, "months": true, "year": true, "years": true,
}

func parseKeyword(s string) (keyword, bool) {
	m := keywordRe.FindStringSubmatch(s)
	if m == nil || !keywordUnits[m[2]] {
		return keyword{}, false
	}
	k := keyword{count: 1, unit: m[2]}
	if m[1] != "" {
		k.count, _ = strconv.Atoi(m[1])
	}
	if k.count != 1 && len(k.unit) > 8 && k.unit[:8] == "current_" {
		return keyword{}, false
	}
	return k, true
}

// Keyword resolves a `#` tag body to a number: a unix timestamp for the
// current_* tags, or a span in seconds for the n_unit tags.  Spans are a
// calendar add against the epoch, so 3_months is 90 days.
func (c *Clock) Keyword(name string) (float64, bool) {
	k, ok := parseKeyword(name)
	if !ok {
		return 0, false
	}
	now := c.Now()
	y, mo, d := now.Date()
	midnight := time.Date(y, mo, d, 0, 0, 0, 0, c.loc)

	switch k.unit {
	case "current_date":
		return float64(now.Unix()), true
	case "current_day":
		return float64(midnight.Unix()), true
	case "current_week":
		offset := (int(now.Weekday()) + 6) % 7 // Monday = 0
		return float64(midnight.AddDate(0, 0, -offset).Unix()), true
	case "current_month":
		return float64(time.Date(y, mo, 1, 0, 0, 0, 0, c.loc).Unix()), true
	case "current_year":
		return float64(time.Date(y, 1, 1, 0, 0, 0, 0, c.loc).Unix()), true
	}

	epoch := time.Unix(0, 0).UTC()
	var t time.Time
	switch k.unit {
	case "day", "days":
		t = epoch.AddDate(0, 0, k.count)
	case "week", "weeks":
		t = epoch.AddDate(0, 0, 7*k.count)
	case "month", "months":
		t = epoch.AddDate(0, k.count, 0)
	case "year", "years":
		t = epoch.AddDate(k.count, 0, 0)
	}
	return float64(t.Unix()), true
}

// KeywordText renders a keyword for string templates: the year or month
// name for current_year and current_month, a unix timestamp otherwise.
func (c *Clock) KeywordText(name string) (string, bool) {
	k, ok := parseKeyword(name)
	if !ok {
		return "", false
	}
	switch k.unit {
	case "current_year":
		return strconv.Itoa(c.Now().Year()), true
	case "current_month":
		return c.Now().Month().String(), true
	}
	v, _ := c.Keyword(name)
	return strconv.FormatInt(int64(v), 10), true
}

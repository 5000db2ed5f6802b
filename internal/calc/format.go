package calc

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yanizio/participants/internal/locale"
)

// Format is a normalized format tag.  A trailing `_N` precision suffix is
// split off: `round_2` becomes {Name: "round_n", Precision: 2}.
type Format struct {
	Name      string
	Precision int // -1 when the tag carries none
}

// Format names.
const (
	FmtUnformatted = "unformatted"
	FmtAutoNumeric = "auto_numeric"
	FmtRound       = "round_n"
	FmtInteger     = "integer"
	FmtAverage     = "average"
	FmtAverageN    = "average_n"
	FmtCurrency    = "currency"
	FmtDate        = "date"
)

// Seconds per duration unit.  Months and years are the fixed 30 and 365
// day spans, not calendar lengths.
const (
	secondsPerDay   = 86400
	secondsPerWeek  = 7 * secondsPerDay
	secondsPerMonth = 30 * secondsPerDay
	secondsPerYear  = 365 * secondsPerDay
)

var durationUnits = map[string]float64{
	"days":   secondsPerDay,
	"weeks":  secondsPerWeek,
	"months": secondsPerMonth,
	"years":  secondsPerYear,
}

// datePartLayouts render one part of a timestamp.  day_of_year and week
// are computed, not laid out.
var datePartLayouts = map[string]string{
	"year":         "2006",
	"month":        "January",
	"day":          "2",
	"day_of_month": "2",
	"day_of_week":  "Monday",
	"day_month":    "2 January",
	"month_day":    "January 2",
	"day_of_year":  "",
	"week":         "",
}

var precisionRe = regexp.MustCompile(`^([a-z_]+?)_(\d+)$`)

// ParseFormat normalizes a format tag body (without `?`).
func ParseFormat(tag string) Format {
	tag = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(tag, "?")))
	if tag == "" {
		return Format{Name: FmtUnformatted, Precision: -1}
	}
	if m := precisionRe.FindStringSubmatch(tag); m != nil {
		n, _ := strconv.Atoi(m[2])
		return Format{Name: m[1] + "_n", Precision: n}
	}
	if tag == "round" {
		return Format{Name: FmtRound, Precision: 0}
	}
	return Format{Name: tag, Precision: -1}
}

// IsDateFormat reports a format that reads the value as a timestamp.
func IsDateFormat(name string) bool {
	if name == FmtDate {
		return true
	}
	_, ok := datePartLayouts[name]
	return ok
}

// IsDisplayOnlyFormat reports whether the format is applied only when
// rendering, leaving the stored value unformatted.  Currency and date
// formats on numeric fields are display-only; arithmetic formats are baked
// into the stored value.
func IsDisplayOnlyFormat(name string, numericField bool) bool {
	return numericField && (name == FmtCurrency || IsDateFormat(name))
}

// apply renders v under f.  sumCount feeds the averaging formats.
func (f Format) apply(v float64, sumCount int, numericField bool, loc *locale.Formatter) string {
	switch f.Name {
	case FmtRound:
		return fixed(v, f.Precision)
	case FmtInteger:
		return strconv.FormatFloat(math.Trunc(v), 'f', 0, 64)
	case FmtAverage, FmtAverageN:
		if sumCount > 1 {
			v /= float64(sumCount)
		}
		if f.Name == FmtAverageN {
			return fixed(v, f.Precision)
		}
		return AutoNumeric(v)
	case FmtCurrency:
		return loc.Currency(v)
	case FmtDate:
		return loc.Date(int64(v))
	case FmtAutoNumeric:
		return AutoNumeric(v)
	case FmtUnformatted:
		if numericField {
			return AutoNumeric(v)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if unit, ok := durationUnits[f.Name]; ok {
		return strconv.FormatFloat(math.Trunc(v/unit), 'f', 0, 64)
	}
	if _, ok := datePartLayouts[f.Name]; ok {
		return datePart(f.Name, time.Unix(int64(v), 0).In(loc.Location()))
	}
	// Unknown tags pass the value through.
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func datePart(name string, t time.Time) string {
	switch name {
	case "day_of_year":
		return strconv.Itoa(t.YearDay())
	case "week":
		_, w := t.ISOWeek()
		return strconv.Itoa(w)
	}
	return t.Format(datePartLayouts[name])
}

// fixed rounds half away from zero to n places.
func fixed(v float64, n int) string {
	if n < 0 {
		n = 0
	}
	p := math.Pow(10, float64(n))
	r := math.Round(v*p) / p
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', n, 64)
}

// AutoNumeric picks a decimal count from the magnitude of v and trims
// trailing zeros: whole numbers print bare, large values get fewer
// places, and tiny values keep enough digits to stay non-zero.
func AutoNumeric(v float64) string {
	a := math.Abs(v)
	var places int
	switch {
	case a == math.Trunc(a):
		places = 0
	case a >= 1000:
		places = 0
	case a >= 100:
		places = 1
	case a >= 1:
		places = 2
	case a >= 0.01:
		places = 4
	default:
		places = 6
	}
	s := fixed(v, places)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

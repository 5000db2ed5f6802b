// internal/tags/tags.go
//
// Template tag grammar shared by calculation and string-combine fields.
//
// Context
// -------
// A template is free text with bracketed tags:
//
//	[first_name]        field tag, replaced with the display value.
//	[value:first_name]  raw-value tag, replaced with the stored value.
//	[#current_date]     keyword tag, resolved by the calculation engine.
//	[#3_months]         keyword tag with a signed count prefix.
//	[?round_2]          format tag, never substituted.
//	[42]                numeric literal tag.
//
// Scan tokenizes a template into Tags in order of appearance.  Replace
// substitutes a map and Clean strips whatever tags remain, then tidies
// the whitespace and comma debris they leave behind.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.

package tags

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies a tag by its prefix.
type Kind int

const (
	KindField Kind = iota
	KindValue
	KindKeyword
	KindFormat
	KindNumber
)

// ValuePrefix marks a raw-value field tag.
const ValuePrefix = "value:"

// Tag is one bracketed token.
type Tag struct {
	Raw   string // including brackets
	Body  string // between the brackets
	Kind  Kind
	Name  string // field or keyword name, decoration removed
	Start int    // byte offset of '['
}

var tagRe = regexp.MustCompile(`\[([^\[\]]+)\]`)

// Scan returns every tag in tmpl, in order.
func Scan(tmpl string) []Tag {
	locs := tagRe.FindAllStringSubmatchIndex(tmpl, -1)
	out := make([]Tag, 0, len(locs))
	for _, l := range locs {
		body := tmpl[l[2]:l[3]]
		out = append(out, classify(tmpl[l[0]:l[1]], body, l[0]))
	}
	return out
}

func classify(raw, body string, start int) Tag {
	t := Tag{Raw: raw, Body: body, Start: start}
	switch {
	case strings.HasPrefix(body, "?"):
		t.Kind, t.Name = KindFormat, body[1:]
	case strings.HasPrefix(body, "#"):
		t.Kind, t.Name = KindKeyword, body[1:]
	case strings.HasPrefix(body, ValuePrefix):
		t.Kind, t.Name = KindValue, body[len(ValuePrefix):]
	case isNumber(body):
		t.Kind, t.Name = KindNumber, body
	default:
		t.Kind, t.Name = KindField, body
	}
	return t
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// Dependencies returns the field names a template reads, in order of
// first appearance and without duplicates.  Keyword, format, and numeric
// tags are excluded; `[value:x]` contributes x.
func Dependencies(tmpl string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range Scan(tmpl) {
		if t.Kind != KindField && t.Kind != KindValue {
			continue
		}
		if _, dup := seen[t.Name]; dup {
			continue
		}
		seen[t.Name] = struct{}{}
		out = append(out, t.Name)
	}
	return out
}

// Replace substitutes every tag whose body is a key of data.  Tags without
// an entry are left in place for Clean.
func Replace(tmpl string, data map[string]string) string {
	return tagRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := data[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

var (
	spaceRunRe    = regexp.MustCompile(`[ \t]{2,}`)
	spaceCommaRe  = regexp.MustCompile(`\s+,`)
	commaRunRe    = regexp.MustCompile(`,(\s*,)+`)
	emptyParensRe = regexp.MustCompile(`\(\s*\)`)
)

// Clean strips unresolved tags and tidies the result: runs of spaces
// collapse, spaces before commas go, repeated commas merge, empty
// parentheses vanish, and leading or trailing spaces and commas are
// trimmed.
func Clean(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = emptyParensRe.ReplaceAllString(s, "")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = spaceCommaRe.ReplaceAllString(s, ",")
	s = commaRunRe.ReplaceAllString(s, ",")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.Trim(s, " \t,")
}

// HasTags reports whether s still contains a bracketed tag.
func HasTags(s string) bool { return tagRe.MatchString(s) }

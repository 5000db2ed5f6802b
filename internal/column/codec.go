package column

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/elliotchance/phpserialize"
	"github.com/tidwall/gjson"
)

var serializedRe = regexp.MustCompile(`^a:\d+:\{`)

// LooksSerialized reports a PHP-serialized array.
func LooksSerialized(s string) bool { return serializedRe.MatchString(strings.TrimSpace(s)) }

// EncodeList serializes values as an indexed PHP array, the storage format
// of multi-value and link columns.
func EncodeList(values []string) (string, error) {
	in := make([]any, len(values))
	for i, v := range values {
		in[i] = v
	}
	b, err := phpserialize.Marshal(in, phpserialize.DefaultMarshalOptions())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeList reads a stored multi-value column.  Serialized arrays, JSON
// arrays, and comma-separated text are all accepted.
func DecodeList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if LooksSerialized(raw) {
		m, err := phpserialize.UnmarshalAssociativeArray([]byte(raw))
		if err == nil {
			return ordered(m)
		}
	}
	if strings.HasPrefix(raw, "[") && gjson.Valid(raw) {
		var out []string
		for _, v := range gjson.Parse(raw).Array() {
			out = append(out, v.String())
		}
		return out
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ordered flattens a decoded PHP array by index.  String keys sort after
// numeric ones.
func ordered(m map[any]any) []string {
	type kv struct {
		idx int
		key string
		val string
	}
	items := make([]kv, 0, len(m))
	for k, v := range m {
		it := kv{idx: -1, val: phpString(v)}
		switch t := k.(type) {
		case int64:
			it.idx = int(t)
		case int:
			it.idx = t
		default:
			it.key = phpString(k)
			if n, err := strconv.Atoi(it.key); err == nil {
				it.idx = n
			}
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if (a.idx < 0) != (b.idx < 0) {
			return a.idx >= 0
		}
		if a.idx != b.idx {
			return a.idx < b.idx
		}
		return a.key < b.key
	})
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.val
	}
	return out
}

func phpString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return ""
	}
	return ""
}

// Link is the decoded form of a link column.
type Link struct {
	URL  string
	Text string
}

var (
	markdownLinkRe = regexp.MustCompile(`^\[([^\]]*)\]\(([^)]+)\)$`)
	angleLinkRe    = regexp.MustCompile(`^<([^>]+)>$`)
)

// ParseLink reads a submitted link: `[text](url)`, `<url>`, or a bare URL.
func ParseLink(s string) Link {
	s = strings.TrimSpace(s)
	if m := markdownLinkRe.FindStringSubmatch(s); m != nil {
		return Link{URL: strings.TrimSpace(m[2]), Text: strings.TrimSpace(m[1])}
	}
	if m := angleLinkRe.FindStringSubmatch(s); m != nil {
		return Link{URL: strings.TrimSpace(m[1])}
	}
	return Link{URL: s}
}

// DecodeLink reads a stored link column.
func DecodeLink(raw string) Link {
	if LooksSerialized(raw) {
		vs := DecodeList(raw)
		var l Link
		if len(vs) > 0 {
			l.URL = vs[0]
		}
		if len(vs) > 1 {
			l.Text = vs[1]
		}
		return l
	}
	return ParseLink(raw)
}

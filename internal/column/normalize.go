// internal/column/normalize.go
//
// Column value normalization.
//
// Context
// -------
// Each submitted value passes through Normalize before the write query is
// built.  The result is either a value to bind (possibly SQL NULL) or a
// skip, meaning the column is left out of the statement and its stored
// value survives.
//
// Workflow
// --------
//   1.  Readonly enforcement.  A readonly, non-hidden field submitted by a
//       user below editor, outside signup and internal calls, is skipped.
//       This runs before anything looks at the value.
//   2.  Absent values, computed fields, and utility fields are skipped.
//   3.  Import rows skip empty cells unless records.allow_empty_overwrite
//       is on.
//   4.  The element kind picks the coercion rule.
//
// Notes
// -----
// • Values are always bound, never interpolated, so plain text only needs
//   trimming here.
// • Upload deletions are scheduled on the caller's upload.Pending and run
//   after the write succeeds.
// • Oxford commas, two spaces after periods.

package column

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/crypto/bcrypt"

	"github.com/yanizio/participants/internal/auth"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/locale"
	"github.com/yanizio/participants/internal/upload"
)

// Raw is one submitted value.  The zero value is an absent field.
type Raw struct {
	Present bool
	Null    bool
	Str     string
	List    []string
	IsList  bool
	// Delete is the file field's "remove this file" checkbox.
	Delete bool
}

// String wraps a scalar submission.
func String(s string) Raw { return Raw{Present: true, Str: s} }

// List wraps an array submission.
func List(vs ...string) Raw { return Raw{Present: true, List: vs, IsList: true} }

// Null is an explicit null.
func Null() Raw { return Raw{Present: true, Null: true} }

// Empty reports a submission with no content.
func (r Raw) Empty() bool {
	if !r.Present || r.Null {
		return true
	}
	if r.IsList {
		for _, v := range r.List {
			if strings.TrimSpace(v) != "" {
				return false
			}
		}
		return true
	}
	return strings.TrimSpace(r.Str) == ""
}

// Scalar returns the value as one string; lists join with commas.
func (r Raw) Scalar() string {
	if r.IsList {
		return strings.Join(r.List, ",")
	}
	return r.Str
}

// Mode describes the operation a submission belongs to.
type Mode struct {
	Signup   bool
	Import   bool
	FuncCall bool // internal call, e.g. the background recompute
	Actor    auth.Actor
}

// Value is a normalized column.  A nil Val binds SQL NULL.
type Value struct {
	Column string
	Val    *string
	Skip   bool
}

func skip(col string) Value { return Value{Column: col, Skip: true} }

func null(col string) Value { return Value{Column: col} }

func set(col, v string) Value { return Value{Column: col, Val: &v} }

// Normalizer holds the per-site settings that coercion depends on.
type Normalizer struct {
	Locale              *locale.Formatter
	AllowEmptyOverwrite bool
	StrictDates         bool
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int

	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewNormalizer builds a normalizer for loc.
func NewNormalizer(loc *locale.Formatter, allowEmptyOverwrite, strictDates bool) *Normalizer {
	if loc == nil {
		loc = locale.Default()
	}
	return &Normalizer{
		Locale:              loc,
		AllowEmptyOverwrite: allowEmptyOverwrite,
		StrictDates:         strictDates,
		BcryptCost:          bcrypt.DefaultCost,
		rich:                bluemonday.UGCPolicy(),
		plain:               bluemonday.StrictPolicy(),
	}
}

// ReadonlyBlocked reports whether a submission to f must be dropped.
func ReadonlyBlocked(f *field.Field, m Mode) bool {
	return f.Readonly &&
		f.FormElement != field.Hidden &&
		!m.Actor.AtLeast(auth.Editor) &&
		!m.Signup &&
		!m.FuncCall
}

// Normalize coerces raw for f.  stored is the current column value on
// update ("" on insert); file fields compare against it.
func (n *Normalizer) Normalize(f *field.Field, raw Raw, stored string, m Mode, files *upload.Pending) Value {
	col := f.Name

	if ReadonlyBlocked(f, m) {
		return skip(col)
	}
	if f.Internal || f.IsDynamic() || !f.Writes() {
		return skip(col)
	}
	if !raw.Present && !raw.Delete {
		return skip(col)
	}
	if m.Import && raw.Empty() && !n.AllowEmptyOverwrite {
		return skip(col)
	}

	switch f.Kind() {
	case field.KindMulti:
		return n.multi(col, raw)
	case field.KindLink:
		return n.link(f, raw)
	case field.KindRich:
		return n.richText(col, raw)
	case field.KindDate:
		return n.date(col, raw)
	case field.KindTimestamp:
		return n.timestamp(col, raw)
	case field.KindPassword:
		return n.password(col, raw, stored)
	case field.KindNumeric:
		return n.numeric(col, raw)
	case field.KindFile:
		return n.file(col, raw, stored, files)
	}
	return n.text(f, raw)
}

func (n *Normalizer) multi(col string, raw Raw) Value {
	if raw.Null {
		return null(col)
	}
	var vs []string
	if raw.IsList {
		for _, v := range raw.List {
			if v = strings.TrimSpace(v); v != "" {
				vs = append(vs, v)
			}
		}
	} else if s := strings.TrimSpace(raw.Str); s != "" {
		if LooksSerialized(s) {
			vs = DecodeList(s)
		} else {
			vs = []string{s}
		}
	}
	enc, err := EncodeList(vs)
	if err != nil {
		return skip(col)
	}
	return set(col, enc)
}

func (n *Normalizer) link(f *field.Field, raw Raw) Value {
	if raw.Null {
		return null(f.Name)
	}
	var l Link
	switch {
	case raw.IsList && len(raw.List) >= 2:
		l = Link{URL: strings.TrimSpace(raw.List[0]), Text: strings.TrimSpace(raw.List[1])}
	case raw.IsList && len(raw.List) == 1:
		l = ParseLink(raw.List[0])
	default:
		l = ParseLink(raw.Str)
	}
	if f.HasAttr("hide_clickable") {
		l.Text = ""
	}
	if l.URL == "" && l.Text == "" {
		return null(f.Name)
	}
	enc, err := EncodeList([]string{l.URL, l.Text})
	if err != nil {
		return skip(f.Name)
	}
	return set(f.Name, enc)
}

func (n *Normalizer) richText(col string, raw Raw) Value {
	if raw.Null {
		return null(col)
	}
	s := raw.Scalar()
	if LooksSerialized(s) {
		s = ""
	}
	return set(col, strings.TrimSpace(n.rich.Sanitize(s)))
}

// nullSentinel marks an explicitly cleared date.
const nullSentinel = "null"

var integerRe = regexp.MustCompile(`^-?\d+$`)

func (n *Normalizer) date(col string, raw Raw) Value {
	s := strings.TrimSpace(raw.Scalar())
	if raw.Null || s == "" || strings.EqualFold(s, nullSentinel) {
		return null(col)
	}
	if integerRe.MatchString(s) {
		return set(col, s)
	}
	t, err := n.Locale.ParseDate(s, n.StrictDates)
	if err != nil {
		return skip(col)
	}
	return set(col, strconv.FormatInt(t.Unix(), 10))
}

func (n *Normalizer) timestamp(col string, raw Raw) Value {
	s := strings.TrimSpace(raw.Scalar())
	if raw.Null || s == "" || strings.EqualFold(s, nullSentinel) {
		return null(col)
	}
	var t time.Time
	if integerRe.MatchString(s) {
		sec, _ := strconv.ParseInt(s, 10, 64)
		t = time.Unix(sec, 0)
	} else {
		var err error
		if t, err = n.Locale.ParseDate(s, n.StrictDates); err != nil {
			return skip(col)
		}
	}
	return set(col, t.UTC().Format(time.DateTime))
}

var placeholderRe = regexp.MustCompile(`^\*+$`)

// IsHashed reports a bcrypt digest.
func IsHashed(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

func (n *Normalizer) password(col string, raw Raw, stored string) Value {
	s := raw.Scalar()
	if strings.TrimSpace(s) == "" || placeholderRe.MatchString(s) || s == stored || IsHashed(s) {
		return skip(col)
	}
	cost := n.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(s), cost)
	if err != nil {
		return skip(col)
	}
	return set(col, string(h))
}

var numeralRe = regexp.MustCompile(`-?\d*\.?\d+`)

// Numeral strips s to a bare float-compatible numeral.  ok is false when
// no digits remain.
func Numeral(s string) (string, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	m := numeralRe.FindString(s)
	if m == "" {
		return "", false
	}
	if strings.HasPrefix(m, ".") || strings.HasPrefix(m, "-.") {
		m = strings.Replace(m, ".", "0.", 1)
	}
	return m, true
}

func (n *Normalizer) numeric(col string, raw Raw) Value {
	if raw.Null {
		return null(col)
	}
	v, ok := Numeral(raw.Scalar())
	if !ok {
		return null(col)
	}
	return set(col, v)
}

func (n *Normalizer) file(col string, raw Raw, stored string, files *upload.Pending) Value {
	if raw.Delete {
		if files != nil {
			files.Schedule(stored)
		}
		return set(col, "")
	}
	name := strings.TrimSpace(raw.Scalar())
	if name == "" {
		return skip(col)
	}
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if stored != "" && stored != name && files != nil {
		files.Schedule(stored)
	}
	return set(col, name)
}

func (n *Normalizer) text(f *field.Field, raw Raw) Value {
	if raw.Null {
		return null(f.Name)
	}
	s := strings.TrimSpace(raw.Scalar())
	if f.HasAttr("strip_tags") {
		s = strings.TrimSpace(n.plain.Sanitize(s))
	}
	return set(f.Name, s)
}

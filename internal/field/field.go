// Package field holds the field definition model: fields, groups, the
// immutable ordered Snapshot every other package reads, and the Registry
// that loads and invalidates snapshots.
package field

import (
	"strings"
)

// Group modes.
const (
	ModePublic  = "public"
	ModePrivate = "private"
	ModeAdmin   = "admin"
)

// InternalGroup holds the synthetic bookkeeping fields.
const InternalGroup = "internal"

// Internal column names.
const (
	ColID           = "id"
	ColPrivateID    = "private_id"
	ColDateRecorded = "date_recorded"
	ColDateUpdated  = "date_updated"
	ColLastAccessed = "last_accessed"
)

// Group is a named section of fields.
type Group struct {
	Name  string `db:"name"  json:"name"  yaml:"name"  validate:"required,column_name"`
	Title string `db:"title" json:"title" yaml:"title"`
	Mode  string `db:"mode"  json:"mode"  yaml:"mode"  validate:"omitempty,oneof=public private admin"`
	Order int    `db:"order" json:"order" yaml:"order"`
}

// Option is one entry of a value-set field.  Title is shown, Value is
// stored.
type Option struct {
	Title string `json:"title" yaml:"title"`
	Value string `json:"value" yaml:"value"`
}

// Field is one admin-defined field.  Default doubles as the template for
// dynamic elements.
type Field struct {
	ID            int64             `json:"id"             yaml:"id"`
	Name          string            `json:"name"           yaml:"name"        validate:"required,column_name"`
	Title         string            `json:"title"          yaml:"title"`
	Group         string            `json:"group"          yaml:"group"       validate:"required"`
	Order         int               `json:"order"          yaml:"order"`
	FormElement   Element           `json:"form_element"   yaml:"form_element" validate:"required,element"`
	Default       string            `json:"default"        yaml:"default"`
	Validation    string            `json:"validation"     yaml:"validation"`
	Options       []Option          `json:"options"        yaml:"options"`
	Attributes    map[string]string `json:"attributes"     yaml:"attributes"`
	Readonly      bool              `json:"readonly"       yaml:"readonly"`
	Signup        bool              `json:"signup"         yaml:"signup"`
	Sortable      bool              `json:"sortable"       yaml:"sortable"`
	CSV           bool              `json:"csv"            yaml:"csv"`
	Persistent    bool              `json:"persistent"     yaml:"persistent"`
	DisplayColumn int               `json:"display_column" yaml:"display_column"`
	AdminColumn   int               `json:"admin_column"   yaml:"admin_column"`

	// Internal marks the synthetic bookkeeping columns.
	Internal bool `json:"-" yaml:"-"`
}

// Type returns the element type, falling back to text-line.
func (f *Field) Type() ElementType { return TypeOf(f.FormElement) }

// Kind is shorthand for f.Type().Kind().
func (f *Field) Kind() Kind { return f.Type().Kind() }

// Writes reports whether the field owns a column.
func (f *Field) Writes() bool { return f.Internal || f.Type().Writes() }

// IsDynamic reports whether the value is computed.
func (f *Field) IsDynamic() bool { return f.Type().Dynamic() }

// IsNumeric reports a numeric-typed element.
func (f *Field) IsNumeric() bool { return f.Type().Numeric() }

// IsValueSet reports an element that stores values from an option list.
func (f *Field) IsValueSet() bool {
	k := f.Kind()
	return k == KindValueSet || k == KindMulti
}

// IsMulti reports a serialized multi-value element.
func (f *Field) IsMulti() bool { return f.Kind() == KindMulti }

// Attr returns a raw attribute value.
func (f *Field) Attr(key string) (string, bool) {
	v, ok := f.Attributes[key]
	return v, ok
}

// HasAttr reports a flag attribute that is present and not switched off.
func (f *Field) HasAttr(key string) bool {
	v, ok := f.Attributes[key]
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}

// OptionTitle maps a stored value to its display title.  Values without an
// option are returned unchanged.
func (f *Field) OptionTitle(value string) string {
	for _, o := range f.Options {
		if o.Value == value {
			return o.Title
		}
	}
	return value
}

// OptionValue maps a title (or value) back to the stored value, case
// insensitively.  ok is false when nothing matches.
func (f *Field) OptionValue(label string) (string, bool) {
	for _, o := range f.Options {
		if o.Value == label {
			return o.Value, true
		}
	}
	for _, o := range f.Options {
		if strings.EqualFold(o.Title, label) || strings.EqualFold(o.Value, label) {
			return o.Value, true
		}
	}
	return "", false
}

// Clone returns a deep copy.
func (f *Field) Clone() *Field {
	c := *f
	c.Options = append([]Option(nil), f.Options...)
	if f.Attributes != nil {
		c.Attributes = make(map[string]string, len(f.Attributes))
		for k, v := range f.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// internalFields are appended to every snapshot.
func internalFields() []*Field {
	mk := func(name, title string, el Element) *Field {
		return &Field{Name: name, Title: title, Group: InternalGroup, FormElement: el, Internal: true, Sortable: true}
	}
	return []*Field{
		mk(ColID, "Record ID", Numeric),
		mk(ColPrivateID, "Private ID", TextLine),
		mk(ColDateRecorded, "Date Recorded", Timestamp),
		mk(ColDateUpdated, "Date Updated", Timestamp),
		mk(ColLastAccessed, "Last Accessed", Timestamp),
	}
}

package field

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrDuplicateField = errors.New("field: duplicate name")
	ErrUnknownGroup   = errors.New("field: unknown group")
	ErrUnknownField   = errors.New("field: unknown field")
)

// Snapshot is an immutable, ordered view of every field.  Order is group
// order, then field order, then name; internal fields come last.  Callers
// must not mutate the *Field values it hands out.
type Snapshot struct {
	fields   []*Field
	byName   map[string]*Field
	groups   []Group
	byGroup  map[string]Group
	Version  uint64
	LoadedAt time.Time
}

// NewSnapshot validates and orders the definitions.  Every field must name
// an existing group and carry a unique name.
func NewSnapshot(groups []Group, fields []*Field) (*Snapshot, error) {
	s := &Snapshot{
		byName:   make(map[string]*Field, len(fields)+5),
		byGroup:  make(map[string]Group, len(groups)+1),
		LoadedAt: time.Now(),
	}

	s.groups = append(s.groups, groups...)
	sort.SliceStable(s.groups, func(i, j int) bool { return s.groups[i].Order < s.groups[j].Order })
	for _, g := range s.groups {
		s.byGroup[g.Name] = g
	}

	user := make([]*Field, 0, len(fields))
	for _, f := range fields {
		if _, ok := s.byGroup[f.Group]; !ok {
			return nil, fmt.Errorf("%w: field %q names group %q", ErrUnknownGroup, f.Name, f.Group)
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, f.Name)
		}
		s.byName[f.Name] = f
		user = append(user, f)
	}
	sort.SliceStable(user, func(i, j int) bool {
		gi, gj := s.byGroup[user[i].Group].Order, s.byGroup[user[j].Group].Order
		if gi != gj {
			return gi < gj
		}
		if user[i].Order != user[j].Order {
			return user[i].Order < user[j].Order
		}
		return user[i].Name < user[j].Name
	})

	s.byGroup[InternalGroup] = Group{Name: InternalGroup, Title: "Record Info", Mode: ModeAdmin, Order: 1 << 30}
	s.fields = user
	for _, f := range internalFields() {
		if _, taken := s.byName[f.Name]; taken {
			return nil, fmt.Errorf("%w: %q is reserved", ErrDuplicateField, f.Name)
		}
		s.byName[f.Name] = f
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// All returns every field in definition order.
func (s *Snapshot) All() []*Field { return s.fields }

// Field looks a field up by name.
func (s *Snapshot) Field(name string) (*Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Groups returns the groups in display order, internal excluded.
func (s *Snapshot) Groups() []Group { return s.groups }

// Group looks a group up by name.
func (s *Snapshot) Group(name string) (Group, bool) {
	g, ok := s.byGroup[name]
	return g, ok
}

// filter returns the fields satisfying keep, in order.
func (s *Snapshot) filter(keep func(*Field) bool) []*Field {
	out := make([]*Field, 0, len(s.fields))
	for _, f := range s.fields {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// Writing returns the user fields that own a column, dynamic ones included.
func (s *Snapshot) Writing() []*Field {
	return s.filter(func(f *Field) bool { return !f.Internal && f.Writes() })
}

// Dynamic returns the computed fields.
func (s *Snapshot) Dynamic() []*Field {
	return s.filter(func(f *Field) bool { return !f.Internal && f.IsDynamic() })
}

// TextFields returns the text-typed fields searched by the
// pdb_text_fields group slug.
func (s *Snapshot) TextFields() []*Field {
	return s.filter(func(f *Field) bool {
		if f.Internal || !f.Writes() {
			return false
		}
		switch f.Kind() {
		case KindText, KindRich:
			return true
		}
		return false
	})
}

// DataFields returns every stored field searched by pdb_all_fields.
// Passwords are never searchable.
func (s *Snapshot) DataFields() []*Field {
	return s.filter(func(f *Field) bool {
		return !f.Internal && f.Writes() && f.Kind() != KindPassword
	})
}

// Sortable returns fields usable as an ORDER BY column.
func (s *Snapshot) Sortable() []*Field {
	return s.filter(func(f *Field) bool { return f.Writes() && (f.Sortable || f.Internal) })
}

// AdminColumns returns fields with a non-zero admin_column, in that order.
func (s *Snapshot) AdminColumns() []*Field {
	out := s.filter(func(f *Field) bool { return f.AdminColumn > 0 && f.Writes() })
	sort.SliceStable(out, func(i, j int) bool { return out[i].AdminColumn < out[j].AdminColumn })
	return out
}

// IsColumn reports whether name is a real column of the records table.
func (s *Snapshot) IsColumn(name string) bool {
	f, ok := s.byName[name]
	return ok && f.Writes()
}

// Columns returns every column name in order, internal columns last.
func (s *Snapshot) Columns() []string {
	out := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		if f.Writes() {
			out = append(out, f.Name)
		}
	}
	return out
}

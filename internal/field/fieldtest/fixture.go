// Package fieldtest provides a shared field definition fixture for tests.
package fieldtest

import (
	"testing"

	"github.com/yanizio/participants/internal/field"
)

// YAML is a small but representative participant schema.
const YAML = `
groups:
  - {name: main, title: Participant Info, mode: public, order: 1}
  - {name: admin, title: Administrative, mode: admin, order: 2}
fields:
  - {name: first_name, title: First Name, group: main, order: 1, form_element: text-line, signup: true, sortable: true, validation: "yes"}
  - {name: last_name, title: Last Name, group: main, order: 2, form_element: text-line, signup: true, sortable: true}
  - {name: email, title: Email, group: main, order: 3, form_element: text-line, validation: email-regex}
  - {name: bio, title: Bio, group: main, order: 4, form_element: rich-text}
  - {name: age, title: Age, group: main, order: 5, form_element: numeric, sortable: true}
  - {name: weight, title: Weight, group: main, order: 6, form_element: decimal}
  - {name: dues, title: Dues, group: main, order: 7, form_element: currency}
  - {name: birthdate, title: Birthdate, group: main, order: 8, form_element: date}
  - {name: appointment, title: Appointment, group: main, order: 9, form_element: timestamp}
  - name: color
    title: Favorite Color
    group: main
    order: 10
    form_element: dropdown
    default: green
    options: [{title: Red, value: red}, {title: Green, value: green}]
  - name: interests
    title: Interests
    group: main
    order: 11
    form_element: multi-checkbox
    options: [{title: Hiking, value: hike}, {title: Reading, value: read}]
  - {name: website, title: Website, group: main, order: 12, form_element: link}
  - {name: photo, title: Photo, group: main, order: 13, form_element: image-upload}
  - {name: secret, title: Password, group: main, order: 14, form_element: password}
  - {name: heading1, title: More, group: main, order: 15, form_element: heading}
  - {name: status, title: Status, group: admin, order: 1, form_element: text-line, readonly: true, default: new}
  - {name: ref, title: Referrer, group: admin, order: 2, form_element: hidden, readonly: true}
  - {name: total, title: Total, group: admin, order: 3, form_element: numeric-calc, default: "[age]+[weight]=[?round_2]"}
  - {name: full_name, title: Full Name, group: admin, order: 4, form_element: string-combine, default: "[first_name] [last_name]"}
  - {name: due_date, title: Due Date, group: admin, order: 5, form_element: date-calc, default: "[birthdate]+[#30_days]=[?unformatted]"}
`

// Snapshot parses YAML or fails the test.
func Snapshot(t testing.TB) *field.Snapshot {
	t.Helper()
	s, err := field.SnapshotFromYAML([]byte(YAML))
	if err != nil {
		t.Fatalf("fieldtest fixture: %v", err)
	}
	return s
}

// Registry wraps Snapshot in a static registry.
func Registry(t testing.TB) *field.Registry {
	t.Helper()
	return field.Static(Snapshot(t))
}

// Must returns the named fixture field.
func Must(t testing.TB, s *field.Snapshot, name string) *field.Field {
	t.Helper()
	f, ok := s.Field(name)
	if !ok {
		t.Fatalf("fieldtest: no field %q", name)
	}
	return f
}

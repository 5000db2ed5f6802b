// internal/field/file.go
//
// YAML definition Source.
//
// Context
// -------
// A fresh install has empty schema tables.  Operators describe the initial
// groups and fields in one YAML file (conf/fields.yaml) and `pdbctl schema
// sync --seed` loads it through FileSource, creates the records table, and
// writes the definitions.  Tests use the same loader for fixtures.
//
// File shape
// ----------
//
//	groups:
//	  - {name: main, title: Main, mode: public, order: 1}
//	fields:
//	  - name: first_name
//	    title: First Name
//	    group: main
//	    form_element: text-line
//
// Notes
// -----
// • Every field is validated with Validate before it is returned.
// • Oxford commas, two spaces after periods.

package field

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource loads definitions from a YAML file.
type FileSource struct {
	Path string
}

// Document is the parsed YAML file.
type Document struct {
	Groups []Group  `yaml:"groups"`
	Fields []*Field `yaml:"fields"`
}

func (s FileSource) read() (*Document, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read field file %s: %w", s.Path, err)
	}
	return ParseYAML(raw)
}

// ParseYAML decodes and validates a definition document.
func ParseYAML(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse field YAML: %w", err)
	}
	for i := range doc.Groups {
		if err := validate.Struct(doc.Groups[i]); err != nil {
			return nil, fmt.Errorf("group %q: %w", doc.Groups[i].Name, err)
		}
	}
	for _, f := range doc.Fields {
		if err := Validate(f); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

// LoadGroups implements Source.
func (s FileSource) LoadGroups(context.Context) ([]Group, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Groups, nil
}

// LoadFields implements Source.
func (s FileSource) LoadFields(context.Context) ([]*Field, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Fields, nil
}

// SnapshotFromYAML is a convenience for fixtures and the seed path.
func SnapshotFromYAML(raw []byte) (*Snapshot, error) {
	doc, err := ParseYAML(raw)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(doc.Groups, doc.Fields)
}

// internal/field/element.go
//
// Form-element types.
//
// Context
// -------
// Every field names one form element (text-line, dropdown, numeric-calc,
// …).  The element decides whether the field has a backing column, which
// SQL datatype that column uses, whether the value is numeric, and which
// broad Kind the normalizer, calculator, and list-filter builder branch
// on.  Built-in elements are registered at init; plugins may call
// RegisterElement to add their own without touching those switch points.
//
// Notes
// -----
// • Lookup of an unknown element falls back to text-line so legacy rows
//   with a retired element still load.
// • Oxford commas, two spaces after periods.

package field

import "sync"

// Element is the form_element discriminator stored with each field.
type Element string

const (
	TextLine         Element = "text-line"
	TextArea         Element = "text-area"
	RichText         Element = "rich-text"
	Date             Element = "date"
	Date5            Element = "date5"
	Timestamp        Element = "timestamp"
	Numeric          Element = "numeric"
	Decimal          Element = "decimal"
	Currency         Element = "currency"
	Dropdown         Element = "dropdown"
	MultiDropdown    Element = "multi-dropdown"
	MultiCheckbox    Element = "multi-checkbox"
	MultiSelectOther Element = "multi-select-other"
	SelectOther      Element = "select-other"
	Radio            Element = "radio"
	Checkbox         Element = "checkbox"
	Link             Element = "link"
	FileUpload       Element = "file-upload"
	ImageUpload      Element = "image-upload"
	Password         Element = "password"
	Hidden           Element = "hidden"
	Captcha          Element = "captcha"
	Placeholder      Element = "placeholder"
	Heading          Element = "heading"
	NumericCalc      Element = "numeric-calc"
	DateCalc         Element = "date-calc"
	StringCombine    Element = "string-combine"
	MediaEmbed       Element = "media-embed"
	Shortcode        Element = "shortcode"
)

// Kind groups elements that share storage and comparison rules.
type Kind int

const (
	KindText Kind = iota
	KindRich
	KindNumeric
	KindDate      // unix seconds in an integer column
	KindTimestamp // MySQL TIMESTAMP column
	KindValueSet  // single choice from an option list
	KindMulti     // serialized set of option values
	KindLink
	KindFile
	KindPassword
	KindUtility // no stored value
)

// ElementType describes one form element.
type ElementType interface {
	Name() Element
	Kind() Kind
	// Writes reports whether fields of this type own a column.
	Writes() bool
	// Dynamic reports whether the value is computed from a template.
	Dynamic() bool
	Numeric() bool
	SQLDatatype() string
}

// elementType is the table-driven ElementType used for built-ins.
type elementType struct {
	name     Element
	kind     Kind
	writes   bool
	dynamic  bool
	numeric  bool
	datatype string
}

func (e elementType) Name() Element       { return e.name }
func (e elementType) Kind() Kind          { return e.kind }
func (e elementType) Writes() bool        { return e.writes }
func (e elementType) Dynamic() bool       { return e.dynamic }
func (e elementType) Numeric() bool       { return e.numeric }
func (e elementType) SQLDatatype() string { return e.datatype }

var builtins = []elementType{
	{TextLine, KindText, true, false, false, "TINYTEXT"},
	{TextArea, KindText, true, false, false, "TEXT"},
	{RichText, KindRich, true, false, false, "TEXT"},
	{Date, KindDate, true, false, false, "BIGINT"},
	{Date5, KindDate, true, false, false, "BIGINT"},
	{Timestamp, KindTimestamp, true, false, false, "TIMESTAMP NULL DEFAULT NULL"},
	{Numeric, KindNumeric, true, false, true, "BIGINT"},
	{Decimal, KindNumeric, true, false, true, "DECIMAL(14,4)"},
	{Currency, KindNumeric, true, false, true, "DECIMAL(10,2)"},
	{Dropdown, KindValueSet, true, false, false, "TINYTEXT"},
	{SelectOther, KindValueSet, true, false, false, "TINYTEXT"},
	{Radio, KindValueSet, true, false, false, "TINYTEXT"},
	{Checkbox, KindValueSet, true, false, false, "TINYTEXT"},
	{MultiDropdown, KindMulti, true, false, false, "LONGTEXT"},
	{MultiCheckbox, KindMulti, true, false, false, "LONGTEXT"},
	{MultiSelectOther, KindMulti, true, false, false, "LONGTEXT"},
	{Link, KindLink, true, false, false, "TINYTEXT"},
	{FileUpload, KindFile, true, false, false, "TEXT"},
	{ImageUpload, KindFile, true, false, false, "TEXT"},
	{Password, KindPassword, true, false, false, "TINYTEXT"},
	{Hidden, KindText, true, false, false, "TEXT"},
	{Shortcode, KindText, true, false, false, "TEXT"},
	{NumericCalc, KindNumeric, true, true, true, "DOUBLE"},
	{DateCalc, KindDate, true, true, true, "BIGINT"},
	{StringCombine, KindText, true, true, false, "TEXT"},
	{Captcha, KindUtility, false, false, false, ""},
	{Placeholder, KindUtility, false, false, false, ""},
	{Heading, KindUtility, false, false, false, ""},
	{MediaEmbed, KindUtility, false, false, false, ""},
}

var (
	elementsMu sync.RWMutex
	elements   = map[Element]ElementType{}
)

func init() {
	for _, e := range builtins {
		elements[e.name] = e
	}
}

// RegisterElement adds or replaces an element type.
func RegisterElement(t ElementType) {
	elementsMu.Lock()
	elements[t.Name()] = t
	elementsMu.Unlock()
}

// LookupElement returns the type registered for name.
func LookupElement(name Element) (ElementType, bool) {
	elementsMu.RLock()
	t, ok := elements[name]
	elementsMu.RUnlock()
	return t, ok
}

// TypeOf is LookupElement with the text-line fallback.
func TypeOf(name Element) ElementType {
	if t, ok := LookupElement(name); ok {
		return t
	}
	t, _ := LookupElement(TextLine)
	return t
}

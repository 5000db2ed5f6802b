package dynamic

import (
	"strconv"
	"strings"
	"time"

	"github.com/yanizio/participants/internal/calc"
	"github.com/yanizio/participants/internal/column"
	"github.com/yanizio/participants/internal/field"
)

// DisplayValue renders a stored column value for people: option titles
// for value sets, joined titles for multi-value sets, locale dates, link
// text, and currency amounts.  Passwords never display.
func (r *Resolver) DisplayValue(f *field.Field, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if f.IsDynamic() && f.IsNumeric() {
		t, err := calc.Parse(f.Default)
		if err != nil {
			return raw
		}
		if calc.IsDisplayOnlyFormat(t.Format.Name, true) {
			if v, ok := calc.ParseNumber(raw); ok {
				return t.Render(v, r.env(f))
			}
		}
		// Only an unformatted date-calc result is a timestamp to render.
		if f.Kind() != field.KindDate || (t.Format.Name != calc.FmtUnformatted && t.Format.Name != calc.FmtAutoNumeric) {
			return raw
		}
	}

	switch f.Kind() {
	case field.KindValueSet:
		return f.OptionTitle(raw)
	case field.KindMulti:
		vs := column.DecodeList(raw)
		for i, v := range vs {
			vs[i] = f.OptionTitle(v)
		}
		return strings.Join(vs, ", ")
	case field.KindDate:
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return r.locale.Date(ts)
		}
	case field.KindTimestamp:
		if t, err := time.ParseInLocation(time.DateTime, raw, time.UTC); err == nil {
			return r.locale.DateTime(t)
		}
	case field.KindNumeric:
		if f.FormElement == field.Currency {
			if v, ok := calc.ParseNumber(raw); ok {
				return r.locale.Currency(v)
			}
		}
	case field.KindLink:
		l := column.DecodeLink(raw)
		if l.Text != "" {
			return l.Text
		}
		return l.URL
	case field.KindPassword:
		return ""
	}
	return raw
}

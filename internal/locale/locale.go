// internal/locale/locale.go
//
// Locale-aware number, currency, and date output.
//
// Context
// -------
// Calculated fields with a `currency` or `date` format tag, and the
// display of stored numeric and date values, are rendered for the site's
// locale.  One Formatter is built from config.Locale at startup and shared;
// it is immutable and safe for concurrent use.
//
// Notes
// -----
// • Number grouping and currency symbols come from golang.org/x/text.
// • Free-form date input is parsed with araddon/dateparse in the site
//   timezone unless strict parsing is requested.
// • Oxford commas, two spaces after periods.

package locale

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/yanizio/participants/internal/config"
)

// Formatter renders values for one locale.
type Formatter struct {
	tag        language.Tag
	printer    *message.Printer
	unit       currency.Unit
	loc        *time.Location
	dateLayout string
	timeLayout string
}

// New builds a Formatter from the locale config block.
func New(c config.Locale) (*Formatter, error) {
	tag, err := language.Parse(c.Language)
	if err != nil {
		return nil, fmt.Errorf("locale language %q: %w", c.Language, err)
	}
	unit, err := currency.ParseISO(c.Currency)
	if err != nil {
		return nil, fmt.Errorf("locale currency %q: %w", c.Currency, err)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("locale timezone %q: %w", c.Timezone, err)
	}
	dl := c.DateLayout
	if dl == "" {
		dl = "January 2, 2006"
	}
	tl := c.TimeLayout
	if tl == "" {
		tl = "3:04 pm"
	}
	return &Formatter{
		tag:        tag,
		printer:    message.NewPrinter(tag),
		unit:       unit,
		loc:        loc,
		dateLayout: dl,
		timeLayout: tl,
	}, nil
}

// Default is en-US, USD, UTC.  Used by tests and the CLI when no config
// is available.
func Default() *Formatter {
	f, _ := New(config.Locale{Language: "en-US", Currency: "USD", Timezone: "UTC"})
	return f
}

// Location is the site timezone.
func (f *Formatter) Location() *time.Location { return f.loc }

// Number formats v with exactly decimals fraction digits and locale
// grouping.  A negative decimals keeps the natural precision.
func (f *Formatter) Number(v float64, decimals int) string {
	if decimals < 0 {
		return f.printer.Sprint(number.Decimal(v))
	}
	return f.printer.Sprint(number.Decimal(v, number.Scale(decimals)))
}

// Currency formats v as an amount of the site currency.
func (f *Formatter) Currency(v float64) string {
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(v)))
}

// Date renders a unix timestamp with the date layout.
func (f *Formatter) Date(ts int64) string {
	return time.Unix(ts, 0).In(f.loc).Format(f.dateLayout)
}

// DateTime renders t with the date and time layouts.
func (f *Formatter) DateTime(t time.Time) string {
	return t.In(f.loc).Format(f.dateLayout + " " + f.timeLayout)
}

// ParseDate reads a user-entered date in the site timezone.  Strict
// parsing accepts only the configured date layout and ISO dates.
func (f *Formatter) ParseDate(s string, strict bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strict {
		if t, err := time.ParseInLocation(f.dateLayout, s, f.loc); err == nil {
			return t, nil
		}
		return time.ParseInLocation("2006-01-02", s, f.loc)
	}
	return dateparse.ParseIn(s, f.loc)
}

package calc

import (
	"strconv"
	"strings"

	"github.com/yanizio/participants/internal/locale"
)

// Env carries what evaluation needs beyond the data map.
type Env struct {
	Clock  *Clock
	Locale *locale.Formatter
	// NumericField is true when the owning field is numeric-typed.  It
	// upgrades `unformatted` to auto_numeric and makes currency and date
	// formats display-only.
	NumericField bool
}

// Result is the outcome of one evaluation.  An incomplete result has
// empty Stored and Display strings; zero is a valid complete value.
type Result struct {
	Value    float64
	SumCount int
	Complete bool
	Missing  []string

	// Stored is the canonical column value, Display the rendered value.
	// They differ only for display-only formats.
	Stored  string
	Display string
}

// Evaluate folds the body left to right over data.  Missing, empty, or
// non-numeric operands make the result incomplete.
func (t *Template) Evaluate(data map[string]string, env Env) Result {
	if env.Clock == nil {
		env.Clock = NewClock(nil, 0)
	}
	if env.Locale == nil {
		env.Locale = locale.Default()
	}

	res := Result{SumCount: 1, Complete: true}
	var (
		acc     float64
		started bool
		op      = "+"
	)

	for _, tk := range t.Tokens {
		if tk.Kind == TokOperator {
			if tk.Text == "=" {
				break
			}
			op = tk.Text
			continue
		}
		if tk.Kind == TokFormat {
			continue
		}

		v, ok := operand(tk, data, env.Clock)
		if !ok {
			res.Complete = false
			res.Missing = append(res.Missing, tk.Text)
			continue
		}

		if !started {
			acc, started = v, true
			continue
		}
		switch op {
		case "+":
			acc += v
			res.SumCount++
		case "-":
			acc -= v
			res.SumCount++
		case "*":
			acc *= v
		case "/":
			if v == 0 {
				acc = 0
			} else {
				acc /= v
			}
		}
	}

	if !res.Complete || !started {
		res.Complete = false
		return res
	}

	res.Value = acc
	res.Display = t.Format.apply(acc, res.SumCount, env.NumericField, env.Locale)
	if IsDisplayOnlyFormat(t.Format.Name, env.NumericField) {
		res.Stored = AutoNumeric(acc)
	} else {
		res.Stored = res.Display
	}
	return res
}

func operand(tk Token, data map[string]string, clock *Clock) (float64, bool) {
	switch tk.Kind {
	case TokNumber:
		return tk.Value, true
	case TokKeyword:
		return clock.Keyword(tk.Text)
	case TokField:
		raw, ok := data[tk.Text]
		if !ok {
			return 0, false
		}
		return ParseNumber(raw)
	}
	return 0, false
}

// ParseNumber reads a stored numeric value, tolerating surrounding space
// and thousands separators.  Empty and non-numeric strings report false.
func ParseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Calculate parses and evaluates tmpl in one step.  An invalid template
// yields an incomplete result.
func Calculate(tmpl string, data map[string]string, env Env) Result {
	t, err := Parse(tmpl)
	if err != nil {
		return Result{}
	}
	return t.Evaluate(data, env)
}

// Render formats an already computed value with the template's format
// tag.  Display code uses it to show a stored value whose format is
// display-only.
func (t *Template) Render(v float64, env Env) string {
	if env.Locale == nil {
		env.Locale = locale.Default()
	}
	return t.Format.apply(v, 1, env.NumericField, env.Locale)
}

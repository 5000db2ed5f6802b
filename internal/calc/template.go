// internal/calc/template.go
//
// Calculation template parsing.
//
// Context
// -------
// A numeric-calc or date-calc field stores its formula in the field
// default.  The formula is embedded in free text:
//
//	Total due: [dues]*[qty]+[fee]=[?currency] per year
//	└ front ─┘└──────── body ─────────────┘└ back ─┘
//
// The body is a run of operands (field tags, keyword tags, numerals) joined
// by + - * /, closed by `=` and an optional `[?format]` tag.  Parse splits
// the template and tokenizes the body once; Evaluate then runs against any
// number of data maps.
//
// Tokenizer rules
// ---------------
//   • Operators terminate the numeral buffer.
//   • An operator directly after another operator replaces it.
//   • A `-` before the first operand starts a negative numeral.
//   • `[` opens a tag that runs to the next `]`.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.

package calc

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yanizio/participants/internal/tags"
)

// ErrInvalidTemplate marks a template whose body does not match the
// calculation grammar.
var ErrInvalidTemplate = errors.New("calc: invalid template")

// TokenKind classifies a body token.
type TokenKind int

const (
	TokNumber TokenKind = iota
	TokOperator
	TokField
	TokKeyword
	TokFormat
)

func (k TokenKind) String() string {
	switch k {
	case TokNumber:
		return "number"
	case TokOperator:
		return "operator"
	case TokField:
		return "field"
	case TokKeyword:
		return "keyword"
	case TokFormat:
		return "format"
	}
	return "unknown"
}

// Token is one lexical unit of a calculation body.
type Token struct {
	Kind  TokenKind
	Text  string  // operator symbol, tag name, or numeral text
	Value float64 // numerals only
}

// Template is a parsed calculation.
type Template struct {
	Raw       string
	Front     string
	Body      string
	Back      string
	FormatTag string // as written, e.g. "round_2"; "" when absent
	Format    Format
	Tokens    []Token
}

const (
	operandExpr = `(?:\[[^\[\]?]+\]|\d+(?:\.\d+)?|\.\d+)`
	opExpr      = `(?:\s*[-+*/])+\s*`
)

var bodyRe = regexp.MustCompile(`(?s)^(.*?)(-?\s*` + operandExpr + `(?:` + opExpr + operandExpr + `)*\s*=\s*(?:\[\?[A-Za-z0-9_]+\])?)(.*)$`)

// Parse splits and tokenizes tmpl.
func Parse(tmpl string) (*Template, error) {
	m := bodyRe.FindStringSubmatch(tmpl)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTemplate, tmpl)
	}
	t := &Template{Raw: tmpl, Front: m[1], Body: m[2], Back: m[3]}

	toks, err := Tokenize(t.Body)
	if err != nil {
		return nil, err
	}
	t.Tokens = toks

	for _, tk := range toks {
		switch tk.Kind {
		case TokFormat:
			t.FormatTag = tk.Text
		case TokKeyword:
			if _, ok := parseKeyword(tk.Text); !ok {
				return nil, fmt.Errorf("%w: unknown keyword [#%s]", ErrInvalidTemplate, tk.Text)
			}
		}
	}
	t.Format = ParseFormat(t.FormatTag)
	return t, nil
}

// Validate reports whether tmpl is a usable calculation template.
func Validate(tmpl string) error {
	_, err := Parse(tmpl)
	return err
}

// Tokenize scans a body character by character.
func Tokenize(body string) ([]Token, error) {
	var (
		out []Token
		num strings.Builder
	)

	flush := func() error {
		if num.Len() == 0 {
			return nil
		}
		s := num.String()
		num.Reset()
		if s == "-" {
			// Leading minus before a tag: 0 - operand.
			out = append(out, Token{Kind: TokNumber, Text: "0"}, Token{Kind: TokOperator, Text: "-"})
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: bad numeral %q", ErrInvalidTemplate, s)
		}
		out = append(out, Token{Kind: TokNumber, Text: s, Value: v})
		return nil
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '-' && len(out) == 0 && num.Len() == 0:
			num.WriteByte(c)

		case strings.IndexByte("+-*/=", c) >= 0:
			if err := flush(); err != nil {
				return nil, err
			}
			op := Token{Kind: TokOperator, Text: string(c)}
			if n := len(out); n > 0 && out[n-1].Kind == TokOperator {
				out[n-1] = op
			} else {
				out = append(out, op)
			}

		case c == '[':
			if err := flush(); err != nil {
				return nil, err
			}
			end := strings.IndexByte(body[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated tag", ErrInvalidTemplate)
			}
			tk, ok := tagToken(body[i : i+end+1])
			if !ok {
				return nil, fmt.Errorf("%w: empty tag", ErrInvalidTemplate)
			}
			out = append(out, tk)
			i += end

		case c >= '0' && c <= '9', c == '.':
			num.WriteByte(c)

		case c == ' ', c == '\t', c == '\n', c == '\r':
			if err := flush(); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidTemplate, c)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// tagToken classifies one bracketed tag with the shared tag grammar.
func tagToken(raw string) (Token, bool) {
	found := tags.Scan(raw)
	if len(found) != 1 {
		return Token{}, false
	}
	tg := found[0]
	switch tg.Kind {
	case tags.KindFormat:
		return Token{Kind: TokFormat, Text: tg.Name}, true
	case tags.KindKeyword:
		return Token{Kind: TokKeyword, Text: tg.Name}, true
	case tags.KindNumber:
		v, _ := strconv.ParseFloat(strings.TrimSpace(tg.Name), 64)
		return Token{Kind: TokNumber, Text: tg.Name, Value: v}, true
	default:
		return Token{Kind: TokField, Text: tg.Name}, true
	}
}

// Dependencies lists the field tags of the body in first-seen order.
func (t *Template) Dependencies() []string {
	return tags.Dependencies(t.Body)
}

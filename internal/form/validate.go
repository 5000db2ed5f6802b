// internal/form/validate.go
//
// Submission validation against field rules.
//
// Context
//   Every field carries a validation rule.  Before a submission reaches the
//   write query builder, Validate checks each submitted value against its
//   rule and collects field-scoped errors.  A failed validation refuses the
//   whole write; nothing is partially applied.
//
// Rules
//   •  "no" or empty – nothing to check.
//   •  "yes" – a value is required.
//   •  "email-regex" – required, and must look like an email address.
//   •  "/pattern/flags" – required, and must match the regular expression.
//   •  any other value names a field this one must match, e.g. a password
//      confirmation.
//
// Workflow
//   •  A full check (insert) treats absent fields as empty.  A partial
//      check (update) only looks at fields that were submitted.
//   •  Readonly fields the actor cannot write, computed fields, and utility
//      elements are never validated; their values are dropped later.
//   •  Errors name the field and carry a user-facing message built from the
//      field title.
//
//------------------------------------------------------------------------------

package form

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yanizio/participants/internal/column"
	"github.com/yanizio/participants/internal/field"
)

// Rule values with fixed meaning.
const (
	RuleNone     = "no"
	RuleRequired = "yes"
	RuleEmail    = "email-regex"
	RuleCaptcha  = "captcha"
)

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+'-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ErrorField describes a single validation failure so the caller can
// render a field-level message.
type ErrorField struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ValidationError wraps []ErrorField.  It lets callers distinguish user
// input errors from system failures via errors.As or IsValidationError.
type ValidationError struct{ Fields []ErrorField }

func (ve ValidationError) Error() string {
	if len(ve.Fields) == 1 {
		return "validation failed: " + ve.Fields[0].Message
	}
	return fmt.Sprintf("validation failed: %d fields", len(ve.Fields))
}

// Options selects which fields Validate looks at.
type Options struct {
	// Full treats absent fields as empty (insert).
	Full bool
	Mode column.Mode
}

// Validate checks values against snap.  A nil result means the
// submission may be written.
func Validate(snap *field.Snapshot, values map[string]column.Raw, o Options) []ErrorField {
	var errs []ErrorField
	for _, f := range snap.Writing() {
		if f.IsDynamic() || column.ReadonlyBlocked(f, o.Mode) {
			continue
		}
		if o.Mode.Signup && !f.Signup {
			continue
		}
		raw, present := values[f.Name]
		if !present && !o.Full {
			continue
		}
		if msg := check(snap, f, raw, values); msg != "" {
			errs = append(errs, ErrorField{Name: f.Name, Message: msg})
		}
	}
	return errs
}

func check(snap *field.Snapshot, f *field.Field, raw column.Raw, all map[string]column.Raw) string {
	rule := strings.TrimSpace(f.Validation)
	switch rule {
	case "", RuleNone, RuleCaptcha:
		return ""
	}
	if raw.Empty() {
		return requiredMsg(f)
	}
	val := strings.TrimSpace(raw.Scalar())

	switch {
	case rule == RuleRequired:
		return ""
	case rule == RuleEmail:
		if !emailRe.MatchString(val) {
			return invalidMsg(f)
		}
		return ""
	case IsRegexRule(rule):
		re, err := CompileRule(rule)
		if err != nil || !re.MatchString(val) {
			return invalidMsg(f)
		}
		return ""
	}

	// Rule names another field.
	other, ok := snap.Field(rule)
	if !ok {
		return ""
	}
	if strings.TrimSpace(all[other.Name].Scalar()) != val {
		return fmt.Sprintf("The %s field must match the %s field.", title(f), title(other))
	}
	return ""
}

// IsRegexRule reports a /pattern/flags rule.
func IsRegexRule(rule string) bool {
	return len(rule) > 2 && rule[0] == '/' && strings.LastIndexByte(rule, '/') > 0
}

// CompileRule turns a /pattern/flags rule into a Go regexp.  The i, m, s,
// and U flags are honoured; others are ignored.
func CompileRule(rule string) (*regexp.Regexp, error) {
	end := strings.LastIndexByte(rule, '/')
	pattern, flags := rule[1:end], rule[end+1:]
	var keep strings.Builder
	for _, c := range flags {
		if strings.ContainsRune("imsU", c) {
			keep.WriteRune(c)
		}
	}
	if keep.Len() > 0 {
		pattern = "(?" + keep.String() + ")" + pattern
	}
	return regexp.Compile(pattern)
}

func title(f *field.Field) string {
	if f.Title != "" {
		return f.Title
	}
	return f.Name
}

// user-friendly default messages
func requiredMsg(f *field.Field) string {
	return fmt.Sprintf("The %s field is required.", title(f))
}
func invalidMsg(f *field.Field) string {
	return fmt.Sprintf("The %s field appears to be incorrect.", title(f))
}

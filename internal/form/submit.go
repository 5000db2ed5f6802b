// internal/form/submit.go
//
// Consolidated submit helper.
//
// Context
//   Most handlers want one call that parses the request body, validates
//   it against the field rules, and returns the submission or a
//   ValidationError.  HandleSubmit provides that so handler code stays
//   terse.
//
//   Bodies come in two shapes.  HTML forms post url-encoded or multipart
//   values, where repeated keys (or a "name[]" key) carry multi-value
//   fields and "<name>-deletefile" asks to remove an upload.  API clients
//   post a JSON object, where arrays are multi-value fields and null is an
//   explicit NULL.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/yanizio/participants/internal/column"
	"github.com/yanizio/participants/internal/field"
)

// MaxBody caps a submission body.
const MaxBody = 8 << 20

// deleteSuffix marks an upload removal checkbox.
const deleteSuffix = "-deletefile"

// ErrBadBody is returned for an unreadable or malformed body.
var ErrBadBody = errors.New("form: malformed submission body")

// Parse reads r's body into raw values keyed by field name.
func Parse(r *http.Request) (map[string]column.Raw, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		b, err := io.ReadAll(io.LimitReader(r.Body, MaxBody))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadBody, err)
		}
		return ParseJSON(b)
	}

	if ct == "multipart/form-data" {
		if err := r.ParseMultipartForm(MaxBody); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadBody, err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadBody, err)
	}
	return ParseValues(r.PostForm), nil
}

// ParseValues converts posted form values.
func ParseValues(v url.Values) map[string]column.Raw {
	out := make(map[string]column.Raw, len(v))
	var deletes []string
	for key, vals := range v {
		if name, ok := strings.CutSuffix(key, deleteSuffix); ok {
			if len(vals) > 0 && vals[0] != "" && vals[0] != "0" {
				deletes = append(deletes, name)
			}
			continue
		}
		name, isList := strings.CutSuffix(key, "[]")
		if isList || len(vals) > 1 {
			out[name] = column.List(vals...)
			continue
		}
		if len(vals) == 1 {
			out[name] = column.String(vals[0])
		}
	}
	for _, name := range deletes {
		raw := out[name]
		raw.Delete = true
		out[name] = raw
	}
	return out
}

// ParseJSON converts a JSON object body.
func ParseJSON(b []byte) (map[string]column.Raw, error) {
	if !gjson.ValidBytes(b) {
		return nil, ErrBadBody
	}
	root := gjson.ParseBytes(b)
	if !root.IsObject() {
		return nil, ErrBadBody
	}
	out := map[string]column.Raw{}
	root.ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		if base, ok := strings.CutSuffix(name, deleteSuffix); ok {
			if v.Bool() {
				raw := out[base]
				raw.Delete = true
				out[base] = raw
			}
			return true
		}
		prev := out[name]
		var raw column.Raw
		switch {
		case v.Type == gjson.Null:
			raw = column.Null()
		case v.IsArray():
			var vals []string
			for _, e := range v.Array() {
				vals = append(vals, e.String())
			}
			raw = column.List(vals...)
		default:
			raw = column.String(v.String())
		}
		raw.Delete = prev.Delete
		out[name] = raw
		return true
	})
	return out, nil
}

// HandleSubmit parses r and validates it against snap.  On validation
// failure it returns a ValidationError (check with IsValidationError).
// On unexpected failures it returns a generic error.
func HandleSubmit(r *http.Request, snap *field.Snapshot, o Options) (map[string]column.Raw, error) {
	values, err := Parse(r)
	if err != nil {
		return nil, err
	}
	if errs := Validate(snap, values, o); len(errs) > 0 {
		return nil, ValidationError{Fields: errs}
	}
	return values, nil
}

// IsValidationError reports whether err came from a failed Validate.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// FieldErrors extracts the field errors from err, if any.
func FieldErrors(err error) []ErrorField {
	var ve ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

package form_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/participants/internal/auth"
	"github.com/yanizio/participants/internal/column"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/field/fieldtest"
	"github.com/yanizio/participants/internal/form"
)

const rulesYAML = `
groups:
  - {name: main, title: Main, mode: public, order: 1}
fields:
  - {name: name, title: Name, group: main, order: 1, form_element: text-line, validation: "yes", signup: true}
  - {name: email, title: Email, group: main, order: 2, form_element: text-line, validation: email-regex, signup: true}
  - {name: zip, title: Zip Code, group: main, order: 3, form_element: text-line, validation: "/^\\d{5}$/"}
  - {name: code, title: Code, group: main, order: 4, form_element: text-line, validation: "/^abc$/i"}
  - {name: pass, title: Password, group: main, order: 5, form_element: password}
  - {name: pass2, title: Confirm, group: main, order: 6, form_element: password, validation: pass}
  - {name: note, title: Note, group: main, order: 7, form_element: text-line, validation: "no"}
  - {name: locked, title: Locked, group: main, order: 8, form_element: text-line, readonly: true, validation: "yes"}
`

func rules(t *testing.T) *field.Snapshot {
	t.Helper()
	s, err := field.SnapshotFromYAML([]byte(rulesYAML))
	require.NoError(t, err)
	return s
}

var member = column.Mode{Actor: auth.Actor{UserID: 1, Capability: auth.Subscriber}}

func names(errs []form.ErrorField) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Name
	}
	return out
}

func TestValidateFullSubmission(t *testing.T) {
	snap := rules(t)
	good := map[string]column.Raw{
		"name":  column.String("Ann"),
		"email": column.String("ann@example.org"),
		"zip":   column.String("12345"),
		"code":  column.String("ABC"),
		"pass":  column.String("s3cret"),
		"pass2": column.String("s3cret"),
	}
	assert.Empty(t, form.Validate(snap, good, form.Options{Full: true, Mode: member}))

	bad := map[string]column.Raw{
		"email": column.String("not-an-email"),
		"zip":   column.String("1234"),
		"code":  column.String("abd"),
		"pass":  column.String("a"),
		"pass2": column.String("b"),
	}
	errs := form.Validate(snap, bad, form.Options{Full: true, Mode: member})
	assert.Equal(t, []string{"name", "email", "zip", "code", "pass2"}, names(errs))
	assert.Equal(t, "The Name field is required.", errs[0].Message)
	assert.Equal(t, "The Email field appears to be incorrect.", errs[1].Message)
	assert.Equal(t, "The Confirm field must match the Password field.", errs[4].Message)
}

func TestValidatePartialSkipsAbsent(t *testing.T) {
	snap := rules(t)
	errs := form.Validate(snap, map[string]column.Raw{"note": column.String("")}, form.Options{Mode: member})
	assert.Empty(t, errs)

	errs = form.Validate(snap, map[string]column.Raw{"name": column.String("  ")}, form.Options{Mode: member})
	assert.Equal(t, []string{"name"}, names(errs))
}

func TestValidateReadonlyAndSignup(t *testing.T) {
	snap := rules(t)
	// A member cannot write locked, so its rule does not apply.
	errs := form.Validate(snap, map[string]column.Raw{"locked": column.String("")}, form.Options{Mode: member})
	assert.Empty(t, errs)

	editor := column.Mode{Actor: auth.Actor{Capability: auth.Editor}}
	errs = form.Validate(snap, map[string]column.Raw{"locked": column.String("")}, form.Options{Mode: editor})
	assert.Equal(t, []string{"locked"}, names(errs))

	// Signup only checks signup fields.
	signup := column.Mode{Signup: true}
	errs = form.Validate(snap, map[string]column.Raw{}, form.Options{Full: true, Mode: signup})
	assert.Equal(t, []string{"name", "email"}, names(errs))
}

func TestValidateSkipsComputedFields(t *testing.T) {
	snap := fieldtest.Snapshot(t)
	errs := form.Validate(snap, map[string]column.Raw{"first_name": column.String("Ann"), "email": column.String("a@b.co")},
		form.Options{Full: true, Mode: member})
	assert.Empty(t, errs)
}

func TestRegexRule(t *testing.T) {
	assert.True(t, form.IsRegexRule("/x/"))
	assert.False(t, form.IsRegexRule("pass"))
	assert.False(t, form.IsRegexRule("/"))

	re, err := form.CompileRule("/^a.b$/si")
	require.NoError(t, err)
	assert.True(t, re.MatchString("A\nB"))

	_, err = form.CompileRule("/([/")
	assert.Error(t, err)
}

func TestParseValues(t *testing.T) {
	v := url.Values{
		"name":             {"Ann"},
		"interests[]":      {"hike", "read"},
		"tags":             {"a", "b"},
		"photo-deletefile": {"1"},
		"cv-deletefile":    {"0"},
	}
	got := form.ParseValues(v)
	assert.Equal(t, column.String("Ann"), got["name"])
	assert.Equal(t, column.List("hike", "read"), got["interests"])
	assert.Equal(t, column.List("a", "b"), got["tags"])
	assert.True(t, got["photo"].Delete)
	assert.False(t, got["photo"].Present)
	_, ok := got["cv"]
	assert.False(t, ok)
}

func TestParseJSON(t *testing.T) {
	got, err := form.ParseJSON([]byte(`{"name":"Ann","age":30,"bio":null,"interests":["hike","read"],"photo-deletefile":true}`))
	require.NoError(t, err)
	assert.Equal(t, column.String("Ann"), got["name"])
	assert.Equal(t, column.String("30"), got["age"])
	assert.True(t, got["bio"].Null)
	assert.Equal(t, []string{"hike", "read"}, got["interests"].List)
	assert.True(t, got["photo"].Delete)

	_, err = form.ParseJSON([]byte(`[1,2]`))
	assert.ErrorIs(t, err, form.ErrBadBody)
	_, err = form.ParseJSON([]byte(`{"a":`))
	assert.ErrorIs(t, err, form.ErrBadBody)
}

func TestHandleSubmit(t *testing.T) {
	snap := rules(t)
	body := url.Values{"name": {""}, "email": {"ann@example.org"}}.Encode()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err := form.HandleSubmit(r, snap, form.Options{Mode: member})
	require.Error(t, err)
	assert.True(t, form.IsValidationError(err))
	assert.Equal(t, []string{"name"}, names(form.FieldErrors(err)))
	assert.False(t, form.IsValidationError(errors.New("db down")))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Ann"}`))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	got, err := form.HandleSubmit(r, snap, form.Options{Mode: member})
	require.NoError(t, err)
	assert.Equal(t, "Ann", got["name"].Str)
}

package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanClassifies(t *testing.T) {
	got := Scan("[a] [value:b] [#3_days] [?round_2] [12.5]")
	kinds := make([]Kind, 0, len(got))
	names := make([]string, 0, len(got))
	for _, tg := range got {
		kinds = append(kinds, tg.Kind)
		names = append(names, tg.Name)
	}
	assert.Equal(t, []Kind{KindField, KindValue, KindKeyword, KindFormat, KindNumber}, kinds)
	assert.Equal(t, []string{"a", "b", "3_days", "round_2", "12.5"}, names)
	assert.Equal(t, 4, got[1].Start)
}

func TestDependencies(t *testing.T) {
	assert.Equal(t, []string{"first", "last"}, Dependencies("[first] [last] ([#current_year])"))
	assert.Equal(t, []string{"a", "b"}, Dependencies("[a]+[b]*[a]=[?round_2]"))
	assert.Equal(t, []string{"x"}, Dependencies("[value:x] / [x]"))
	assert.Empty(t, Dependencies("no tags [?date]"))
}

func TestReplaceAndClean(t *testing.T) {
	tmpl := "Hello [name], you are [age]"

	got := Clean(Replace(tmpl, map[string]string{"name": "Ann", "age": "30"}))
	assert.Equal(t, "Hello Ann, you are 30", got)

	got = Clean(Replace(tmpl, map[string]string{"name": "Ann"}))
	assert.Equal(t, "Hello Ann, you are", got)
	assert.NotContains(t, got, "[age]")
}

func TestCleanArtifacts(t *testing.T) {
	cases := map[string]string{
		"[city], [state], [zip]":    "",
		"Boston, [state], 02110":    "Boston, 02110",
		"  Ann   Lee  ":             "Ann Lee",
		"Ann ([nick]) Lee":          "Ann Lee",
		", leading and trailing , ": "leading and trailing",
		"a ,b":                      "a,b",
		"one,,two":                  "one,two",
	}
	for in, want := range cases {
		assert.Equal(t, want, Clean(in), in)
	}
}

func TestHasTags(t *testing.T) {
	assert.True(t, HasTags("x [y]"))
	assert.False(t, HasTags("x y"))
}

package grading

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  interface{}
		want []string
	}{
		{name: "nil", raw: nil, want: []string{}},
		{name: "plain string", raw: "Paris", want: []string{"Paris"}},
		{name: "number", raw: 42.0, want: []string{"42"}},
		{name: "string list", raw: []string{"cat", "dog"}, want: []string{"cat", "dog"}},
		{name: "interface list", raw: []interface{}{"cat", json.Number("3")}, want: []string{"cat", "3"}},
		{name: "bracket json in string", raw: `["cat","dog"]`, want: []string{"cat", "dog"}},
		{name: "bracket json in single element list", raw: []string{`["cat","dog"]`}, want: []string{"cat", "dog"}},
		{name: "broken bracket json kept literally", raw: `[cat, dog]`, want: []string{"[cat, dog]"}},
		{name: "bracket json that is not a list", raw: []string{`[1`}, want: []string{"[1"}},
		{name: "multi element list is not unwrapped", raw: []string{`["a"]`, "b"}, want: []string{`["a"]`, "b"}},
		{name: "blank candidates dropped", raw: []string{"  ", "yes"}, want: []string{"yes"}},
		{name: "unsupported shape", raw: map[string]string{"a": "b"}, want: []string{}},
		{name: "nested list dropped", raw: `[["a","b"]]`, want: []string{}},
		{name: "nested list beside scalars", raw: []interface{}{[]interface{}{"a"}, "c"}, want: []string{"c"}},
		{name: "blank beside bracket json", raw: []string{" ", `["a","b"]`}, want: []string{"a", "b"}},
		{name: "doubly encoded bracket json", raw: `["[\"a\",\"b\"]"]`, want: []string{"a", "b"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Normalize(tc.raw))
		})
	}
}

func TestNormalizePreservesCasing(t *testing.T) {
	require.Equal(t, []string{"New York"}, Normalize("New York"))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []interface{}{
		"Paris",
		[]string{"a", "b"},
		`["cat","dog"]`,
		[]string{`["cat","dog"]`},
		[]string{" ", `["x"]`},
		`["[\"a\",\"b\"]"]`,
		`[["a","b"]]`,
		[]interface{}{[]interface{}{"a", "b"}, "c"},
	}

	for _, raw := range inputs {
		once := Normalize(raw)
		require.Equal(t, once, Normalize(once))
	}
}

func TestNormalizeJSONColumn(t *testing.T) {
	require.Equal(t, []string{"cat", "dog"}, NormalizeJSON([]byte(`["[\"cat\",\"dog\"]"]`)))
	require.Equal(t, []string{"true"}, NormalizeJSON([]byte(`"true"`)))
	require.Equal(t, []string{"not json"}, NormalizeJSON([]byte(`not json`)))
	require.Empty(t, NormalizeJSON(nil))
	require.Empty(t, NormalizeJSON([]byte(`null`)))
	require.Equal(t, []string{"a"}, Normalize(json.RawMessage(`["a"]`)))
}

func TestNormalizedBracketReferenceMatchesExactly(t *testing.T) {
	candidates := Normalize([]string{`["cat","dog"]`})
	require.Equal(t, []string{"cat", "dog"}, candidates)
	require.True(t, ExactMatch("Dog", candidates))
}

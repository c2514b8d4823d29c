package harness

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"null", nil, `null`},
		{"bool", true, `true`},
		{"int", 42, `42`},
		{"int64", int64(-7), `-7`},
		{"float", 1.5, `1.5`},
		{"small float", 1e-7, `1e-07`},
		{"integral number", json.Number("3.0"), `3`},
		{"big integer", json.Number("9007199254740993"), `9007199254740993`},
		{"decimal number", json.Number("0.25"), `0.25`},
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"line separator kept", "a\u2028b", "\"a\u2028b\""},
		{"control characters", "a\n\t\x01", `"a\n\t\u0001"`},
		{"quote and backslash", `"\`, `"\"\\"`},
		{"nfc normalized", "e\u0301", "\"\u00e9\""},
		{"nested", map[string]any{"b": []any{1, "x"}, "a": map[string]any{}}, `{"a":{},"b":[1,"x"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_KeyOrderUTF16(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 byte order but after it in
	// UTF-16 code units, where the emoji is a surrogate pair.
	in := map[string]any{"\U0001F600": 1, "｡": 2, "a": 3}
	got, err := MarshalCanonical(in)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":3,\"\U0001F600\":1,\"｡\":2}", string(got))
}

func TestMarshalCanonical_Errors(t *testing.T) {
	_, err := MarshalCanonical(math.Inf(1))
	require.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"k": struct{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `value for key "k"`)
}

func TestCanonicalJSON_ReordersKeys(t *testing.T) {
	got, err := CanonicalJSON([]byte(`{"z": 1, "a": [true, null, 2.50]}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null,2.5],"z":1}`, string(got))

	_, err = CanonicalJSON([]byte(`{`))
	require.Error(t, err)
}

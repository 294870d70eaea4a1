package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical_SortsKeysAndNests(t *testing.T) {
	type store struct {
		Name    string `json:"name"`
		MinZoom int    `json:"min_zoom"`
		MaxZoom int    `json:"max_zoom"`
	}
	v := map[string]any{
		"styles": []any{map[string]any{"stores": []store{{Name: "/store/a", MinZoom: 0, MaxZoom: 5}}}},
		"active": true,
		"Zeta":   "upper sorts first",
	}

	got, err := Canonical(v)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Zeta":"upper sorts first","active":true,"styles":[{"stores":[{"max_zoom":5,"min_zoom":0,"name":"/store/a"}]}]}`,
		string(got))
}

func TestCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := Canonical("a<b>&c")
	require.NoError(t, err)
	assert.Equal(t, `"a<b>&c"`, string(got))
}

func TestCanonical_NFC(t *testing.T) {
	decomposed := "Mu\u0308nchen" // u + combining diaeresis
	composed := "M\u00fcnchen"

	a, err := Canonical(decomposed)
	require.NoError(t, err)
	b, err := Canonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestCanonical_LineSeparatorsLiteral(t *testing.T) {
	got, err := Canonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	// A literal backslash followed by the text u2028 stays escaped.
	got, err = Canonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got))
}

func TestCanonical_Rejects(t *testing.T) {
	_, err := Canonical(map[string]any{"x": 1.5})
	assert.ErrorContains(t, err, "floats are forbidden")

	_, err = Canonical(map[string]any{"x": nil})
	assert.ErrorContains(t, err, "null is forbidden")
}

func TestLessUTF16(t *testing.T) {
	// U+1F600 sorts after U+FF61 by UTF-8 bytes but before it by UTF-16 units.
	assert.True(t, lessUTF16("\U0001F600", "\uFF61"))
	assert.True(t, lessUTF16("a", "ab"))
	assert.False(t, lessUTF16("b", "a"))
}

func TestHash_DomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, Hash(DomainConfig, data), Hash(DomainTrace, data))
	assert.Len(t, Hash(DomainConfig, data), 64)
	assert.Equal(t, Hash(DomainConfig, data), Hash(DomainConfig, data))
}

func TestOf_IndependentOfMapOrder(t *testing.T) {
	a := map[string]any{"srv_root": "/srv", "render_service": "renderd.service"}
	b := map[string]any{"render_service": "renderd.service", "srv_root": "/srv"}

	da, err := Of(DomainConfig, a)
	require.NoError(t, err)
	db, err := Of(DomainConfig, b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

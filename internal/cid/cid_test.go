package cid

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/chronicle/internal/foundation/errors"
)

func TestFromContentDeterminism(t *testing.T) {
	payloads := [][]byte{
		nil,
		{},
		[]byte("hello"),
		[]byte(strings.Repeat("x", 1<<16)),
	}
	for _, p := range payloads {
		a := FromContent(p)
		b := FromContent(p)
		assert.True(t, a.Equal(b), "same content must yield same id")
		assert.Equal(t, a.String(), b.String())
	}
}

func TestFromContentInequality(t *testing.T) {
	a := FromContent([]byte("payload-a"))
	b := FromContent([]byte("payload-b"))
	assert.False(t, a.Equal(b), "different content must yield different ids")

	// A single flipped bit changes the id.
	data := []byte("payload-a")
	data[0] ^= 1
	assert.False(t, FromContent(data).Equal(a))
}

func TestStringParseRoundTrip(t *testing.T) {
	id := FromContent([]byte("round trip me"))

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equal(id))
	assert.Equal(t, id.String(), parsed.String())
}

func TestParseRejectsMalformedInput(t *testing.T) {
	valid := FromContent([]byte("x")).String()
	cases := []string{
		"",
		"c1-",
		"not-a-cid",
		valid[:len(valid)-1],          // truncated
		valid + "00",                  // too long
		"c2-" + valid[3:],             // wrong prefix
		valid[:len(valid)-2] + "zz",   // non-hex tail
		strings.ToUpper(valid),
	}
	for _, in := range cases {
		_, err := Parse(in)
		require.Error(t, err, "input %q should not parse", in)
		assert.True(t, errors.Is(err, ErrMalformedCid))
	}
}

func TestZeroValue(t *testing.T) {
	var zero ContentID
	assert.True(t, zero.IsZero())
	assert.False(t, FromContent(nil).IsZero(), "hash of empty content is not the zero id")
}

func TestJSONRoundTrip(t *testing.T) {
	type doc struct {
		Ref ContentID `json:"ref"`
	}
	orig := doc{Ref: FromContent([]byte("json"))}

	data, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.Contains(t, string(data), orig.Ref.String())

	var decoded doc
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Ref.Equal(orig.Ref))
}

func TestMapKeyUsability(t *testing.T) {
	seen := map[ContentID]int{}
	a := FromContent([]byte("k"))
	seen[a]++
	seen[FromContent([]byte("k"))]++
	assert.Equal(t, 2, seen[a])
}

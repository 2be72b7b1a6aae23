package jsoncodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchResult struct {
	Results []string `json:"results"`
	TraceID string   `json:"trace_id,omitempty"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := searchResult{Results: []string{"Response: 5", "Response: 7"}, TraceID: "abc"}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":["Response: 5","Response: 7"],"trace_id":"abc"}`, string(data))

	var out searchResult
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestMarshalEscapesHTML(t *testing.T) {
	data, err := Marshal(map[string]string{"q": "<b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"\u003cb\u003e"}`, string(data))
}

func TestEncodeAppendsNewline(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, Encode(buf, searchResult{Results: []string{}}))
	assert.Equal(t, "{\"results\":[]}\n", buf.String())
}

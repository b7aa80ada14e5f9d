package engine

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEReaderEvents(t *testing.T) {
	body := ": ping\n\nevent: content_block_delta\ndata: {\"a\":1}\n\ndata: line1\ndata: line2\n\ndata: [DONE]"
	r := NewSSEReader(strings.NewReader(body))

	ev, data, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "content_block_delta", ev)
	assert.Equal(t, `{"a":1}`, data)

	ev, data, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "", ev)
	assert.Equal(t, "line1\nline2", data)

	_, data, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "[DONE]", data)

	_, _, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "b"},
	})
	assert.Equal(t, "a\n\nb", system)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "hi"}}, rest)
}

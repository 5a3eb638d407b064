package intercept

import (
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainText(t *testing.T) {
	idx := NewMessageIndex()
	tests := []struct {
		in   string
		want string
	}{
		{"plain words", "plain words"},
		{"**bold** and _em_", "bold and em"},
		{"# Title\n\n- one\n- two", "Title one two"},
		{"see [docs](https://example.com)", "see docs"},
		{"```\ncode line\n```", "code line"},
		{"line one\nline two", "line one line two"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, idx.PlainText(tt.in), "input %q", tt.in)
	}
}

func TestMessageIndex_RecordBounded(t *testing.T) {
	idx := NewMessageIndex()
	for i := 0; i < maxIndexEntries+10; i++ {
		idx.Record(fmt.Sprintf("m%d", i), "text")
	}
	assert.Equal(t, maxIndexEntries, idx.Len())

	_, ok := idx.MessageText("m0")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = idx.MessageText(fmt.Sprintf("m%d", maxIndexEntries+9))
	assert.True(t, ok)

	idx.Record("", "ignored")
	idx.Record("blank", "   ")
	_, ok = idx.MessageText("blank")
	assert.False(t, ok)
}

func TestObserveConversation_Invalid(t *testing.T) {
	idx := NewMessageIndex()
	assert.Error(t, idx.ObserveConversation([]byte("not json")))
}

func TestParseIDs(t *testing.T) {
	u, err := url.Parse("https://chatgpt.com/backend-api/synthesize?message_id=m1&conversation_id=c1&voice=x")
	require.NoError(t, err)
	conv, msg := ParseIDs(u)
	assert.Equal(t, "c1", conv)
	assert.Equal(t, "m1", msg)

	conv, msg = ParseIDs(nil)
	assert.Empty(t, conv)
	assert.Empty(t, msg)
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:audio/mpeg;base64,AQI=", DataURL("audio/mpeg; charset=binary", []byte{1, 2}))
	assert.Equal(t, "data:audio/aac;base64,", DataURL("", nil))
	assert.Equal(t, "data:audio/aac;base64,", DataURL("application/octet-stream", nil))
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", 200)
	assert.Equal(t, 150, len([]rune(truncate(long, snippetLength))))
	assert.Equal(t, "short", truncate("short", snippetLength))
}

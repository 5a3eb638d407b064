package intercept

import (
	"encoding/base64"
	"mime"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMarker identifies synthesis calls by URL substring.
	DefaultMarker = "/backend-api/synthesize"
	// UnknownName is used when a message's text cannot be resolved.
	UnknownName = "Unknown"
	// UnknownSnippet is shown in retry prompts for unresolvable messages.
	UnknownSnippet = "Unknown message"

	snippetLength = 150
	defaultMIME   = "audio/aac"
)

// Message is the structured payload delivered for every completed download.
type Message struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	AudioData      string `json:"audioData"` // base64 data URL
	Name           string `json:"name"`
	QueueLength    int    `json:"queueLength"` // jobs remaining after this one
}

// ParseIDs extracts the conversation and message ids from a synthesis URL.
// Missing parameters yield empty strings.
func ParseIDs(u *url.URL) (conversationID, messageID string) {
	if u == nil {
		return "", ""
	}
	q := u.Query()
	return q.Get("conversation_id"), q.Get("message_id")
}

// DataURL encodes data as a base64 data URL of the given content type.
func DataURL(contentType string, data []byte) string {
	mediaType := defaultMIME
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "application/octet-stream" {
			mediaType = mt
		}
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

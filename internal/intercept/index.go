package intercept

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxIndexEntries bounds the message index; the oldest entries go first.
const maxIndexEntries = 4096

// NameResolver looks up the text of a message rendered by the page.
type NameResolver interface {
	MessageText(messageID string) (string, bool)
}

// MessageIndex remembers the text of messages seen in conversation payloads
// passing through the proxy, or reported by the page itself.
type MessageIndex struct {
	mu     sync.RWMutex
	texts  map[string]string
	order  []string
	titles map[string]string
	md     goldmark.Markdown
}

// NewMessageIndex creates an empty index.
func NewMessageIndex() *MessageIndex {
	return &MessageIndex{
		texts:  make(map[string]string),
		titles: make(map[string]string),
		md:     goldmark.New(),
	}
}

// MessageText implements NameResolver.
func (idx *MessageIndex) MessageText(messageID string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	t, ok := idx.texts[messageID]
	return t, ok
}

// Title returns the title of a conversation seen in a payload.
func (idx *MessageIndex) Title(conversationID string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	t, ok := idx.titles[conversationID]
	return t, ok
}

// Len returns the number of indexed messages.
func (idx *MessageIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.texts)
}

// Record stores the markdown text of a message as plain text.
func (idx *MessageIndex) Record(messageID, markdown string) {
	if messageID == "" {
		return
	}
	plain := idx.PlainText(markdown)
	if plain == "" {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.texts[messageID]; !ok {
		idx.order = append(idx.order, messageID)
	}
	idx.texts[messageID] = plain
	for len(idx.order) > maxIndexEntries {
		delete(idx.texts, idx.order[0])
		idx.order = idx.order[1:]
	}
}

type conversationPayload struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Mapping        map[string]struct {
		Message *struct {
			ID      string `json:"id"`
			Content struct {
				Parts []json.RawMessage `json:"parts"`
			} `json:"content"`
		} `json:"message"`
	} `json:"mapping"`
}

// ObserveConversation indexes every message of a conversation document as
// returned by the chat backend.
func (idx *MessageIndex) ObserveConversation(body []byte) error {
	var doc conversationPayload
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("decode conversation: %w", err)
	}

	if doc.ConversationID != "" && doc.Title != "" {
		idx.mu.Lock()
		idx.titles[doc.ConversationID] = doc.Title
		idx.mu.Unlock()
	}

	for _, node := range doc.Mapping {
		if node.Message == nil || node.Message.ID == "" {
			continue
		}
		var parts []string
		for _, raw := range node.Message.Content.Parts {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			idx.Record(node.Message.ID, strings.Join(parts, "\n\n"))
		}
	}
	return nil
}

// PlainText renders markdown to a single line of plain text.
func (idx *MessageIndex) PlainText(markdown string) string {
	src := []byte(markdown)
	doc := idx.md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(src))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		case *ast.AutoLink:
			b.Write(n.Label(src))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(b.String()), " ")
}

package store

import (
	"github.com/sahilm/fuzzy"
)

// searchSource adapts a slice of items to fuzzy.Source. Each item matches on
// its display name followed by its conversation label.
type searchSource []Item

func (s searchSource) String(i int) string {
	item := s[i]
	name := item.ConversationName
	if name == "" {
		name = item.ConversationID
	}
	return item.DisplayName + " " + name
}

func (s searchSource) Len() int { return len(s) }

// Search returns the items fuzzily matching query, best match first. An empty
// query returns every item in list order.
func (s *Store) Search(query string) []Item {
	items := s.Items()
	if query == "" {
		return items
	}

	matches := fuzzy.FindFrom(query, searchSource(items))
	out := make([]Item, 0, len(matches))
	for _, m := range matches {
		out = append(out, items[m.Index])
	}
	return out
}

package playback

import (
	"fmt"

	"github.com/dgnsrekt/audiofetch/internal/store"
)

// Navigation selects which items next/previous step through.
type Navigation string

const (
	// NavigateList steps through the full backing list.
	NavigateList Navigation = "list"
	// NavigateConversation only steps to items of the current conversation.
	NavigateConversation Navigation = "conversation"
)

// ParseNavigation validates a configured navigation scope. Empty selects
// NavigateList.
func ParseNavigation(s string) (Navigation, error) {
	switch Navigation(s) {
	case "", NavigateList:
		return NavigateList, nil
	case NavigateConversation:
		return NavigateConversation, nil
	default:
		return "", fmt.Errorf("unknown navigation scope %q (want list or conversation)", s)
	}
}

// neighbor returns the item step positions away from id (step is +1 or -1)
// within the navigation scope.
func (n Navigation) neighbor(items []store.Item, id string, step int) (store.Item, bool) {
	idx := -1
	for i, item := range items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return store.Item{}, false
	}

	conv := items[idx].ConversationID
	for i := idx + step; i >= 0 && i < len(items); i += step {
		if n == NavigateConversation && items[i].ConversationID != conv {
			continue
		}
		return items[i], true
	}
	return store.Item{}, false
}

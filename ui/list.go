package ui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/audiofetch/internal/store"
	"github.com/dgnsrekt/audiofetch/internal/timefmt"
)

type rowKind int

const (
	rowHeader rowKind = iota
	rowItem
)

// row is one line of the download list: a conversation header or an item.
type row struct {
	kind  rowKind
	group store.Group
	item  store.Item
	// index is the item's position within its conversation.
	index int
}

func (r row) key() string {
	if r.kind == rowHeader {
		return "conv:" + r.group.ConversationID
	}
	return "item:" + r.item.ID
}

func (r row) conversationID() string {
	if r.kind == rowHeader {
		return r.group.ConversationID
	}
	return r.item.ConversationID
}

// buildRows flattens groups into rows, hiding the items of collapsed
// conversations.
func buildRows(groups []store.Group) []row {
	var rows []row
	for _, g := range groups {
		rows = append(rows, row{kind: rowHeader, group: g})
		if g.Collapsed {
			continue
		}
		for i, it := range g.Items {
			rows = append(rows, row{kind: rowItem, group: g, item: it, index: i})
		}
	}
	return rows
}

// buildSearchRows lists matching items without headers.
func buildSearchRows(items []store.Item) []row {
	rows := make([]row, 0, len(items))
	for _, it := range items {
		rows = append(rows, row{kind: rowItem, item: it, index: -1})
	}
	return rows
}

type listModel struct {
	rows   []row
	cursor int
	offset int
	// marked item ids, moved together
	marked map[string]bool
}

func newListModel() listModel {
	return listModel{marked: make(map[string]bool)}
}

// setRows replaces the rows, keeping the cursor on the same row when it
// still exists.
func (l *listModel) setRows(rows []row) {
	var key string
	if r, ok := l.selected(); ok {
		key = r.key()
	}
	l.rows = rows
	for id := range l.marked {
		if !l.hasItem(id) {
			delete(l.marked, id)
		}
	}
	if key != "" {
		for i, r := range rows {
			if r.key() == key {
				l.cursor = i
				return
			}
		}
	}
	l.cursor = min(l.cursor, max(0, len(rows)-1))
}

func (l listModel) hasItem(id string) bool {
	for _, r := range l.rows {
		if r.kind == rowItem && r.item.ID == id {
			return true
		}
	}
	return false
}

func (l listModel) selected() (row, bool) {
	if l.cursor < 0 || l.cursor >= len(l.rows) {
		return row{}, false
	}
	return l.rows[l.cursor], true
}

func (l *listModel) moveCursor(delta int) {
	if len(l.rows) == 0 {
		l.cursor = 0
		return
	}
	l.cursor = max(0, min(len(l.rows)-1, l.cursor+delta))
}

// selectItem puts the cursor on the given item if it is visible.
func (l *listModel) selectItem(id string) {
	for i, r := range l.rows {
		if r.kind == rowItem && r.item.ID == id {
			l.cursor = i
			return
		}
	}
}

// markedIndices returns the positions within the conversation of the
// marked items, or of the selected item when nothing is marked.
func (l listModel) markedIndices(conversationID string) []int {
	var idx []int
	for _, r := range l.rows {
		if r.kind == rowItem && r.item.ConversationID == conversationID && l.marked[r.item.ID] {
			idx = append(idx, r.index)
		}
	}
	if len(idx) == 0 {
		if r, ok := l.selected(); ok && r.kind == rowItem && r.index >= 0 {
			idx = []int{r.index}
		}
	}
	return idx
}

func (l *listModel) toggleMark() {
	r, ok := l.selected()
	if !ok || r.kind != rowItem {
		return
	}
	if l.marked[r.item.ID] {
		delete(l.marked, r.item.ID)
	} else {
		l.marked[r.item.ID] = true
	}
}

// scroll keeps the cursor inside a window of height rows.
func (l *listModel) scroll(height int) {
	if height <= 0 {
		return
	}
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.cursor >= l.offset+height {
		l.offset = l.cursor - height + 1
	}
	l.offset = max(0, min(l.offset, max(0, len(l.rows)-height)))
}

type rowContext struct {
	width    int
	current  string
	playing  bool
	fraction func(id string) float64
}

func (l listModel) view(height int, ctx rowContext) string {
	if len(l.rows) == 0 {
		return itemNoteStyle("  No downloads yet. Play a message's voice in the chat to save it.")
	}
	l.scroll(height)

	var b strings.Builder
	end := min(len(l.rows), l.offset+height)
	for i := l.offset; i < end; i++ {
		b.WriteString(l.rowView(l.rows[i], i == l.cursor, ctx))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (l listModel) rowView(r row, selected bool, ctx rowContext) string {
	gutter := "  "
	if selected {
		gutter = selectedStyle("│ ")
	}

	if r.kind == rowHeader {
		arrow := "▾"
		if r.group.Collapsed {
			arrow = "▸"
		}
		title := truncate.StringWithTail(r.group.Name, uint(max(0, ctx.width-14)), ellipsis) //nolint:gosec
		return gutter + headerStyle(arrow+" "+title) + headerDimStyle(fmt.Sprintf(" (%d)", len(r.group.Items)))
	}

	icon := " "
	if r.item.ID == ctx.current {
		icon = "■"
		if ctx.playing {
			icon = "▶"
		}
	}
	if l.marked[r.item.ID] {
		icon = markedStyle("•")
	}

	var notes []string
	notes = append(notes, timefmt.FormatDuration(r.item.Duration))
	if ctx.fraction != nil {
		if f := ctx.fraction(r.item.ID); f > 0 {
			notes = append(notes, fmt.Sprintf("%d%%", int(f*100)))
		}
	}
	notes = append(notes, timefmt.Ago(r.item.DownloadedAt))
	note := " " + strings.Join(notes, " · ")

	indent := "  "
	if r.index < 0 {
		indent = ""
	}
	prefix := gutter + indent + icon + " "
	avail := max(0, ctx.width-ansi.PrintableRuneWidth(prefix)-runewidth.StringWidth(note))
	title := truncate.StringWithTail(r.item.DisplayName, uint(avail), ellipsis) //nolint:gosec
	pad := strings.Repeat(" ", max(0, avail-runewidth.StringWidth(title)))

	style := itemStyle
	if r.item.ID == ctx.current {
		style = currentItemStyle
	}
	if selected {
		style = selectedStyle
	}
	return prefix + style(title) + pad + itemNoteStyle(note)
}

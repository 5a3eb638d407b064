package ui

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/audiofetch/internal/nowplaying"
	"github.com/dgnsrekt/audiofetch/internal/playback"
	"github.com/dgnsrekt/audiofetch/internal/timefmt"
)

// nowPlayingView renders the player bar: state icon, title, position,
// progress bar and rate.
func nowPlayingView(info nowplaying.Info, width int) string {
	if info.Empty() {
		return itemNoteStyle("  Nothing playing")
	}

	icon := "⏸"
	if info.Playing {
		icon = "▶"
	}
	times := fmt.Sprintf(" %s / %s ", timefmt.FormatTime(info.Elapsed), timefmt.FormatTime(info.Duration))
	rate := " " + playback.FormatRate(info.Rate)
	if info.QueueCount > 0 {
		rate += fmt.Sprintf(" · %d/%d", info.QueueIndex+1, info.QueueCount)
	}

	barWidth := max(0, min(30, width/3))
	title := truncate.StringWithTail(info.Title, uint(max(0, //nolint:gosec
		width-4-barWidth-ansi.PrintableRuneWidth(times)-ansi.PrintableRuneWidth(rate),
	)), ellipsis)

	fraction := 0.0
	if info.Duration > 0 {
		fraction = info.Elapsed / info.Duration
	}
	return fmt.Sprintf("  %s %s%s%s%s",
		currentItemStyle(icon),
		itemStyle(title),
		itemNoteStyle(times),
		progressBar(fraction, barWidth),
		itemNoteStyle(rate),
	)
}

func progressBar(fraction float64, width int) string {
	if width <= 0 {
		return ""
	}
	fraction = max(0, min(1, fraction))
	filled := int(fraction * float64(width))
	return progressFilledStyle(strings.Repeat("━", filled)) +
		progressEmptyStyle(strings.Repeat("─", width-filled))
}

// infoFromState builds now-playing info from an engine snapshot, for the
// moments between engine updates.
func infoFromState(s playback.State) nowplaying.Info {
	if s.Item == nil {
		return nowplaying.Info{}
	}
	return nowplaying.Info{
		ItemID:   s.Item.ID,
		Title:    s.Item.DisplayName,
		Elapsed:  s.CurrentTime,
		Duration: s.Duration,
		Rate:     s.Rate,
		Playing:  s.Playing,
	}
}

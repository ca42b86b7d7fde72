package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// sanitize drops control characters and invalid UTF-8 from metadata and
// error text so it cannot break the terminal.
func sanitize(s string) string {
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == unicode.ReplacementChar:
			return -1
		case r == '\t', r == '\u00a0':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.ToValidUTF8(s, ""))
}

// truncate shortens s to width cells, wide characters included.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(sanitize(s), width, "…")
}

// row puts left and right on one line of exactly width cells.
func row(left, right string, width int) string {
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// progressBar renders "▶  1:23  ▓▓▓░░░  4:56" in width cells.
func progressBar(position, duration time.Duration, width int, playing bool) string {
	status := "▶"
	if !playing {
		status = "⏸"
	}
	pos, dur := formatDuration(position), formatDuration(duration)
	if duration <= 0 {
		return status + "  " + pos
	}

	barWidth := width - lipgloss.Width(status) - lipgloss.Width(pos) - lipgloss.Width(dur) - 6
	if barWidth < 3 {
		return status + "  " + pos + " / " + dur
	}
	filled := min(int(float64(barWidth)*float64(position)/float64(duration)), barWidth)
	bar := strings.Repeat("▓", filled) + strings.Repeat("░", barWidth-filled)
	return status + "  " + pos + "  " + bar + "  " + dur
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/llehouerou/wavebot/internal/notify"
	"github.com/llehouerou/wavebot/internal/playback"
	"github.com/llehouerou/wavebot/internal/song"
	"github.com/llehouerou/wavebot/internal/state"
)

const maxListRows = 15

func (m Model) View() string {
	inner := max(m.width-4, 20)
	ps := m.player.State()

	sections := []string{
		row(gradient("wavebot", primary, secondary), mutedStyle.Render(ps.Symbol()+" "+ps.String()), inner+2),
		panelStyle.Width(inner).Render(m.nowPlaying(inner - 2)),
		panelStyle.Width(inner).Render(m.queueView(inner - 2)),
	}
	if list := m.listView(inner - 2); list != "" {
		sections = append(sections, panelStyle.Width(inner).Render(list))
	}
	if events := m.eventsView(inner); events != "" {
		sections = append(sections, events)
	}
	sections = append(sections, m.statusView(inner+2), m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) nowPlaying(width int) string {
	s := m.player.CurrentSong()
	if s == nil {
		return subtleStyle.Render("Nothing playing")
	}
	title := titleStyle.Render(truncate(s.Title(), width))
	var meta []string
	if d := s.Description(); d != "" {
		meta = append(meta, d)
	}
	if a := s.Album(); a != "" {
		meta = append(meta, a)
	}
	if by := s.RequestedBy(); by != "" {
		meta = append(meta, "requested by "+by)
	}
	bar := progressBar(m.player.Position(), s.Duration(), width, m.player.State() == playback.StatePlaying)
	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		mutedStyle.Render(truncate(strings.Join(meta, " · "), width)),
		baseStyle.Render(bar),
	)
}

func (m Model) queueView(width int) string {
	queued := m.player.QueueSongs()
	header := titleStyle.Render(fmt.Sprintf("Queue (%d)", len(queued)))
	if len(queued) == 0 {
		return header + "\n" + subtleStyle.Render("Empty, suggestions will play")
	}
	lines := numbered(queued[:min(len(queued), maxListRows)], width)
	if more := len(queued) - maxListRows; more > 0 {
		lines = append(lines, subtleStyle.Render(fmt.Sprintf("… %d more", more)))
	}
	return header + "\n" + strings.Join(lines, "\n")
}

func numbered(songs []*song.Song, width int) []string {
	return lo.Map(songs, func(s *song.Song, i int) string {
		num := mutedStyle.Render(fmt.Sprintf("%2d.", i+1))
		dur := ""
		if s.Duration() > 0 {
			dur = subtleStyle.Render(formatDuration(s.Duration()))
		}
		label := truncate(s.String(), width-lipgloss.Width(dur)-5)
		return row(num+" "+baseStyle.Render(label), dur, width)
	})
}

func (m Model) listView(width int) string {
	switch m.list {
	case listResults:
		header := titleStyle.Render("Results")
		if len(m.results) == 0 {
			return header + "\n" + subtleStyle.Render("No results")
		}
		return header + "\n" + strings.Join(numbered(m.results, width), "\n")
	case listHistory:
		header := titleStyle.Render("Recently played")
		if len(m.played) == 0 {
			return header + "\n" + subtleStyle.Render("Nothing played yet")
		}
		lines := lo.Map(m.played, func(p state.Played, _ int) string {
			when := subtleStyle.Render(humanize.RelTime(p.PlayedAt, m.now(), "ago", "from now"))
			label := p.Title
			if p.Artist != "" {
				label = p.Artist + " - " + p.Title
			}
			label = truncate(label, width-lipgloss.Width(when)-2)
			return row(baseStyle.Render(label), when, width)
		})
		return header + "\n" + strings.Join(lines, "\n")
	case listNone:
	}
	return ""
}

func (m Model) eventsView(width int) string {
	lines := lo.Map(m.recent, func(e notify.Event, _ int) string {
		style := mutedStyle
		if e.Cause == notify.LoadFailed {
			style = errorStyle
		}
		return style.Render(truncate(e.Time.Format("15:04")+" "+e.String(), width))
	})
	return strings.Join(lines, "\n")
}

func (m Model) statusView(width int) string {
	if m.status == "" {
		return ""
	}
	text := truncate(m.status, width)
	switch {
	case m.failed:
		return errorStyle.Render(text)
	case m.busy:
		return mutedStyle.Render(text)
	}
	return successStyle.Render(text)
}

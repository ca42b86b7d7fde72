package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/llehouerou/wavebot/internal/errmsg"
	"github.com/llehouerou/wavebot/internal/notify"
	"github.com/llehouerou/wavebot/internal/playback"
	"github.com/llehouerou/wavebot/internal/song"
	"github.com/llehouerou/wavebot/internal/state"
)

// tickMsg refreshes the progress bar.
type tickMsg time.Time

type eventMsg notify.Event

type eventsClosedMsg struct{}

// playerMsg reports a player change. failure is set when output failed.
type playerMsg struct {
	failure *playback.ErrorEvent
}

type searchDoneMsg struct {
	query string
	songs []*song.Song
	err   error
}

type lookupDoneMsg struct {
	key  string
	song *song.Song
	err  error
}

type historyMsg struct {
	rows []state.Played
	err  error
}

type cacheClearedMsg struct {
	removed int
	size    int64
	err     error
}

// actionDoneMsg reports the outcome of a blocking player command.
type actionDoneMsg struct {
	op     errmsg.Op
	status string
	err    error
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) watchEvents() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case e := <-m.events.Events:
			return eventMsg(e)
		case <-m.events.Done:
			return eventsClosedMsg{}
		}
	}
}

func (m Model) watchPlayer() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-m.changes.StateChanged:
		case <-m.changes.TrackChanged:
		case <-m.changes.QueueChanged:
		case e := <-m.changes.Error:
			if e.Stage == playback.StageOutput {
				return playerMsg{failure: &e}
			}
		case <-m.changes.Done:
			return nil
		}
		return playerMsg{}
	}
}

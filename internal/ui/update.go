package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"

	"github.com/llehouerou/wavebot/internal/errmsg"
	"github.com/llehouerou/wavebot/internal/notify"
	"github.com/llehouerou/wavebot/internal/song"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			m.list = listNone
			m.input.Reset()
			return m, nil
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			return m.execute(line)
		}

	case tickMsg:
		return m, tickCmd()

	case eventMsg:
		m.recent = append(m.recent, notify.Event(msg))
		if excess := len(m.recent) - maxEventLines; excess > 0 {
			m.recent = slices.Delete(m.recent, 0, excess)
		}
		return m, m.watchEvents()

	case eventsClosedMsg:
		return m, nil

	case playerMsg:
		if msg.failure != nil {
			m.setError(errmsg.Format(errmsg.OpPlaybackOutput, msg.failure.Err))
		}
		return m, m.watchPlayer()

	case searchDoneMsg:
		m.busy = false
		m.results = msg.songs
		m.list = listResults
		switch {
		case len(msg.songs) == 0 && msg.err != nil:
			m.setError(errmsg.FormatWith(errmsg.OpSearch, msg.query, msg.err))
		case msg.err != nil:
			m.setError(fmt.Sprintf("%d results, some providers failed: %v", len(msg.songs), msg.err))
		default:
			m.setStatus(fmt.Sprintf("%d results for %q, add <n> to queue", len(msg.songs), msg.query))
		}
		return m, nil

	case lookupDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(errmsg.FormatWith(errmsg.OpLookup, msg.key, msg.err))
			return m, nil
		}
		m.queue(msg.song)
		return m, nil

	case historyMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(errmsg.Format(errmsg.OpHistoryLoad, msg.err))
			return m, nil
		}
		m.played = msg.rows
		m.list = listHistory
		m.setStatus(fmt.Sprintf("%d recently played", len(msg.rows)))
		return m, nil

	case cacheClearedMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(errmsg.Format(errmsg.OpCacheClear, msg.err))
			return m, nil
		}
		m.setStatus(fmt.Sprintf("Removed %d files, cache uses %s", msg.removed, humanize.IBytes(uint64(max(msg.size, 0)))))
		return m, nil

	case actionDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(errmsg.Format(msg.op, msg.err))
			return m, nil
		}
		m.setStatus(msg.status)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setStatus(s string) {
	m.status, m.failed = s, false
}

func (m *Model) setError(s string) {
	m.status, m.failed = s, true
}

// execute runs one command line.
func (m Model) execute(line string) (tea.Model, tea.Cmd) {
	c, err := parseCommand(line)
	if errors.Is(err, errEmptyCommand) {
		return m, nil
	}
	if err != nil {
		m.setError(err.Error())
		return m, nil
	}

	switch c.kind {
	case cmdSearch:
		m.busy = true
		m.setStatus(fmt.Sprintf("Searching %q…", c.query))
		return m, m.search(c.provider, c.query)

	case cmdAdd:
		if m.list != listResults || c.index >= len(m.results) {
			m.setError(fmt.Sprintf("no search result %d", c.index+1))
			return m, nil
		}
		m.queue(m.results[c.index])

	case cmdQueueKey:
		m.busy = true
		return m, m.lookup(c.key)

	case cmdNext:
		m.busy = true
		m.setStatus("Skipping…")
		return m, func() tea.Msg {
			m.player.Next()
			return actionDoneMsg{op: errmsg.OpPlaybackNext, status: "Skipped"}
		}

	case cmdPause:
		m.player.Pause()
		m.setStatus("Paused")

	case cmdResume:
		m.player.Resume()
		m.setStatus("Playing")

	case cmdSkip:
		queued := m.player.QueueSongs()
		if c.index >= len(queued) {
			m.setError(errmsg.Format(errmsg.OpQueueRemove, fmt.Errorf("no queued song %d", c.index+1)))
			return m, nil
		}
		m.player.SkipSong(queued[c.index])
		m.setStatus("Removed " + queued[c.index].String())

	case cmdMove:
		if err := m.player.Move(c.index, c.to); err != nil {
			m.setError(errmsg.Format(errmsg.OpQueueMove, err))
			return m, nil
		}
		m.setStatus(fmt.Sprintf("Moved %d to %d", c.index+1, c.to+1))

	case cmdClear:
		m.player.ClearQueue()
		m.setStatus("Queue cleared")

	case cmdHistory:
		if m.history == nil {
			m.setError(errmsg.Format(errmsg.OpHistoryLoad, errors.New("no history store")))
			return m, nil
		}
		m.busy = true
		return m, func() tea.Msg {
			rows, err := m.history.RecentlyPlayed(historyRows)
			return historyMsg{rows: rows, err: err}
		}

	case cmdClearCache:
		if m.cache == nil {
			m.setError(errmsg.Format(errmsg.OpCacheClear, errors.New("no cache")))
			return m, nil
		}
		m.busy = true
		keep := m.player.QueueSongs()
		for _, s := range []*song.Song{m.player.CurrentSong(), m.player.Warm()} {
			if s != nil {
				keep = append(keep, s)
			}
		}
		return m, func() tea.Msg {
			removed, err := m.cache.Prune(keep)
			if err != nil {
				return cacheClearedMsg{err: err}
			}
			size, err := m.cache.Size()
			return cacheClearedMsg{removed: removed, size: size, err: err}
		}

	case cmdReload, cmdReset:
		if m.suggest == nil {
			m.setError("no suggestions configured")
			return m, nil
		}
		m.busy = true
		ctx, sg := m.ctx, m.suggest
		if c.kind == cmdReload {
			m.setStatus("Reloading suggestions…")
			return m, func() tea.Msg {
				err := sg.Reload(ctx)
				return actionDoneMsg{op: errmsg.OpSuggestionsReload, status: "Suggestions reloaded", err: err}
			}
		}
		return m, func() tea.Msg {
			err := sg.Reset(ctx)
			return actionDoneMsg{op: errmsg.OpSuggestionsReset, status: "Suggestion history cleared", err: err}
		}

	case cmdHelp:
		m.setStatus(helpText)

	case cmdQuit:
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) queue(s *song.Song) {
	if !m.player.Queue(s, m.user) {
		m.setError(errmsg.FormatWith(errmsg.OpQueueAdd, s.String(), errors.New("already queued")))
		return
	}
	m.setStatus("Queued " + s.String())
}

type providerResults struct {
	order int
	songs []*song.Song
}

// search queries the selected providers in parallel and keeps provider
// order in the results.
func (m Model) search(provider, query string) tea.Cmd {
	names := m.providers.Names()
	if provider != "" {
		names = lo.Filter(names, func(n string, _ int) bool { return n == provider })
		if len(names) == 0 {
			return func() tea.Msg {
				return searchDoneMsg{query: query, err: fmt.Errorf("unknown provider %q", provider)}
			}
		}
	}
	ctx, limit := m.ctx, m.limit

	return func() tea.Msg {
		p := pool.NewWithResults[providerResults]().WithErrors().WithContext(ctx)
		for i, name := range names {
			prov, ok := m.providers.Get(name)
			if !ok {
				continue
			}
			p.Go(func(ctx context.Context) (providerResults, error) {
				var songs []*song.Song
				for s, err := range prov.Search(ctx, query, limit) {
					if err != nil {
						return providerResults{}, fmt.Errorf("%s: %w", name, err)
					}
					songs = append(songs, s)
				}
				return providerResults{order: i, songs: songs}, nil
			})
		}
		results, err := p.Wait()
		slices.SortFunc(results, func(a, b providerResults) int { return a.order - b.order })
		songs := lo.FlatMap(results, func(r providerResults, _ int) []*song.Song { return r.songs })
		return searchDoneMsg{query: query, songs: songs, err: err}
	}
}

func (m Model) lookup(key string) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		s, err := m.providers.Lookup(ctx, key)
		return lookupDoneMsg{key: key, song: s, err: err}
	}
}

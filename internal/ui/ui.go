package ui

import (
	"context"
	"errors"
	"os/user"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/notify"
	"github.com/llehouerou/wavebot/internal/playback"
	"github.com/llehouerou/wavebot/internal/song"
	"github.com/llehouerou/wavebot/internal/state"
)

const (
	defaultSearchLimit = 10
	maxEventLines      = 5
	historyRows        = 20
)

// Controller is the part of the player the UI drives.
type Controller interface {
	Queue(s *song.Song, requestedBy string) bool
	QueueSongs() []*song.Song
	Move(from, to int) error
	SkipSong(s *song.Song) bool
	ClearQueue()
	Pause()
	Resume()
	Next()
	CurrentSong() *song.Song
	Warm() *song.Song
	State() playback.State
	Position() time.Duration
}

// SongCache is the song file cache as seen by clear-cache.
type SongCache interface {
	Size() (int64, error)
	Prune(keep []*song.Song) (int, error)
}

// Options configures the UI.
type Options struct {
	Player    Controller
	Providers *song.Registry
	Cache     SongCache         // optional
	History   state.PlayedStore // optional
	Events    *notify.Subscription
	// Suggestions is the suggester feeding the player, for reload and
	// reset. Optional.
	Suggestions song.Suggester
	// Changes redraws the view as soon as the player changes. Optional.
	Changes *playback.Subscription
	// User is recorded as the requester of queued songs. Defaults to the
	// login name.
	User        string
	SearchLimit int
	Logger      zerolog.Logger
}

// Model is the Bubble Tea model of the terminal UI.
type Model struct {
	ctx       context.Context //nolint:containedctx // cancels background commands
	player    Controller
	providers *song.Registry
	cache     SongCache
	suggest   song.Suggester
	history   state.PlayedStore
	events    *notify.Subscription
	changes   *playback.Subscription
	user      string
	limit     int
	logger    zerolog.Logger

	input   textinput.Model
	list    listKind
	results []*song.Song
	played  []state.Played
	recent  []notify.Event
	status  string
	failed  bool
	busy    bool
	width   int
	height  int
	now     func() time.Time
}

type listKind int

const (
	listNone listKind = iota
	listResults
	listHistory
)

// New creates the model. ctx bounds searches and lookups.
func New(ctx context.Context, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "› "
	ti.Placeholder = "type help for commands"
	ti.CharLimit = 256
	ti.Focus()

	if opts.User == "" {
		opts.User = "me"
		if u, err := user.Current(); err == nil {
			opts.User = u.Username
		}
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = defaultSearchLimit
	}
	return Model{
		ctx:       ctx,
		player:    opts.Player,
		providers: opts.Providers,
		cache:     opts.Cache,
		suggest:   opts.Suggestions,
		history:   opts.History,
		events:    opts.Events,
		changes:   opts.Changes,
		user:      opts.User,
		limit:     opts.SearchLimit,
		logger:    opts.Logger.With().Str("component", "ui").Logger(),
		input:     ti,
		width:     80,
		now:       time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tickCmd(), m.watchEvents(), m.watchPlayer())
}

// Run shows the UI until the user quits or ctx is done.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(New(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

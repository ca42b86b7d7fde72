// Package app wires the configured components into a running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/cache"
	"github.com/llehouerou/wavebot/internal/config"
	"github.com/llehouerou/wavebot/internal/lastfm"
	"github.com/llehouerou/wavebot/internal/mpris"
	"github.com/llehouerou/wavebot/internal/notify"
	"github.com/llehouerou/wavebot/internal/playback"
	"github.com/llehouerou/wavebot/internal/player"
	"github.com/llehouerou/wavebot/internal/provider/local"
	"github.com/llehouerou/wavebot/internal/provider/subsonic"
	"github.com/llehouerou/wavebot/internal/provider/youtube"
	"github.com/llehouerou/wavebot/internal/radio"
	"github.com/llehouerou/wavebot/internal/song"
	"github.com/llehouerou/wavebot/internal/state"
	"github.com/llehouerou/wavebot/internal/transcode"
	"github.com/llehouerou/wavebot/internal/ui"
)

// Options configures New.
type Options struct {
	Config *config.Config
	State  *state.Manager
	// Device defaults to the speaker.
	Device player.Device
	// HTTPClient is used by the subsonic provider and artwork downloads.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// App holds the wired components.
type App struct {
	cfg       *config.Config
	state     *state.Manager
	cache     *cache.Cache
	providers *song.Registry
	suggest   song.Suggester
	player    *playback.Player
	hub       *notify.Hub
	scrobbler *lastfm.Scrobbler
	mpris     *mpris.Adapter
	logger    zerolog.Logger
}

// New builds the cache, the providers, the player and its notification
// sinks. It does not start playback.
func New(ctx context.Context, opts Options) (_ *App, err error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if opts.State == nil {
		return nil, errors.New("app: state is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	a := &App{
		cfg:       cfg,
		state:     opts.State,
		providers: song.NewRegistry(),
		hub:       notify.NewHub(opts.Logger),
		logger:    opts.Logger,
	}
	defer func() {
		if err != nil {
			a.hub.Close()
		}
	}()

	cacheCfg := cfg.GetCacheConfig()
	c, err := cache.New(cache.Options{
		Dir:            cacheCfg.Dir,
		MaxDownloads:   cacheCfg.MaxDownloads,
		MaxConversions: cacheCfg.MaxConversions,
		Retries:        cacheCfg.Retries,
		RetryDelay:     cacheCfg.RetryDelay(),
		Converter:      transcode.Transcoder{Normalize: *cacheCfg.Normalize},
		Logger:         opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.cache = c

	var similar radio.SimilarFetcher
	if cfg.HasLastfmConfig() {
		client := lastfm.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret)
		if key := a.lastfmSessionKey(); key != "" {
			client.SetSessionKey(key)
		}
		similar = client
		a.scrobbler = lastfm.NewScrobbler(client, a.state, opts.Logger)
	}

	if err = a.addProviders(ctx, opts.HTTPClient, similar); err != nil {
		return nil, err
	}
	a.suggest, err = a.suggester()
	if err != nil {
		return nil, err
	}

	device := opts.Device
	if device == nil {
		playerCfg := cfg.GetPlayerConfig()
		device = player.NewSpeaker(playerCfg.SampleRate, playerCfg.Chunk(), opts.Logger)
	}
	a.player, err = playback.New(playback.Options{
		Suggester:   a.suggest,
		Device:      device,
		Notifier:    a.hub,
		HistorySize: cfg.GetPlayerConfig().HistorySize,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	a.addSinks(opts.HTTPClient)
	if cfg.MPRISEnabled() {
		m, merr := mpris.New(a.player, opts.Logger)
		if merr != nil {
			a.logger.Warn().Err(merr).Msg("mpris unavailable")
		}
		a.mpris = m
	}
	return a, nil
}

// lastfmSessionKey prefers the configured key over the stored session.
func (a *App) lastfmSessionKey() string {
	if a.cfg.Lastfm.SessionKey != "" {
		return a.cfg.Lastfm.SessionKey
	}
	session, err := a.state.GetLastfmSession()
	if err != nil {
		a.logger.Warn().Err(err).Msg("reading lastfm session failed")
		return ""
	}
	if session == nil {
		return ""
	}
	return session.SessionKey
}

func (a *App) addProviders(ctx context.Context, hc *http.Client, similar radio.SimilarFetcher) error {
	radioCfg := a.cfg.GetRadioConfig()
	similarCache := radio.NewCache(a.state.DB(), radioCfg.CacheTTLDays)
	if err := similarCache.CleanExpired(); err != nil {
		a.logger.Warn().Err(err).Msg("cleaning similar artists cache failed")
	}
	lp, err := local.New(ctx, local.Options{
		Folders:      a.cfg.Local.Folders,
		Cache:        a.cache,
		Radio:        radioCfg,
		Similar:      similar,
		SimilarCache: similarCache,
		History:      a.state,
		Logger:       a.logger,
	})
	if err != nil {
		return fmt.Errorf("local provider: %w", err)
	}
	a.providers.Register(lp)

	if a.cfg.HasSubsonicConfig() {
		sc := a.cfg.GetSubsonicConfig()
		client := subsonic.NewClient(sc.URL, sc.Username, sc.Password, sc.ClientID, hc)
		if err := client.Ping(ctx); err != nil {
			a.logger.Warn().Err(err).Str("url", sc.URL).Msg("subsonic server unreachable")
		}
		sp, err := subsonic.New(subsonic.Options{
			Client:  client,
			Cache:   a.cache,
			History: a.state,
			Logger:  a.logger,
		})
		if err != nil {
			return fmt.Errorf("subsonic provider: %w", err)
		}
		a.providers.Register(sp)
	}

	if a.cfg.GetYouTubeConfig().Enabled {
		if err := youtube.Install(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("installing yt-dlp failed")
		}
		yp, err := youtube.New(youtube.Options{Cache: a.cache, Logger: a.logger})
		if err != nil {
			return fmt.Errorf("youtube provider: %w", err)
		}
		a.providers.Register(yp)
	}
	return nil
}

// suggester returns the suggestions of the provider named by the provider
// setting.
func (a *App) suggester() (song.Suggester, error) {
	p, ok := a.providers.Get(a.cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("suggestion provider %q is not configured", a.cfg.Provider)
	}
	s, ok := p.Suggestions()
	if !ok {
		return nil, fmt.Errorf("provider %q has no suggestions", a.cfg.Provider)
	}
	return s, nil
}

func (a *App) addSinks(hc *http.Client) {
	a.hub.Add(notify.NewLog(a.logger))
	a.hub.Add(state.NewRecorder(a.state, a.logger))
	if a.scrobbler != nil {
		a.hub.Add(a.scrobbler)
	}
	if !a.cfg.DesktopEnabled() {
		return
	}
	sender, err := notify.NewSender()
	if err != nil {
		a.logger.Warn().Err(err).Msg("desktop notifications unavailable")
		return
	}
	artwork := notify.NewArtwork(filepath.Join(xdg.CacheHome, "wavebot", "artwork"), hc)
	a.hub.Add(notify.NewDesktop(sender, artwork, a.logger))
}

// Providers returns the registered providers.
func (a *App) Providers() *song.Registry { return a.providers }

// Player returns the playback loop.
func (a *App) Player() *playback.Player { return a.player }

// Run starts playback and shows the UI until the user quits, ctx is done
// or the playback loop stops.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.scrobbler != nil {
		go a.scrobbler.Run(ctx)
	}
	if err := a.player.Run(ctx); err != nil {
		return err
	}
	go func() {
		select {
		case <-a.player.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	err := ui.Run(ctx, ui.Options{
		Player:      a.player,
		Providers:   a.providers,
		Cache:       a.cache,
		History:     a.state,
		Events:      a.hub.Subscribe(),
		Changes:     a.player.Subscribe(),
		Suggestions: a.suggest,
		SearchLimit: a.cfg.GetYouTubeConfig().SearchLimit,
		Logger:      a.logger,
	})
	if perr := a.player.Err(); perr != nil {
		return fmt.Errorf("playback stopped: %w", perr)
	}
	return err
}

// Close stops playback and releases every component. It returns the error
// that stopped the playback loop, if any.
func (a *App) Close() error {
	var errs []error
	if a.mpris != nil {
		errs = append(errs, a.mpris.Close())
	}
	if a.player != nil {
		if err := a.player.Close(); err != nil {
			errs = append(errs, fmt.Errorf("playback: %w", err))
		}
	}
	a.hub.Close()
	if a.scrobbler != nil {
		a.scrobbler.Flush()
	}
	return errors.Join(errs...)
}

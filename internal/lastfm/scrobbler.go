package lastfm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/notify"
	"github.com/llehouerou/wavebot/internal/song"
	"github.com/llehouerou/wavebot/internal/state"
)

const (
	// Last.fm only accepts tracks longer than 30 seconds that played for
	// half their length or 4 minutes, whichever comes first.
	minScrobbleDuration = 30 * time.Second
	maxScrobbleWait     = 4 * time.Minute

	maxAttempts   = 10
	retryInterval = 5 * time.Minute
)

// API is the part of the Last.fm client the scrobbler needs.
type API interface {
	IsAuthenticated() bool
	UpdateNowPlaying(t Track) error
	Scrobble(t Track) error
}

// Scrobbler is a notify sink that reports playback to Last.fm. Failed
// scrobbles are stored and resubmitted by RetryPending.
type Scrobbler struct {
	api    API
	store  state.ScrobbleStore
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	current   *song.Song
	startedAt time.Time
	pausedAt  time.Time
	pausedFor time.Duration
}

// NewScrobbler creates a scrobbler. store may be nil, in which case failed
// scrobbles are dropped.
func NewScrobbler(api API, store state.ScrobbleStore, logger zerolog.Logger) *Scrobbler {
	return &Scrobbler{
		api:    api,
		store:  store,
		logger: logger.With().Str("component", "scrobbler").Logger(),
		now:    time.Now,
	}
}

func (s *Scrobbler) Notify(e notify.Event) {
	if !s.api.IsAuthenticated() {
		return
	}
	switch e.Cause {
	case notify.NowPlaying:
		if e.Song == nil {
			return
		}
		s.finish()
		s.start(e.Song)
	case notify.StateChanged:
		s.setPaused(e.Paused)
	}
}

func (s *Scrobbler) start(sg *song.Song) {
	s.mu.Lock()
	s.current = sg
	s.startedAt = s.now()
	s.pausedAt = time.Time{}
	s.pausedFor = 0
	s.mu.Unlock()

	if err := s.api.UpdateNowPlaying(TrackFromSong(sg, s.startedAt)); err != nil {
		s.logger.Debug().Err(err).Str("key", sg.Key()).Msg("now playing update failed")
	}
}

func (s *Scrobbler) setPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.current == nil:
	case paused && s.pausedAt.IsZero():
		s.pausedAt = s.now()
	case !paused && !s.pausedAt.IsZero():
		s.pausedFor += s.now().Sub(s.pausedAt)
		s.pausedAt = time.Time{}
	}
}

// Flush scrobbles the current song if it played long enough. It is called
// when playback ends for good.
func (s *Scrobbler) Flush() {
	if s.api.IsAuthenticated() {
		s.finish()
	}
}

func (s *Scrobbler) finish() {
	s.mu.Lock()
	prev := s.current
	played := s.playedLocked()
	startedAt := s.startedAt
	s.current = nil
	s.mu.Unlock()

	if prev == nil || !Eligible(prev.Duration(), played) {
		return
	}
	t := TrackFromSong(prev, startedAt)
	if err := s.api.Scrobble(t); err != nil {
		if errors.Is(err, ErrRejected) {
			s.logger.Warn().Err(err).Str("key", prev.Key()).Msg("scrobble rejected")
			return
		}
		s.logger.Warn().Err(err).Str("key", prev.Key()).Msg("scrobble failed, queued for retry")
		s.queue(t, err)
	}
}

func (s *Scrobbler) playedLocked() time.Duration {
	end := s.now()
	if !s.pausedAt.IsZero() {
		end = s.pausedAt
	}
	return end.Sub(s.startedAt) - s.pausedFor
}

func (s *Scrobbler) queue(t Track, cause error) {
	if s.store == nil {
		return
	}
	err := s.store.AddPendingScrobble(state.PendingScrobble{
		Artist:       t.Artist,
		Track:        t.Track,
		Album:        t.Album,
		DurationSecs: int(t.Duration.Seconds()),
		Timestamp:    t.Timestamp,
		LastError:    cause.Error(),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("storing pending scrobble failed")
	}
}

// Eligible reports whether a song of the given duration that played for
// played counts as listened. Songs of unknown duration need 4 minutes.
func Eligible(duration, played time.Duration) bool {
	if duration == 0 {
		return played >= maxScrobbleWait
	}
	if duration <= minScrobbleDuration {
		return false
	}
	return played >= min(duration/2, maxScrobbleWait)
}

// RetryPending resubmits stored scrobbles. Entries that failed too many
// times are dropped.
func (s *Scrobbler) RetryPending() (succeeded, failed int, err error) {
	if s.store == nil || !s.api.IsAuthenticated() {
		return 0, 0, nil
	}
	dropped, err := s.store.DropExhaustedScrobbles(maxAttempts)
	if err != nil {
		return 0, 0, err
	}
	if dropped > 0 {
		s.logger.Warn().Int64("count", dropped).Int("attempts", maxAttempts).Msg("dropped pending scrobbles")
	}
	pending, err := s.store.GetPendingScrobbles()
	if err != nil {
		return 0, 0, err
	}

	for _, p := range pending {
		err := s.api.Scrobble(Track{
			Artist:    p.Artist,
			Track:     p.Track,
			Album:     p.Album,
			Duration:  time.Duration(p.DurationSecs) * time.Second,
			Timestamp: p.Timestamp,
		})
		switch {
		case errors.Is(err, ErrRejected):
			s.logger.Warn().Err(err).Str("track", p.Track).Msg("dropping rejected scrobble")
			_ = s.store.DeletePendingScrobble(p.ID)
			continue
		case err != nil:
			failed++
			_ = s.store.UpdatePendingScrobbleAttempt(p.ID, err.Error())
			continue
		}
		succeeded++
		_ = s.store.DeletePendingScrobble(p.ID)
	}
	return succeeded, failed, nil
}

// Run retries pending scrobbles periodically until ctx is done.
func (s *Scrobbler) Run(ctx context.Context) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		if ok, ko, err := s.RetryPending(); err != nil {
			s.logger.Warn().Err(err).Msg("reading pending scrobbles failed")
		} else if ok+ko > 0 {
			s.logger.Info().Int("succeeded", ok).Int("failed", ko).Msg("retried pending scrobbles")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

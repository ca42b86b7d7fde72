// Package lastfm scrobbles played songs and looks up similar artists.
package lastfm

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/shkh/lastfm-go/lastfm"

	"github.com/llehouerou/wavebot/internal/song"
)

var (
	// ErrNotAuthenticated is returned without a session, or when Last.fm
	// no longer accepts the stored one.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRejected marks calls Last.fm will never accept as sent, such as a
	// scrobble without an artist.
	ErrRejected = errors.New("rejected by last.fm")
)

const authURL = "https://www.last.fm/api/auth/"

// Last.fm API error codes, see https://www.last.fm/api/errorcodes.
const (
	codeInvalidParameters = 6
	codeInvalidSession    = 9
	codeOffline           = 11
	codeUnavailable       = 16
	codeRateLimited       = 29
)

// Client wraps the Last.fm API. It is safe for concurrent use.
type Client struct {
	apiKey string

	mu         sync.Mutex
	api        *lastfm.Api
	sessionKey string
}

// New creates a new Last.fm client with the given API credentials.
func New(apiKey, apiSecret string) *Client {
	return &Client{
		api:    lastfm.New(apiKey, apiSecret),
		apiKey: apiKey,
	}
}

// SetSessionKey sets the authenticated session key.
func (c *Client) SetSessionKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSessionKeyLocked(key)
}

func (c *Client) setSessionKeyLocked(key string) {
	c.sessionKey = key
	c.api.SetSession(key)
}

// IsAuthenticated returns true if a session key is set.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey != ""
}

// GetToken requests an authentication token from Last.fm.
func (c *Client) GetToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, err := c.api.GetToken()
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return result, nil
}

// GetAuthURL returns the page where the user authorizes token. Last.fm
// redirects to callback afterwards when it is set.
func (c *Client) GetAuthURL(token, callback string) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("token", token)
	if callback != "" {
		q.Set("cb", callback)
	}
	return authURL + "?" + q.Encode()
}

// GetSession exchanges an authorized token for a session key.
func (c *Client) GetSession(token string) (username, sessionKey string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.api.LoginWithToken(token); err != nil {
		return "", "", fmt.Errorf("get session: %w", err)
	}
	c.setSessionKeyLocked(c.api.GetSessionKey())

	userInfo, err := c.api.User.GetInfo(nil)
	if err != nil {
		// the session is usable without a username
		return "unknown", c.sessionKey, nil //nolint:nilerr // username is optional
	}
	return userInfo.Name, c.sessionKey, nil
}

func trackParams(t Track) lastfm.P {
	params := lastfm.P{
		"artist": t.Artist,
		"track":  t.Track,
	}
	if t.Album != "" {
		params["album"] = t.Album
	}
	if t.Duration > 0 {
		params["duration"] = int(t.Duration.Seconds())
	}
	return params
}

// UpdateNowPlaying sends a "now playing" notification to Last.fm.
func (c *Client) UpdateNowPlaying(t Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionKey == "" {
		return ErrNotAuthenticated
	}
	_, err := c.api.Track.UpdateNowPlaying(trackParams(t))
	return classify("update now playing", err)
}

// Scrobble submits a track play to Last.fm.
func (c *Client) Scrobble(t Track) error {
	if t.Artist == "" || t.Track == "" {
		return fmt.Errorf("scrobble: %w: artist and track are required", ErrRejected)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionKey == "" {
		return ErrNotAuthenticated
	}
	params := trackParams(t)
	params["timestamp"] = t.Timestamp.Unix()
	_, err := c.api.Track.Scrobble(params)
	return classify("scrobble", err)
}

// GetSimilarArtists fetches similar artists from Last.fm.
func (c *Client) GetSimilarArtists(artist string, limit int) ([]SimilarArtist, error) {
	c.mu.Lock()
	result, err := c.api.Artist.GetSimilar(lastfm.P{
		"artist":      artist,
		"limit":       limit,
		"autocorrect": 1,
	})
	c.mu.Unlock()
	if err != nil {
		return nil, classify("get similar artists", err)
	}

	artists := make([]SimilarArtist, 0, len(result.Similars))
	for _, a := range result.Similars {
		score, _ := strconv.ParseFloat(a.Match, 64) // unparsable means 0
		artists = append(artists, SimilarArtist{
			Name:       a.Name,
			MatchScore: score,
		})
	}
	return artists, nil
}

// classify wraps API errors so callers can tell retryable failures
// (song.ErrTransient) from permanent ones.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *lastfm.LastfmError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeOffline, codeUnavailable, codeRateLimited:
			return fmt.Errorf("%s: %w", op, song.Transient(err))
		case codeInvalidSession:
			return fmt.Errorf("%s: %w: %w", op, ErrNotAuthenticated, err)
		case codeInvalidParameters:
			return fmt.Errorf("%s: %w: %w", op, ErrRejected, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	// transport failures
	return fmt.Errorf("%s: %w", op, song.Transient(err))
}

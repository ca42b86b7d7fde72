// Package subsonic serves songs from a Subsonic compatible server such as
// Navidrome.
package subsonic

import (
	"context"
	"crypto/md5" //nolint:gosec // required by the Subsonic token scheme
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/llehouerou/wavebot/internal/song"
)

const (
	apiVersion = "1.16.1"
	saltLength = 8

	// errCodeNotFound is the Subsonic error code for missing data.
	errCodeNotFound = 70
)

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

// APIError is an error reported inside a Subsonic response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("subsonic error %d: %s", e.Code, e.Message)
}

// Track is a song entry as returned by the server.
type Track struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Album       string `json:"album"`
	Artist      string `json:"artist"`
	Duration    int    `json:"duration"` // seconds
	Track       int    `json:"track"`
	CoverArt    string `json:"coverArt"`
	Suffix      string `json:"suffix"`
	ContentType string `json:"contentType"`
	IsVideo     bool   `json:"isVideo"`
}

type response struct {
	Response struct {
		Status string    `json:"status"`
		Error  *APIError `json:"error,omitempty"`

		Song          *Track `json:"song,omitempty"`
		SearchResult3 struct {
			Songs []Track `json:"song"`
		} `json:"searchResult3"`
		RandomSongs struct {
			Songs []Track `json:"song"`
		} `json:"randomSongs"`
		SimilarSongs2 struct {
			Songs []Track `json:"song"`
		} `json:"similarSongs2"`
	} `json:"subsonic-response"`
}

// Client calls the Subsonic REST API with token authentication.
type Client struct {
	baseURL  string
	username string
	password string
	clientID string
	http     *http.Client
}

// NewClient creates a client for the server at baseURL. A nil hc uses
// http.DefaultClient.
func NewClient(baseURL, username, password, clientID string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if clientID == "" {
		clientID = "wavebot"
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		clientID: clientID,
		http:     hc,
	}
}

func randSeq(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}

func authToken(password, salt string) string {
	sum := md5.Sum([]byte(password + salt)) //nolint:gosec // protocol
	return hex.EncodeToString(sum[:])
}

func (c *Client) params(extra url.Values) url.Values {
	salt := randSeq(saltLength)
	params := url.Values{}
	params.Set("u", c.username)
	params.Set("t", authToken(c.password, salt))
	params.Set("s", salt)
	params.Set("v", apiVersion)
	params.Set("c", c.clientID)
	params.Set("f", "json")
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	return params
}

// URL builds an authenticated URL for endpoint.
func (c *Client) URL(endpoint string, extra url.Values) string {
	return fmt.Sprintf("%s/rest/%s?%s", c.baseURL, endpoint, c.params(extra).Encode())
}

func (c *Client) do(ctx context.Context, endpoint string, extra url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(endpoint, extra), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, song.Transient(fmt.Errorf("%s: %w", endpoint, err))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		err := fmt.Errorf("%s: unexpected status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, song.Transient(err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) call(ctx context.Context, endpoint string, extra url.Values) (*response, error) {
	resp, err := c.do(ctx, endpoint, extra)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decode(resp.Body)
}

func decode(r io.Reader) (*response, error) {
	var out response
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Response.Status != "ok" {
		if out.Response.Error != nil {
			return nil, out.Response.Error
		}
		return nil, fmt.Errorf("subsonic status %q", out.Response.Status)
	}
	return &out, nil
}

// Ping checks the credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", nil)
	return err
}

// Search returns up to count songs matching query starting at offset.
func (c *Client) Search(ctx context.Context, query string, count, offset int) ([]Track, error) {
	resp, err := c.call(ctx, "search3", url.Values{
		"query":       {query},
		"songCount":   {strconv.Itoa(count)},
		"songOffset":  {strconv.Itoa(offset)},
		"artistCount": {"0"},
		"albumCount":  {"0"},
	})
	if err != nil {
		return nil, err
	}
	return resp.Response.SearchResult3.Songs, nil
}

// Song fetches a single song.
func (c *Client) Song(ctx context.Context, id string) (Track, error) {
	resp, err := c.call(ctx, "getSong", url.Values{"id": {id}})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == errCodeNotFound {
			return Track{}, fmt.Errorf("%w: %s", song.ErrNotFound, id)
		}
		return Track{}, err
	}
	if resp.Response.Song == nil {
		return Track{}, fmt.Errorf("%w: %s", song.ErrNotFound, id)
	}
	return *resp.Response.Song, nil
}

// RandomSongs returns up to size random songs.
func (c *Client) RandomSongs(ctx context.Context, size int) ([]Track, error) {
	resp, err := c.call(ctx, "getRandomSongs", url.Values{"size": {strconv.Itoa(size)}})
	if err != nil {
		return nil, err
	}
	return resp.Response.RandomSongs.Songs, nil
}

// SimilarSongs returns songs similar to the song with the given id.
func (c *Client) SimilarSongs(ctx context.Context, id string, count int) ([]Track, error) {
	resp, err := c.call(ctx, "getSimilarSongs2", url.Values{
		"id":    {id},
		"count": {strconv.Itoa(count)},
	})
	if err != nil {
		return nil, err
	}
	return resp.Response.SimilarSongs2.Songs, nil
}

// CoverArtURL returns the artwork URL for a cover art id.
func (c *Client) CoverArtURL(id string) string {
	if id == "" {
		return ""
	}
	return c.URL("getCoverArt", url.Values{"id": {id}, "size": {"300"}})
}

// Stream writes the audio of the song to w and returns the file extension
// matching the served content type.
func (c *Client) Stream(ctx context.Context, id string, w io.Writer) (string, error) {
	resp, err := c.do(ctx, "stream", url.Values{"id": {id}})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	// Failures are reported as a normal response body.
	if strings.HasPrefix(contentType, "application/json") || strings.HasPrefix(contentType, "text/xml") {
		if _, err := decode(resp.Body); err != nil {
			return "", err
		}
		return "", fmt.Errorf("stream %s: no audio in response", id)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", song.Transient(fmt.Errorf("stream %s: %w", id, err))
	}
	return extension(contentType), nil
}

func extension(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/ogg", "audio/vorbis", "application/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	default:
		return ".mp3"
	}
}

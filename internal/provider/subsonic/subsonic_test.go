package subsonic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/wavebot/internal/cache"
	"github.com/llehouerou/wavebot/internal/song"
	"github.com/llehouerou/wavebot/internal/state"
	"github.com/llehouerou/wavebot/internal/tags"
)

// server is a minimal Subsonic server.
type server struct {
	mu       sync.Mutex
	tracks   []Track
	similar  map[string][]Track
	random   []Track
	calls    map[string]int
	failNext int // status to return once, 0 for none
	audio    []byte
}

func newServer(t *testing.T) (*server, *Client) {
	t.Helper()
	s := &server{similar: map[string][]Track{}, calls: map[string]int{}, audio: []byte("RIFFaudio")}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, NewClient(srv.URL+"/", "alice", "secret", "", srv.Client())
}

func tracks(ids ...string) []Track {
	out := make([]Track, len(ids))
	for i, id := range ids {
		out[i] = Track{ID: id, Title: "Title " + id, Artist: "Artist " + id, Album: "Album", Duration: 180, CoverArt: "al-" + id}
	}
	return out
}

func (s *server) set(fn func(s *server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *server) fail(status int) {
	s.set(func(s *server) { s.failNext = status })
}

func (s *server) count(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	endpoint := strings.TrimPrefix(r.URL.Path, "/rest/")

	s.mu.Lock()
	s.calls[endpoint]++
	fail := s.failNext
	s.failNext = 0
	s.mu.Unlock()

	if fail != 0 {
		http.Error(w, "boom", fail)
		return
	}
	if q.Get("u") != "alice" || q.Get("t") != authToken("secret", q.Get("s")) || q.Get("f") != "json" {
		writeJSON(w, map[string]any{"status": "failed", "error": map[string]any{"code": 40, "message": "Wrong username or password"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch endpoint {
	case "ping":
		writeJSON(w, map[string]any{"status": "ok"})
	case "search3":
		count, _ := strconv.Atoi(q.Get("songCount"))
		offset, _ := strconv.Atoi(q.Get("songOffset"))
		var matched []Track
		for _, t := range s.tracks {
			if strings.Contains(strings.ToLower(t.Title), strings.ToLower(q.Get("query"))) {
				matched = append(matched, t)
			}
		}
		matched = matched[min(offset, len(matched)):]
		matched = matched[:min(count, len(matched))]
		writeJSON(w, map[string]any{"status": "ok", "searchResult3": map[string]any{"song": matched}})
	case "getSong":
		for _, t := range s.tracks {
			if t.ID == q.Get("id") {
				writeJSON(w, map[string]any{"status": "ok", "song": t})
				return
			}
		}
		writeJSON(w, map[string]any{"status": "failed", "error": map[string]any{"code": 70, "message": "Song not found"}})
	case "getRandomSongs":
		writeJSON(w, map[string]any{"status": "ok", "randomSongs": map[string]any{"song": s.random}})
	case "getSimilarSongs2":
		writeJSON(w, map[string]any{"status": "ok", "similarSongs2": map[string]any{"song": s.similar[q.Get("id")]}})
	case "stream":
		if q.Get("id") == "missing" {
			writeJSON(w, map[string]any{"status": "failed", "error": map[string]any{"code": 70, "message": "Song not found"}})
			return
		}
		w.Header().Set("Content-Type", "audio/x-wav")
		_, _ = w.Write(s.audio)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"subsonic-response": body})
}

type copyConverter struct{}

func (copyConverter) Convert(_ context.Context, src, dst string, _ *tags.Tag) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func newProvider(t *testing.T, c *Client, history state.PlayedStore) *Provider {
	t.Helper()
	cc, err := cache.New(cache.Options{Dir: t.TempDir(), Retries: 2, RetryDelay: time.Millisecond, Converter: copyConverter{}})
	require.NoError(t, err)
	p, err := New(Options{Client: c, Cache: cc, History: history, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return p
}

func TestClient_Ping(t *testing.T) {
	_, c := newServer(t)
	require.NoError(t, c.Ping(context.Background()))

	bad := NewClient(c.baseURL, "alice", "wrong", "", c.http)
	err := bad.Ping(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 40, apiErr.Code)
}

func TestClient_ServerErrorIsTransient(t *testing.T) {
	srv, c := newServer(t)

	srv.fail(http.StatusBadGateway)
	assert.ErrorIs(t, c.Ping(context.Background()), song.ErrTransient)

	srv.fail(http.StatusNotFound)
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, song.ErrTransient)
}

func TestExtension(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"audio/mpeg", ".mp3"},
		{"audio/flac", ".flac"},
		{"audio/ogg; codecs=vorbis", ".ogg"},
		{"audio/x-wav", ".wav"},
		{"", ".mp3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extension(tt.contentType), tt.contentType)
	}
}

func TestSearch_PagesLazily(t *testing.T) {
	srv, c := newServer(t)
	ids := make([]string, 120)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	srv.set(func(s *server) { s.tracks = tracks(ids...) })
	p := newProvider(t, c, nil)
	ctx := context.Background()

	var got []*song.Song
	for s, err := range p.Search(ctx, "title", 0) {
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Len(t, got, 120)
	assert.Equal(t, 3, srv.count("search3"))

	n := 0
	for _, err := range p.Search(ctx, "title", 0) {
		require.NoError(t, err)
		n++
		if n == 5 {
			break
		}
	}
	assert.Equal(t, 4, srv.count("search3"))

	got = got[:0]
	for s, err := range p.Search(ctx, "title", 60) {
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Len(t, got, 60)
}

func TestSearch_Error(t *testing.T) {
	srv, c := newServer(t)
	srv.fail(http.StatusInternalServerError)
	p := newProvider(t, c, nil)

	for s, err := range p.Search(context.Background(), "x", 10) {
		assert.Nil(t, s)
		assert.ErrorIs(t, err, song.ErrTransient)
	}
}

func TestLookup(t *testing.T) {
	srv, c := newServer(t)
	srv.set(func(s *server) { s.tracks = tracks("a1") })
	p := newProvider(t, c, nil)
	ctx := context.Background()

	s, err := p.Lookup(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Title a1", s.Title())
	assert.Equal(t, "Artist a1", s.Description())
	assert.Equal(t, 3*time.Minute, s.Duration())
	assert.Contains(t, s.ArtworkURL(), "/rest/getCoverArt?")
	assert.Contains(t, s.ArtworkURL(), "id=al-a1")
	assert.Equal(t, "subsonic:a1", s.Key())

	again, err := p.Lookup(ctx, "a1")
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Equal(t, 1, srv.count("getSong"))

	_, err = p.Lookup(ctx, "nope")
	assert.ErrorIs(t, err, song.ErrNotFound)
}

func TestMaterialize_Streams(t *testing.T) {
	srv, c := newServer(t)
	srv.set(func(s *server) { s.tracks = tracks("a1", "missing") })
	p := newProvider(t, c, nil)
	ctx := context.Background()

	s, err := p.Lookup(ctx, "a1")
	require.NoError(t, err)
	path, err := s.Load(ctx)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, srv.audio, data)
	assert.Equal(t, ".wav", filepath.Ext(path))

	missing, err := p.Lookup(ctx, "missing")
	require.NoError(t, err)
	_, err = missing.Load(ctx)
	assert.Error(t, err)
}

func TestMaterialize_RetriesServerErrors(t *testing.T) {
	srv, c := newServer(t)
	srv.set(func(s *server) { s.tracks = tracks("a1") })
	p := newProvider(t, c, nil)
	ctx := context.Background()

	s, err := p.Lookup(ctx, "a1")
	require.NoError(t, err)
	srv.fail(http.StatusServiceUnavailable)
	_, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.count("stream"))
}

func TestSuggestions_RandomThenSimilar(t *testing.T) {
	srv, c := newServer(t)
	srv.set(func(s *server) { s.random = tracks("r1", "r2") })
	srv.set(func(s *server) { s.similar["r1"] = tracks("r1", "s1", "s2") })
	p := newProvider(t, c, nil)
	ctx := context.Background()
	sg, ok := p.Suggestions()
	require.True(t, ok)

	first, err := sg.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", first.ID())
	assert.Equal(t, 0, srv.count("getSimilarSongs2"))

	sg.Played(ctx, first)
	peek, err := sg.Peek(ctx, 3)
	require.NoError(t, err)
	ids := make([]string, len(peek))
	for i, s := range peek {
		ids[i] = s.ID()
	}
	assert.Equal(t, []string{"r2", "s1", "s2"}, ids)
	assert.Equal(t, 1, srv.count("getSimilarSongs2"))
}

func TestSuggestions_ExcludesPlayed(t *testing.T) {
	srv, c := newServer(t)
	srv.set(func(s *server) { s.random = tracks("r1") })
	p := newProvider(t, c, nil)
	ctx := context.Background()
	sg, _ := p.Suggestions()

	s, err := sg.Next(ctx)
	require.NoError(t, err)
	sg.Played(ctx, s)

	_, err = sg.Next(ctx)
	assert.ErrorIs(t, err, song.ErrNoSuggestions)

	require.NoError(t, sg.Reset(ctx))
	s, err = sg.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", s.ID())
}

func TestSuggestions_RemoveAndReload(t *testing.T) {
	srv, c := newServer(t)
	srv.set(func(s *server) { s.random = tracks("r1", "r2") })
	p := newProvider(t, c, nil)
	ctx := context.Background()
	sg, _ := p.Suggestions()

	peek, err := sg.Peek(ctx, 2)
	require.NoError(t, err)
	require.Len(t, peek, 2)
	sg.Remove(peek[0])

	next, err := sg.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r2", next.ID())

	require.NoError(t, sg.Reload(ctx))
	calls := srv.count("getRandomSongs")
	_, err = sg.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls+1, srv.count("getRandomSongs"))
}

func TestSuggestions_SeededFromHistory(t *testing.T) {
	srv, c := newServer(t)
	srv.set(func(s *server) { s.random = tracks("r1", "r2") })
	srv.set(func(s *server) { s.similar["r2"] = tracks("s1") })

	history := state.NewMock()
	require.NoError(t, history.RecordPlayed(state.Played{Provider: "local", SongID: "x"}))
	require.NoError(t, history.RecordPlayed(state.Played{Provider: Name, SongID: "r2"}))
	p := newProvider(t, c, history)
	sg, _ := p.Suggestions()

	s, err := sg.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID())

	require.NoError(t, sg.Reset(context.Background()))
	rows, err := history.RecentlyPlayed(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "local", rows[0].Provider)
}

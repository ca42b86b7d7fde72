package app

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/wavebot/internal/config"
	"github.com/llehouerou/wavebot/internal/player"
	"github.com/llehouerou/wavebot/internal/state"
)

func off() *bool {
	v := false
	return &v
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Provider: config.ProviderLocal,
		Cache:    config.CacheConfig{Dir: t.TempDir()},
		Local:    config.LocalConfig{Folders: []string{t.TempDir()}},
		Notify:   config.NotifyConfig{Desktop: off(), MPRIS: off()},
	}
}

func testState(t *testing.T) *state.Manager {
	t.Helper()
	st, err := state.OpenPath(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newApp(t *testing.T, cfg *config.Config) (*App, error) {
	t.Helper()
	return New(context.Background(), Options{
		Config: cfg,
		State:  testState(t),
		Device: player.NewMock(),
		Logger: zerolog.Nop(),
	})
}

func TestNew_Validates(t *testing.T) {
	_, err := New(context.Background(), Options{State: testState(t)})
	require.Error(t, err)
	_, err = New(context.Background(), Options{Config: testConfig(t)})
	require.Error(t, err)
}

func TestNew_LocalOnly(t *testing.T) {
	a, err := newApp(t, testConfig(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"local"}, a.Providers().Names())
	require.NotNil(t, a.Player())
	assert.Nil(t, a.Player().CurrentSong())
	assert.NoError(t, a.Close())
}

func TestNew_UnreachableSubsonicIsStillRegistered(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	cfg := testConfig(t)
	cfg.Provider = config.ProviderSubsonic
	cfg.Subsonic = config.SubsonicConfig{URL: url, Username: "u", Password: "p"}

	a, err := newApp(t, cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, []string{"local", "subsonic"}, a.Providers().Names())
}

func TestNew_SuggestionProviderMustBeConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider = config.ProviderSubsonic

	_, err := newApp(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"subsonic" is not configured`)
}

func TestCommand_LastfmLoginRequiresKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("provider = \"local\"\n"), 0o600))

	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetArgs([]string{"--config", path, "lastfm", "login"})
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, errNoLastfm)
}

func TestCommand_MissingConfigFile(t *testing.T) {
	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")})
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

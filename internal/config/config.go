package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const appName = "wavebot"

// Provider names accepted by the provider setting.
const (
	ProviderLocal    = "local"
	ProviderSubsonic = "subsonic"
)

type Config struct {
	// Provider feeds suggestions when the queue runs dry: "local" or "subsonic".
	Provider string `koanf:"provider"`

	Cache    CacheConfig    `koanf:"cache"`
	Player   PlayerConfig   `koanf:"player"`
	Local    LocalConfig    `koanf:"local"`
	Subsonic SubsonicConfig `koanf:"subsonic"`
	YouTube  YouTubeConfig  `koanf:"youtube"`

	// Last.fm scrobbling and similar artists (enabled when configured)
	Lastfm LastfmConfig `koanf:"lastfm"`

	// Radio suggestion settings for the local provider
	Radio RadioConfig `koanf:"radio"`

	Notify NotifyConfig `koanf:"notify"`
	Log    LogConfig    `koanf:"log"`
}

// CacheConfig controls where and how songs are materialized.
type CacheConfig struct {
	Dir            string `koanf:"dir"`             // default: $XDG_CACHE_HOME/wavebot/songs
	MaxDownloads   int    `koanf:"max_downloads"`   // concurrent downloads (default: 2)
	MaxConversions int    `koanf:"max_conversions"` // concurrent conversions (default: 2)
	Normalize      *bool  `koanf:"normalize"`       // peak-normalize converted files (default: true)
	Retries        int    `koanf:"retries"`         // attempts on transient errors (default: 3)
	RetryDelayMS   int    `koanf:"retry_delay_ms"`  // delay between attempts (default: 500)
}

// PlayerConfig holds audio output settings.
type PlayerConfig struct {
	HistorySize int `koanf:"history_size"` // last played songs kept (default: 20)
	ChunkMS     int `koanf:"chunk_ms"`     // output chunk length (default: 250)
	SampleRate  int `koanf:"sample_rate"`  // output sample rate (default: 44100)
}

// LocalConfig lists the folders scanned by the local provider.
type LocalConfig struct {
	Folders []string `koanf:"folders"`
}

// SubsonicConfig holds the Subsonic server credentials.
type SubsonicConfig struct {
	URL      string `koanf:"url"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	ClientID string `koanf:"client_id"` // default: "wavebot"
}

// YouTubeConfig enables the yt-dlp backed provider.
type YouTubeConfig struct {
	Enabled     bool `koanf:"enabled"`
	SearchLimit int  `koanf:"search_limit"` // default: 10
}

// LastfmConfig holds Last.fm scrobbling configuration.
type LastfmConfig struct {
	APIKey     string `koanf:"api_key"`
	APISecret  string `koanf:"api_secret"`
	SessionKey string `koanf:"session_key"` // overrides the session stored by "wavebot lastfm login"
}

// RadioConfig holds radio suggestion configuration.
type RadioConfig struct {
	BufferSize           int     `koanf:"buffer_size"`            // Suggestions picked per refill (1-50, default: 10)
	CacheTTLDays         int     `koanf:"cache_ttl_days"`         // Similar artists cache TTL in days (default: 7)
	DecayFactor          float64 `koanf:"decay_factor"`           // Score multiplier for recently played (default: 0.1)
	SimilarBoost         float64 `koanf:"similar_boost"`          // Multiplier for artists similar to the last played (default: 2.0)
	RecentWindow         int     `koanf:"recent_window"`          // Played songs considered recent (default: 50)
	ArtistMatchThreshold float64 `koanf:"artist_match_threshold"` // Fuzzy match threshold (0.0-1.0, default: 0.8)
}

// NotifyConfig toggles the desktop integrations.
type NotifyConfig struct {
	Desktop *bool `koanf:"desktop"` // default: true
	MPRIS   *bool `koanf:"mpris"`   // default: true
}

// LogConfig controls the log output.
type LogConfig struct {
	Level string `koanf:"level"` // default: "info"
	File  string `koanf:"file"`  // default: $XDG_STATE_HOME/wavebot/wavebot.log, "-" for stderr
}

// Load reads the configuration. An explicit path replaces the default
// lookup and must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(expandPath(path)), toml.Parser()); err != nil {
			return nil, err
		}
	} else {
		// Try config files in order of priority (last wins)
		for _, p := range getConfigPaths() {
			if _, err := os.Stat(p); err == nil {
				if err := k.Load(file.Provider(p), toml.Parser()); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{
		Provider: ProviderLocal,
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	for i, dir := range cfg.Local.Folders {
		cfg.Local.Folders[i] = expandPath(dir)
	}
	cfg.Cache.Dir = expandPath(cfg.Cache.Dir)
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	// Normalize subsonic URL (remove trailing slash)
	cfg.Subsonic.URL = strings.TrimSuffix(cfg.Subsonic.URL, "/")

	return cfg, nil
}

func getConfigPaths() []string {
	return []string{
		// 1. $XDG_CONFIG_HOME/wavebot/config.toml
		filepath.Join(xdg.ConfigHome, appName, "config.toml"),
		// 2. ./config.toml (pwd, highest priority)
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// HasSubsonicConfig returns true if a Subsonic server is configured.
func (c *Config) HasSubsonicConfig() bool {
	return c.Subsonic.URL != "" && c.Subsonic.Username != ""
}

// HasLastfmConfig returns true if Last.fm scrobbling is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}

// GetCacheConfig returns the cache configuration with defaults applied.
func (c *Config) GetCacheConfig() CacheConfig {
	cfg := c.Cache
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(xdg.CacheHome, appName, "songs")
	}
	if cfg.MaxDownloads <= 0 {
		cfg.MaxDownloads = 2
	}
	if cfg.MaxConversions <= 0 {
		cfg.MaxConversions = 2
	}
	if cfg.Normalize == nil {
		cfg.Normalize = ptr(true)
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelayMS <= 0 {
		cfg.RetryDelayMS = 500
	}
	return cfg
}

// RetryDelay returns the delay between materialization attempts.
func (c CacheConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// GetPlayerConfig returns the player configuration with defaults applied.
func (c *Config) GetPlayerConfig() PlayerConfig {
	cfg := c.Player
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 20
	}
	if cfg.ChunkMS <= 0 {
		cfg.ChunkMS = 250
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	return cfg
}

// Chunk returns the output chunk length.
func (c PlayerConfig) Chunk() time.Duration {
	return time.Duration(c.ChunkMS) * time.Millisecond
}

// GetSubsonicConfig returns the subsonic configuration with defaults applied.
func (c *Config) GetSubsonicConfig() SubsonicConfig {
	cfg := c.Subsonic
	if cfg.ClientID == "" {
		cfg.ClientID = appName
	}
	return cfg
}

// GetYouTubeConfig returns the youtube configuration with defaults applied.
func (c *Config) GetYouTubeConfig() YouTubeConfig {
	cfg := c.YouTube
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}
	return cfg
}

// GetRadioConfig returns the radio configuration with defaults applied.
func (c *Config) GetRadioConfig() RadioConfig {
	cfg := c.Radio

	// Apply defaults
	if cfg.BufferSize <= 0 || cfg.BufferSize > 50 {
		cfg.BufferSize = 10
	}
	if cfg.CacheTTLDays <= 0 {
		cfg.CacheTTLDays = 7
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor > 1 {
		cfg.DecayFactor = 0.1
	}
	if cfg.SimilarBoost < 1 {
		cfg.SimilarBoost = 2.0
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 50
	}
	if cfg.ArtistMatchThreshold <= 0 || cfg.ArtistMatchThreshold > 1 {
		cfg.ArtistMatchThreshold = 0.8
	}

	return cfg
}

// DesktopEnabled reports whether desktop notifications are on.
func (c *Config) DesktopEnabled() bool {
	return c.Notify.Desktop == nil || *c.Notify.Desktop
}

// MPRISEnabled reports whether the MPRIS interface is exported.
func (c *Config) MPRISEnabled() bool {
	return c.Notify.MPRIS == nil || *c.Notify.MPRIS
}

// GetLogConfig returns the log configuration with defaults applied.
func (c *Config) GetLogConfig() LogConfig {
	cfg := c.Log
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.File == "" {
		cfg.File = filepath.Join(xdg.StateHome, appName, appName+".log")
	}
	return cfg
}

func ptr[T any](v T) *T { return &v }

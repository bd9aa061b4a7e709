// Package config builds the daemon configuration once at startup.
//
// Only Load reads the process environment (through viper); every other
// component receives the resulting *Config by reference.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every MUSIC_AGENT_* variable.
const EnvPrefix = "MUSIC_AGENT"

// Keys understood by Load. They map to MUSIC_AGENT_<KEY> variables.
const (
	KeyDataDir      = "data_dir"
	KeyDBPath       = "db_path"
	KeySocketPath   = "socket_path"
	KeyLogPath      = "log_path"
	KeyLogLevel     = "log_level"
	KeyCredentials  = "credentials"
	KeyBin          = "bin"
	KeyPollInterval = "poll_interval"
	KeyDrainTimeout = "drain_timeout"
	KeyPlayer       = "player"
	KeyMPDAddr      = "mpd_addr"
	KeyMPDPassword  = "mpd_password"
	KeyMoodsFile    = "moods_file"
	KeyHTTPAddr     = "http_addr"
	KeySpotifyRate  = "spotify_rate"
)

// Player backends.
const (
	PlayerSpotify = "spotify"
	PlayerMPD     = "mpd"
)

const (
	defaultDirName      = ".music_agent"
	defaultPollInterval = 30 * time.Second
	defaultDrainTimeout = 10 * time.Second
	defaultMPDAddr      = "localhost:6600"
	defaultSpotifyRate  = 5.0
)

// ErrMissingSpotifyCredentials is returned when SPOTIFY_ID or SPOTIFY_SECRET
// is not set.
var ErrMissingSpotifyCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET environment variable")

// Config is the complete daemon configuration.
type Config struct {
	DataDir     string
	DBPath      string // file path for SQLite, or a postgres:// DSN
	SocketPath  string
	LogPath     string
	LogLevel    string
	Credentials string // cached OAuth token file
	Bin         string // executable used to start the daemon in the background

	PollInterval time.Duration
	DrainTimeout time.Duration

	Player      string
	MPDAddr     string
	MPDPassword string
	MoodsFile   string
	HTTPAddr    string // admin HTTP surface, disabled when empty

	// SpotifyRate caps Spotify Web API requests per second.
	SpotifyRate float64

	SpotifyID     string
	SpotifySecret string
	LastFMAPIKey  string
}

// NewViper returns a viper instance wired to the MUSIC_AGENT_ environment
// with all defaults that do not depend on the data directory.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyPollInterval, defaultPollInterval)
	v.SetDefault(KeyDrainTimeout, defaultDrainTimeout)
	v.SetDefault(KeyPlayer, PlayerSpotify)
	v.SetDefault(KeyMPDAddr, defaultMPDAddr)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeySpotifyRate, defaultSpotifyRate)

	// Unprefixed third-party credentials.
	_ = v.BindEnv("spotify_id", "SPOTIFY_ID")
	_ = v.BindEnv("spotify_secret", "SPOTIFY_SECRET")
	_ = v.BindEnv("lastfm_api_key", "LASTFM_API_KEY")
	return v
}

// Load resolves the configuration from v. Paths that are not set explicitly
// are placed under the data directory.
func Load(v *viper.Viper) (*Config, error) {
	dataDir := v.GetString(KeyDataDir)
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home dir: %w", err)
		}
		dataDir = filepath.Join(home, defaultDirName)
	}
	dataDir, err := expandHome(dataDir)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:       dataDir,
		LogLevel:      v.GetString(KeyLogLevel),
		Bin:           v.GetString(KeyBin),
		PollInterval:  v.GetDuration(KeyPollInterval),
		DrainTimeout:  v.GetDuration(KeyDrainTimeout),
		Player:        strings.ToLower(v.GetString(KeyPlayer)),
		MPDAddr:       v.GetString(KeyMPDAddr),
		MPDPassword:   v.GetString(KeyMPDPassword),
		HTTPAddr:      v.GetString(KeyHTTPAddr),
		SpotifyRate:   v.GetFloat64(KeySpotifyRate),
		SpotifyID:     v.GetString("spotify_id"),
		SpotifySecret: v.GetString("spotify_secret"),
		LastFMAPIKey:  v.GetString("lastfm_api_key"),
	}

	paths := []struct {
		dst      *string
		key      string
		fallback string
	}{
		{&cfg.DBPath, KeyDBPath, "music_agent.db"},
		{&cfg.SocketPath, KeySocketPath, "music_agent.sock"},
		{&cfg.LogPath, KeyLogPath, "music_agent.log"},
		{&cfg.Credentials, KeyCredentials, "token.json"},
		{&cfg.MoodsFile, KeyMoodsFile, ""},
	}
	for _, p := range paths {
		val := v.GetString(p.key)
		if val == "" {
			if p.fallback == "" {
				continue
			}
			val = filepath.Join(dataDir, p.fallback)
		}
		if !IsPostgresDSN(val) {
			if val, err = expandHome(val); err != nil {
				return nil, err
			}
		}
		*p.dst = val
	}

	if cfg.Bin == "" {
		if exe, err := os.Executable(); err == nil {
			cfg.Bin = exe
		}
	}

	return cfg, cfg.Validate()
}

// Environ returns the resolved settings as MUSIC_AGENT_* assignments, so a
// spawned daemon sees the same configuration as the command that started it.
func (c *Config) Environ() []string {
	vars := []struct {
		key string
		val string
	}{
		{KeyDataDir, c.DataDir},
		{KeyDBPath, c.DBPath},
		{KeySocketPath, c.SocketPath},
		{KeyLogPath, c.LogPath},
		{KeyLogLevel, c.LogLevel},
		{KeyCredentials, c.Credentials},
		{KeyBin, c.Bin},
		{KeyPollInterval, c.PollInterval.String()},
		{KeyDrainTimeout, c.DrainTimeout.String()},
		{KeyPlayer, c.Player},
		{KeyMPDAddr, c.MPDAddr},
		{KeyMoodsFile, c.MoodsFile},
		{KeyHTTPAddr, c.HTTPAddr},
		{KeySpotifyRate, strconv.FormatFloat(c.SpotifyRate, 'g', -1, 64)},
	}
	env := make([]string, 0, len(vars))
	for _, v := range vars {
		if v.val != "" {
			env = append(env, EnvPrefix+"_"+strings.ToUpper(v.key)+"="+v.val)
		}
	}
	return env
}

// Validate reports configuration values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.SpotifyRate <= 0 {
		return fmt.Errorf("spotify rate must be positive, got %g", c.SpotifyRate)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("drain timeout must not be negative, got %s", c.DrainTimeout)
	}
	switch c.Player {
	case PlayerSpotify, PlayerMPD:
	default:
		return fmt.Errorf("unknown player %q (want %s or %s)", c.Player, PlayerSpotify, PlayerMPD)
	}
	if c.SocketPath == "" {
		return errors.New("socket path is empty")
	}
	return nil
}

// RequireSpotify returns ErrMissingSpotifyCredentials unless both Spotify
// client credentials are present.
func (c *Config) RequireSpotify() error {
	if c.SpotifyID == "" || c.SpotifySecret == "" {
		return ErrMissingSpotifyCredentials
	}
	return nil
}

// EnsureDirs creates the data directory and the parents of every
// configured file path.
func (c *Config) EnsureDirs() error {
	dirs := []string{c.DataDir, filepath.Dir(c.SocketPath), filepath.Dir(c.LogPath)}
	if !IsPostgresDSN(c.DBPath) {
		dirs = append(dirs, filepath.Dir(c.DBPath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// IsPostgresDSN reports whether s selects the PostgreSQL store backend.
func IsPostgresDSN(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MUSIC_AGENT_DATA_DIR", dir)

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DataDir", cfg.DataDir, dir},
		{"DBPath", cfg.DBPath, filepath.Join(dir, "music_agent.db")},
		{"SocketPath", cfg.SocketPath, filepath.Join(dir, "music_agent.sock")},
		{"LogPath", cfg.LogPath, filepath.Join(dir, "music_agent.log")},
		{"Credentials", cfg.Credentials, filepath.Join(dir, "token.json")},
		{"Player", cfg.Player, PlayerSpotify},
		{"MoodsFile", cfg.MoodsFile, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}

	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
	if cfg.SpotifyRate != 5 {
		t.Errorf("SpotifyRate = %v, want 5", cfg.SpotifyRate)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MUSIC_AGENT_DATA_DIR", dir)
	t.Setenv("MUSIC_AGENT_DB_PATH", "postgres://localhost/music")
	t.Setenv("MUSIC_AGENT_SOCKET_PATH", filepath.Join(dir, "other.sock"))
	t.Setenv("MUSIC_AGENT_POLL_INTERVAL", "5s")
	t.Setenv("MUSIC_AGENT_PLAYER", "MPD")
	t.Setenv("SPOTIFY_ID", "id")
	t.Setenv("SPOTIFY_SECRET", "secret")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DBPath != "postgres://localhost/music" {
		t.Errorf("DBPath = %q, want postgres DSN untouched", cfg.DBPath)
	}
	if cfg.SocketPath != filepath.Join(dir, "other.sock") {
		t.Errorf("SocketPath = %q", cfg.SocketPath)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.Player != PlayerMPD {
		t.Errorf("Player = %q, want %q", cfg.Player, PlayerMPD)
	}
	if err := cfg.RequireSpotify(); err != nil {
		t.Errorf("RequireSpotify() = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		SocketPath:   "/tmp/x.sock",
		PollInterval: time.Second,
		Player:       PlayerSpotify,
		SpotifyRate:  5,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"negative drain", func(c *Config) { c.DrainTimeout = -time.Second }, true},
		{"unknown player", func(c *Config) { c.Player = "winamp" }, true},
		{"no socket", func(c *Config) { c.SocketPath = "" }, true},
		{"zero spotify rate", func(c *Config) { c.SpotifyRate = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequireSpotifyMissing(t *testing.T) {
	cfg := Config{SpotifyID: "only-id"}
	if err := cfg.RequireSpotify(); err != ErrMissingSpotifyCredentials {
		t.Errorf("RequireSpotify() = %v, want ErrMissingSpotifyCredentials", err)
	}
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfg := Config{
		DataDir:    filepath.Join(root, "data"),
		DBPath:     filepath.Join(root, "db", "music.db"),
		SocketPath: filepath.Join(root, "run", "music.sock"),
		LogPath:    filepath.Join(root, "log", "music.log"),
	}
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs() error = %v", err)
	}
}

func TestEnvironReproducesConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MUSIC_AGENT_DATA_DIR", dir)
	t.Setenv("MUSIC_AGENT_SOCKET_PATH", filepath.Join(dir, "other.sock"))
	t.Setenv("MUSIC_AGENT_POLL_INTERVAL", "7s")
	t.Setenv("MUSIC_AGENT_SPOTIFY_RATE", "2.5")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, kv := range cfg.Environ() {
		key, val, _ := strings.Cut(kv, "=")
		t.Setenv(key, val)
	}

	child, err := Load(NewViper())
	if err != nil {
		t.Fatalf("Load() in child error = %v", err)
	}
	if child.SocketPath != cfg.SocketPath {
		t.Errorf("SocketPath = %q, want %q", child.SocketPath, cfg.SocketPath)
	}
	if child.PollInterval != 7*time.Second {
		t.Errorf("PollInterval = %v, want 7s", child.PollInterval)
	}
	if child.SpotifyRate != 2.5 {
		t.Errorf("SpotifyRate = %v, want 2.5", child.SpotifyRate)
	}
	if child.DBPath != cfg.DBPath {
		t.Errorf("DBPath = %q, want %q", child.DBPath, cfg.DBPath)
	}
}

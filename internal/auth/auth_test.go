package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/justestif/go-music-agent/internal/apperr"
)

func TestTokenCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session", "token.json")
	cache := NewTokenCache(path)

	if got, err := cache.Load(); err != nil || got != nil {
		t.Fatalf("Load() before Save = %v, %v; want nil, nil", got, err)
	}

	first := &oauth2.Token{AccessToken: "a1", RefreshToken: "r1", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	refreshed := &oauth2.Token{AccessToken: "a2", RefreshToken: "r1", TokenType: "Bearer", Expiry: time.Now().Add(2 * time.Hour)}
	for _, tok := range []*oauth2.Token{first, refreshed} {
		if err := cache.Save(tok); err != nil {
			t.Fatalf("Save(%s) error = %v", tok.AccessToken, err)
		}
	}

	got, err := cache.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != "a2" || got.RefreshToken != "r1" {
		t.Errorf("Load() = %q/%q, want the refreshed token a2/r1", got.AccessToken, got.RefreshToken)
	}
	if !got.Expiry.Equal(refreshed.Expiry) {
		t.Errorf("Expiry = %v, want %v", got.Expiry, refreshed.Expiry)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Errorf("token file mode = %o, want no group or other access", perm)
	}

	// The atomic replace leaves no temp files behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("session dir holds %d entries, want only the token", len(entries))
	}
}

func TestTokenCacheErrors(t *testing.T) {
	t.Run("nil token", func(t *testing.T) {
		if err := NewTokenCache(filepath.Join(t.TempDir(), "token.json")).Save(nil); err == nil {
			t.Error("Save(nil) succeeded")
		}
	})
	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token.json")
		if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := NewTokenCache(path).Load(); err == nil {
			t.Error("Load() of a corrupt file succeeded")
		}
	})
}

func TestTokenCache_Valid(t *testing.T) {
	tests := []struct {
		name  string
		token *oauth2.Token
		want  bool
	}{
		{"missing file", nil, false},
		{"unexpired", &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}, true},
		{"expired with refresh", &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)}, true},
		{"expired without refresh", &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(-time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewTokenCache(filepath.Join(t.TempDir(), "token.json"))
			if tt.token != nil {
				if err := cache.Save(tt.token); err != nil {
					t.Fatalf("Save() error = %v", err)
				}
			}
			if got := cache.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		secret string
	}{
		{"both missing", "", ""},
		{"id missing", "", "secret"},
		{"secret missing", "id", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.id, tt.secret, filepath.Join(t.TempDir(), "token.json"))
			if err != ErrMissingCredentials {
				t.Errorf("New() error = %v, want ErrMissingCredentials", err)
			}
		})
	}
}

func TestLoad_NoCachedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	loader, err := New("test-client-id", "test-client-secret", path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if loader.Cache().Path() != path {
		t.Errorf("Cache().Path() = %q, want %q", loader.Cache().Path(), path)
	}

	_, err = loader.Load(context.Background())
	if !errors.Is(err, ErrNoCachedToken) {
		t.Fatalf("Load() error = %v, want ErrNoCachedToken", err)
	}
	if !apperr.Is(err, apperr.KindAuth) {
		t.Errorf("Load() error kind = %q, want auth", apperr.KindOf(err))
	}
}

func TestLoad_CorruptToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	loader, err := New("id", "secret", path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = loader.Load(context.Background())
	if !apperr.Is(err, apperr.KindAuth) {
		t.Errorf("Load() error kind = %q, want auth", apperr.KindOf(err))
	}
}

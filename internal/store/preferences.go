package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/justestif/go-music-agent/internal/apperr"
)

// GetPreference returns the value stored under key, or ErrNotFound.
func (s *Store) GetPreference(ctx context.Context, key string) (Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p         = Preference{Key: strings.TrimSpace(key)}
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT value, updated_at FROM preferences WHERE key = ?`),
		p.Key).Scan(&p.Value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Preference{}, ErrNotFound
	}
	if err != nil {
		return Preference{}, dbError("getting preference", err)
	}
	p.UpdatedAt = fromNanos(updatedAt)
	return p, nil
}

// SetPreference stores value under key; the last write wins.
func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperr.Invalid("store.SetPreference", "preference key is empty")
	}
	_, err := s.exec(ctx, "setting preference", `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, nanos(time.Now()))
	return err
}

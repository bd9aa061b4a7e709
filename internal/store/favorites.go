package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/justestif/go-music-agent/internal/apperr"
)

const favoriteColumns = `artist_id, name, play_count, liked_at`

// UpsertFavorite likes an artist. A new favorite starts with a play count
// of zero; liking an existing one increments its count and refreshes the
// name. created reports whether the row was new.
func (s *Store) UpsertFavorite(ctx context.Context, artistID, name string) (fav Favorite, created bool, err error) {
	artistID = strings.TrimSpace(artistID)
	name = strings.TrimSpace(name)
	if artistID == "" {
		return Favorite{}, false, apperr.Invalid("store.UpsertFavorite", "artist id is empty")
	}
	if name == "" {
		name = artistID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		INSERT INTO favorites (artist_id, name, play_count, liked_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (artist_id) DO UPDATE SET
			play_count = favorites.play_count + 1,
			name = excluded.name
		RETURNING `+favoriteColumns),
		artistID, name, nanos(time.Now()))
	fav, err = scanFavorite(row)
	if err != nil {
		return Favorite{}, false, dbError("upserting favorite", err)
	}
	return fav, fav.PlayCount == 0, nil
}

// GetFavorite returns the favorite with the given artist id.
func (s *Store) GetFavorite(ctx context.Context, artistID string) (Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT `+favoriteColumns+` FROM favorites WHERE artist_id = ?`),
		artistID)
	fav, err := scanFavorite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Favorite{}, ErrNotFound
	}
	if err != nil {
		return Favorite{}, dbError("getting favorite", err)
	}
	return fav, nil
}

// ListFavorites returns up to limit favorites, most played first.
func (s *Store) ListFavorites(ctx context.Context, limit int) ([]Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT `+favoriteColumns+` FROM favorites
		ORDER BY play_count DESC, liked_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, dbError("listing favorites", err)
	}
	defer rows.Close()

	var favs []Favorite
	for rows.Next() {
		f, err := scanFavorite(rows)
		if err != nil {
			return nil, dbError("scanning favorite", err)
		}
		favs = append(favs, f)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("listing favorites", err)
	}
	return favs, nil
}

func scanFavorite(r rowScanner) (Favorite, error) {
	var (
		f       Favorite
		likedAt int64
	)
	if err := r.Scan(&f.ArtistID, &f.Name, &f.PlayCount, &likedAt); err != nil {
		return Favorite{}, err
	}
	f.LikedAt = fromNanos(likedAt)
	return f, nil
}

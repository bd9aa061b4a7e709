package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/music"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "music.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTrack(id, title string, artistID string, artists ...string) music.TrackReference {
	return music.TrackReference{
		ID:       id,
		URI:      "spotify:track:" + id,
		Title:    title,
		Artists:  artists,
		ArtistID: artistID,
		Album:    "Album " + id,
		Duration: 3*time.Minute + 30*time.Second,
		Year:     1987,
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "music.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "sqlite", s.Backend())
	assert.NoError(t, s.Ping(context.Background()))
}

func TestUpsertTagIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := TagInput{
		SubjectID:   "artist-1",
		SubjectKind: music.SubjectArtist,
		SubjectName: "John Hiatt",
		Text:        "Americana",
		Category:    music.CategoryGenre,
		Confidence:  1.0,
		Source:      music.SourceAuto,
	}
	_, err := s.UpsertTag(ctx, in)
	require.NoError(t, err)
	second, err := s.UpsertTag(ctx, in)
	require.NoError(t, err)

	tags, err := s.QueryBySubject(ctx, "artist-1", music.SubjectArtist)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "americana", tags[0].Text)
	assert.Equal(t, 1.0, tags[0].Confidence)
	assert.Equal(t, music.SourceAuto, tags[0].Source)
	assert.Equal(t, second.ID, tags[0].ID)
}

func TestUpsertTagManualNotDowngraded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	manual := TagInput{
		SubjectID:   "track-1",
		SubjectKind: music.SubjectTrack,
		Text:        "mellow",
		Category:    music.CategoryMood,
		Confidence:  1.0,
		Source:      music.SourceManual,
	}
	_, err := s.UpsertTag(ctx, manual)
	require.NoError(t, err)

	auto := manual
	auto.Source = music.SourceAuto
	auto.Confidence = 0.4
	auto.Category = music.CategoryCustom
	got, err := s.UpsertTag(ctx, auto)
	require.NoError(t, err)

	assert.Equal(t, music.SourceManual, got.Source)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, music.CategoryMood, got.Category)
}

func TestUpsertTagManualOverridesAuto(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	auto := TagInput{
		SubjectID:   "track-1",
		SubjectKind: music.SubjectTrack,
		Text:        "Mellow",
		Category:    music.CategoryMood,
		Confidence:  0.8,
		Source:      music.SourceAuto,
	}
	_, err := s.UpsertTag(ctx, auto)
	require.NoError(t, err)

	manual := auto
	manual.Text = "mellow"
	manual.Source = music.SourceManual
	manual.Confidence = 1.0
	got, err := s.UpsertTag(ctx, manual)
	require.NoError(t, err)

	assert.Equal(t, music.SourceManual, got.Source)
	assert.Equal(t, "mellow", got.Text)

	tags, err := s.QueryBySubject(ctx, "track-1", music.SubjectTrack)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestUpsertTagValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   TagInput
	}{
		{"no subject", TagInput{SubjectKind: music.SubjectTrack, Text: "x"}},
		{"bad kind", TagInput{SubjectID: "1", SubjectKind: "album", Text: "x"}},
		{"blank text", TagInput{SubjectID: "1", SubjectKind: music.SubjectTrack, Text: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.UpsertTag(ctx, tt.in)
			assert.True(t, apperr.Is(err, apperr.KindInvalid), "err = %v", err)
		})
	}
}

func TestQueryByTagMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.UpsertTag(ctx, TagInput{
			SubjectID:   id,
			SubjectKind: music.SubjectArtist,
			SubjectName: "Artist " + id,
			Text:        "rock",
			Category:    music.CategoryGenre,
			Confidence:  1,
		})
		require.NoError(t, err)
	}
	_, err := s.UpsertTag(ctx, TagInput{
		SubjectID: "d", SubjectKind: music.SubjectTrack, Text: "rock", Category: music.CategoryCustom,
	})
	require.NoError(t, err)

	all, err := s.QueryByTag(ctx, "ROCK", nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"d", "c", "b", "a"}, subjectIDs(all))

	genre := music.CategoryGenre
	genres, err := s.QueryByTag(ctx, "rock", &genre)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, subjectIDs(genres))
	assert.Equal(t, "Artist c", genres[0].SubjectName)

	texts, err := s.TagTexts(ctx, music.CategoryGenre)
	require.NoError(t, err)
	assert.Equal(t, []string{"rock"}, texts)
}

func subjectIDs(subjects []TaggedSubject) []string {
	ids := make([]string, len(subjects))
	for i, s := range subjects {
		ids[i] = s.SubjectID
	}
	return ids
}

func TestRecordPlayAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 5
	tr := testTrack("t1", "Have a Little Faith in Me", "hiatt", "John Hiatt")
	for i := 0; i < n; i++ {
		_, err := s.RecordPlay(ctx, tr, music.TriggerPoll)
		require.NoError(t, err)
	}

	count, err := s.PlayCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)

	plays, err := s.RecentPlays(ctx, 100)
	require.NoError(t, err)
	require.Len(t, plays, n)
	for i := 1; i < len(plays); i++ {
		assert.False(t, plays[i].PlayedAt.After(plays[i-1].PlayedAt), "plays not ordered by time")
		assert.Greater(t, plays[i-1].ID, plays[i].ID)
	}
	assert.Equal(t, tr.Artists, plays[0].Track.Artists)
	assert.Equal(t, tr.Duration, plays[0].Track.Duration)
	assert.Equal(t, music.TriggerPoll, plays[0].Trigger)

	played, err := s.PlayedTracks(ctx)
	require.NoError(t, err)
	assert.Len(t, played, 1)
}

func TestRecordPlayKeepsArtistNamesWithCommas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tr := testTrack("t2", "Teach Your Children", "csny", "Crosby, Stills, Nash & Young")
	_, err := s.RecordPlay(ctx, tr, music.TriggerUserPlay)
	require.NoError(t, err)

	plays, err := s.RecentPlays(ctx, 1)
	require.NoError(t, err)
	require.Len(t, plays, 1)
	assert.Equal(t, []string{"Crosby, Stills, Nash & Young"}, plays[0].Track.Artists)
}

func TestUpsertFavorite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fav, created, err := s.UpsertFavorite(ctx, "hiatt", "john hiatt")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(0), fav.PlayCount)

	fav, created, err = s.UpsertFavorite(ctx, "hiatt", "John Hiatt")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(1), fav.PlayCount)
	assert.Equal(t, "John Hiatt", fav.Name)

	_, err = s.RecordPlay(ctx, testTrack("t1", "Slow Turning", "hiatt", "John Hiatt"), music.TriggerPoll)
	require.NoError(t, err)

	fav, err = s.GetFavorite(ctx, "hiatt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fav.PlayCount)

	_, err = s.GetFavorite(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	favs, err := s.ListFavorites(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, favs, 1)
}

func TestPreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetPreference(ctx, "volume")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetPreference(ctx, "volume", "40"))
	require.NoError(t, s.SetPreference(ctx, "volume", "60"))

	p, err := s.GetPreference(ctx, "volume")
	require.NoError(t, err)
	assert.Equal(t, "60", p.Value)

	assert.True(t, apperr.Is(s.SetPreference(ctx, " ", "x"), apperr.KindInvalid))
}

func TestLyricSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tr := testTrack("t1", "Some Song", "a1", "Some Artist")
	_, err := s.AddLyricPattern(ctx, tr, "Encumbered forever")
	require.NoError(t, err)
	_, err = s.AddLyricPattern(ctx, tr, "encumbered, forever!")
	require.NoError(t, err)

	patterns, err := s.LyricPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1, "same normalized fragment must not duplicate")

	tests := []struct {
		query string
		want  int
	}{
		{"encumbered forever", 1},
		{"what's the song where they say encumbered forever by desire", 1},
		{"dancing in the dark", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := s.SearchLyrics(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			if tt.want > 0 {
				assert.Equal(t, "t1", got[0].Track.ID)
				assert.NotZero(t, got[0].ID)
			}
		})
	}
}

func TestSearchText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordPlay(ctx, testTrack("q1", "Bohemian Rhapsody", "queen", "Queen"), music.TriggerPoll)
	require.NoError(t, err)
	_, err = s.RecordPlay(ctx, testTrack("p1", "High Hopes", "floyd", "Pink Floyd"), music.TriggerPoll)
	require.NoError(t, err)

	results, err := s.SearchText(ctx, "bohemiam rapsody")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, ResultTrack, results[0].Kind)
	assert.Equal(t, "q1", results[0].Track.ID)

	results, err = s.SearchText(ctx, "xyzzyunrelated")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPlaylistsAndFeatures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPlaylists(ctx, []music.Playlist{
		{ID: "p2", URI: "spotify:playlist:p2", Name: "Road Trip", TrackCount: 12},
		{ID: "p1", URI: "spotify:playlist:p1", Name: "Morning", TrackCount: 3},
	}))
	require.NoError(t, s.UpsertPlaylists(ctx, []music.Playlist{
		{ID: "p1", URI: "spotify:playlist:p1", Name: "Morning Coffee", TrackCount: 4},
	}))
	lists, err := s.ListPlaylists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "Morning Coffee", lists[0].Name)
	assert.Equal(t, 4, lists[0].TrackCount)

	_, err = s.RecordPlay(ctx, testTrack("t1", "Song", "a1", "A"), music.TriggerPoll)
	require.NoError(t, err)
	require.NoError(t, s.SaveFeatures(ctx, music.AudioFeatures{TrackID: "t1", Energy: 0.5, Tempo: 120}))
	require.NoError(t, s.SaveFeatures(ctx, music.AudioFeatures{TrackID: "never-played", Energy: 0.9}))

	feats, err := s.RecentFeatures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, feats, 1)
	assert.Equal(t, "t1", feats[0].TrackID)
	assert.InDelta(t, 120, feats[0].Tempo, 0.001)
}

func TestUntaggedTracks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordPlay(ctx, testTrack("t1", "Tagged Track", "a1", "A"), music.TriggerPoll)
	require.NoError(t, err)
	_, err = s.RecordPlay(ctx, testTrack("t2", "Tagged Artist", "a2", "B"), music.TriggerPoll)
	require.NoError(t, err)
	_, err = s.RecordPlay(ctx, testTrack("t3", "Bare", "a3", "C"), music.TriggerPoll)
	require.NoError(t, err)

	_, err = s.UpsertTag(ctx, TagInput{SubjectID: "t1", SubjectKind: music.SubjectTrack, Text: "slow", Category: music.CategoryTempo})
	require.NoError(t, err)
	_, err = s.UpsertTag(ctx, TagInput{SubjectID: "a2", SubjectKind: music.SubjectArtist, Text: "folk", Category: music.CategoryGenre})
	require.NoError(t, err)

	untagged, err := s.UntaggedTracks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, untagged, 1)
	assert.Equal(t, "t3", untagged[0].ID)
}

// TestConcurrentWriters hammers the store from many goroutines, the way
// simultaneous clients and the poll loop do.
func TestConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const clients = 12
	const perClient = 10

	var wg sync.WaitGroup
	errs := make(chan error, clients*perClient*3)
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < perClient; i++ {
				// Every client writes the same tag keys to provoke conflicts.
				if _, err := s.UpsertTag(ctx, TagInput{
					SubjectID:   fmt.Sprintf("artist-%d", i),
					SubjectKind: music.SubjectArtist,
					Text:        "rock",
					Category:    music.CategoryGenre,
					Confidence:  1,
				}); err != nil {
					errs <- err
				}
				if _, _, err := s.UpsertFavorite(ctx, "shared-artist", "Shared"); err != nil {
					errs <- err
				}
				tr := testTrack(fmt.Sprintf("t-%d-%d", c, i), "Song", "", "Someone")
				if _, err := s.RecordPlay(ctx, tr, music.TriggerUserPlay); err != nil {
					errs <- err
				}
			}
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent write failed: %v", err)
	}

	rock, err := s.QueryByTag(ctx, "rock", nil)
	require.NoError(t, err)
	assert.Len(t, rock, perClient, "duplicate uniqueness-key rows")

	fav, err := s.GetFavorite(ctx, "shared-artist")
	require.NoError(t, err)
	assert.Equal(t, int64(clients*perClient-1), fav.PlayCount, "lost favorite increments")

	count, err := s.PlayCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(clients*perClient), count, "lost history rows")
}

func TestRebind(t *testing.T) {
	got := postgresDialect.rebind("SELECT a FROM t WHERE x = ? AND y IN (?, ?)")
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)", got)
	assert.Equal(t, "x = ?", sqliteDialect.rebind("x = ?"))
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, postgresDialect, dialectFor("postgres://user@localhost/music"))
	assert.Equal(t, postgresDialect, dialectFor("postgresql://localhost/music"))
	assert.Equal(t, sqliteDialect, dialectFor("/var/lib/music.db"))

	for _, stmt := range postgresDialect.schema() {
		assert.NotContains(t, stmt, "AUTOINCREMENT")
		assert.NotContains(t, stmt, "{{")
	}
}

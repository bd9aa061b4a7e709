package daemon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/config"
	"github.com/justestif/go-music-agent/internal/music"
	"github.com/justestif/go-music-agent/internal/search"
)

func TestExecuteOpcodes(t *testing.T) {
	env := newEnv(t)
	env.start(t)
	ctx := context.Background()

	resp := env.d.Execute(ctx, " PING ")
	assert.True(t, resp.OK)
	assert.Equal(t, "pong", resp.Message)

	resp = env.d.Execute(ctx, "status")
	require.True(t, resp.OK)
	st, ok := resp.Result.(Status)
	require.True(t, ok)
	assert.Equal(t, config.PlayerSpotify, st.Player)
	assert.Contains(t, resp.Message, "player spotify")

	resp = env.d.Execute(ctx, "   ")
	assert.False(t, resp.OK)
	assert.Equal(t, apperr.KindInvalid, resp.Kind)
}

func TestExecuteHelpListsMoods(t *testing.T) {
	env := newEnv(t, WithMoodMap(search.MoodMap{"stormy": {"metal"}, "calm": {"ambient"}}))
	env.start(t)

	resp := env.d.Execute(context.Background(), "help")
	require.True(t, resp.OK, resp.Message)
	assert.Contains(t, resp.Message, "Moods: calm, stormy")
	assert.Equal(t, []string{"calm", "stormy"}, resp.Result)
}

func TestExecuteRecoversHandlerPanic(t *testing.T) {
	env := newEnv(t)
	env.player.panicOnPause = true
	env.start(t)
	ctx := context.Background()

	resp := env.d.Execute(ctx, "pause")
	assert.False(t, resp.OK)
	assert.Equal(t, apperr.KindInternal, resp.Kind)

	resp = env.d.Execute(ctx, "ping")
	assert.True(t, resp.OK, "daemon keeps answering after a panic")
}

func TestExecutePlayback(t *testing.T) {
	env := newEnv(t)
	env.start(t)
	ctx := context.Background()

	resp := env.d.Execute(ctx, "play me some enya")
	require.True(t, resp.OK, resp.Message)
	played := env.player.lastPlayed()
	require.NotEmpty(t, played)
	assert.Equal(t, orinocoFlow.ID, played[0].ID)

	// The user play is recorded and the poll loop sees no change.
	require.NotNil(t, env.d.lastSeenTrack())
	assert.Equal(t, PollNoChange, env.d.PollOnce(ctx))
	plays, err := env.d.store.RecentPlays(ctx, 5)
	require.NoError(t, err)
	require.Len(t, plays, 1)
	assert.Equal(t, music.TriggerUserPlay, plays[0].Trigger)

	resp = env.d.Execute(ctx, "play me some nobody at all")
	assert.False(t, resp.OK)
	assert.Equal(t, apperr.KindNotFound, resp.Kind)
}

func TestExecuteFailuresCarryKind(t *testing.T) {
	env := newEnv(t)
	env.start(t)
	env.player.setErr(apperr.New(apperr.KindAuth, "fake", "token revoked"))

	resp := env.d.Execute(context.Background(), "skip")
	assert.False(t, resp.OK)
	assert.Equal(t, apperr.KindAuth, resp.Kind)
	assert.True(t, env.d.Degraded())
}

func TestExecuteFavorites(t *testing.T) {
	env := newEnv(t)
	env.start(t)
	ctx := context.Background()

	resp := env.d.Execute(ctx, "like this")
	assert.Equal(t, apperr.KindNotFound, resp.Kind, "nothing is playing")

	resp = env.d.Execute(ctx, "like john hiatt")
	require.True(t, resp.OK, resp.Message)
	assert.Contains(t, resp.Message, "Added John Hiatt")

	env.player.setTrack(&haveALittleFaith)
	resp = env.d.Execute(ctx, "like this")
	require.True(t, resp.OK, resp.Message)
	assert.Contains(t, resp.Message, "already a favorite")

	favs, err := env.d.store.ListFavorites(ctx, 10)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, hiatt.ID, favs[0].ArtistID)

	resp = env.d.Execute(ctx, "my favorites")
	require.True(t, resp.OK)
	assert.Contains(t, resp.Message, "John Hiatt")
}

func TestExecuteTagging(t *testing.T) {
	env := newEnv(t)
	env.start(t)
	ctx := context.Background()

	env.player.setTrack(&haveALittleFaith)
	resp := env.d.Execute(ctx, "tag this as mellow")
	require.True(t, resp.OK, resp.Message)

	tags, err := env.d.store.QueryBySubject(ctx, haveALittleFaith.ID, music.SubjectTrack)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, music.CategoryMood, tags[0].Category)
	assert.Equal(t, music.SourceManual, tags[0].Source)
	assert.InDelta(t, 1.0, tags[0].Confidence, 1e-9)

	resp = env.d.Execute(ctx, "show me everything tagged as mellow")
	require.True(t, resp.OK, resp.Message)
	assert.Contains(t, resp.Message, "Have a Little Faith in Me")

	resp = env.d.Execute(ctx, "show me everything tagged as shoegaze")
	assert.Equal(t, apperr.KindNotFound, resp.Kind)
}

func TestExecuteMoodSearch(t *testing.T) {
	env := newEnv(t)
	env.start(t)
	ctx := context.Background()

	_, err := env.d.AnalyzeAndStore(ctx, haveALittleFaith, music.TriggerPoll)
	require.NoError(t, err)

	resp := env.d.Execute(ctx, "find some mellow tunes")
	require.True(t, resp.OK, resp.Message)
	hits, ok := resp.Result.([]HitView)
	require.True(t, ok)
	require.NotEmpty(t, hits)
	assert.Equal(t, haveALittleFaith.ID, hits[0].Track.ID)
	assert.Equal(t, sourceTags, hits[0].Source)

	resp = env.d.Execute(ctx, "play some mellow music")
	require.True(t, resp.OK, resp.Message)
	played := env.player.lastPlayed()
	require.NotEmpty(t, played)
	assert.Equal(t, haveALittleFaith.ID, played[0].ID)
}

func TestExecuteLyrics(t *testing.T) {
	env := newEnv(t, WithLyricsSource(fakeLyrics{text: "When the road gets dark"}))
	env.start(t)
	ctx := context.Background()

	env.player.setTrack(&haveALittleFaith)
	resp := env.d.Execute(ctx, "lyrics")
	require.True(t, resp.OK, resp.Message)
	assert.Contains(t, resp.Message, "When the road gets dark")

	resp = env.d.Execute(ctx, "remember the line 'have a little faith' for have a little faith in me")
	require.True(t, resp.OK, resp.Message)

	resp = env.d.Execute(ctx, "what's that song where they say 'little faith'")
	require.True(t, resp.OK, resp.Message)
	hits, ok := resp.Result.([]HitView)
	require.True(t, ok)
	require.NotEmpty(t, hits)
	assert.Equal(t, haveALittleFaith.ID, hits[0].Track.ID)
	assert.Equal(t, sourceLyrics, hits[0].Source)
}

func TestLyricSearchRemembersCatalogMatch(t *testing.T) {
	env := newEnv(t)
	env.catalog.results["encumbered forever"] = []music.TrackReference{haveALittleFaith}
	env.start(t)
	ctx := context.Background()

	resp := env.d.Execute(ctx, "what's that song where they say 'encumbered forever'")
	require.True(t, resp.OK, resp.Message)
	assert.Contains(t, resp.Message, "catalog suggests")

	patterns, err := env.d.store.LyricPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, haveALittleFaith.ID, patterns[0].Track.ID)
	assert.Equal(t, "encumbered forever", patterns[0].Fragment)

	resp = env.d.Execute(ctx, "what's that song where they say 'encumbered forever'")
	require.True(t, resp.OK, resp.Message)
	hits, ok := resp.Result.([]HitView)
	require.True(t, ok)
	require.NotEmpty(t, hits)
	assert.Equal(t, sourceLyrics, hits[0].Source)
}

func TestExecuteLyricsUnconfigured(t *testing.T) {
	env := newEnv(t)
	env.start(t)
	env.player.setTrack(&haveALittleFaith)

	resp := env.d.Execute(context.Background(), "lyrics")
	assert.False(t, resp.OK)
	assert.Equal(t, apperr.KindInvalid, resp.Kind)
}

func TestExecutePreferences(t *testing.T) {
	env := newEnv(t)
	env.start(t)
	ctx := context.Background()

	resp := env.d.Execute(ctx, "get volume")
	assert.Equal(t, apperr.KindNotFound, resp.Kind)

	resp = env.d.Execute(ctx, "set volume to 50")
	require.True(t, resp.OK, resp.Message)

	resp = env.d.Execute(ctx, "get volume")
	require.True(t, resp.OK, resp.Message)
	assert.Equal(t, map[string]string{"volume": "50"}, resp.Result)
}

func TestExecutePlaylists(t *testing.T) {
	env := newEnv(t)
	env.player.playlists = []music.Playlist{
		{ID: "pl-1", Name: "Road Trip", TrackCount: 40},
		{ID: "pl-2", Name: "Liked Songs", TrackCount: 812},
	}
	env.start(t)
	ctx := context.Background()

	resp := env.d.Execute(ctx, "list playlists")
	require.True(t, resp.OK, resp.Message)
	assert.Contains(t, resp.Message, "Road Trip (40 tracks)")

	resp = env.d.Execute(ctx, "shuffle liked songs")
	require.True(t, resp.OK, resp.Message)
	assert.Equal(t, []string{"Liked Songs"}, env.player.started)

	// The cached list answers when the player cannot.
	env.player.setErr(apperr.New(apperr.KindTransport, "fake", "unreachable"))
	resp = env.d.Execute(ctx, "list playlists")
	require.True(t, resp.OK, resp.Message)
	assert.Contains(t, resp.Message, "cached")
}

func TestExecuteDescribeDoesNotWrite(t *testing.T) {
	env := newEnv(t)
	env.start(t)
	ctx := context.Background()

	env.player.setTrack(&haveALittleFaith)
	resp := env.d.Execute(ctx, "what genre is this")
	require.True(t, resp.OK, resp.Message)
	assert.Contains(t, resp.Message, "americana")

	n, err := env.d.store.PlayCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	resp = env.d.Execute(ctx, "sync")
	require.True(t, resp.OK, resp.Message)
	n, err = env.d.store.PlayCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestExecuteHistoryAndMoodReport(t *testing.T) {
	env := newEnv(t)
	env.start(t)
	ctx := context.Background()

	resp := env.d.Execute(ctx, "history")
	require.True(t, resp.OK, resp.Message)
	assert.Equal(t, "Nothing played yet.", resp.Message)

	resp = env.d.Execute(ctx, "moods")
	assert.False(t, resp.OK)
	assert.Equal(t, apperr.KindNotFound, resp.Kind)

	env.player.setTrack(&haveALittleFaith)
	require.True(t, env.d.Execute(ctx, "sync").OK)

	resp = env.d.Execute(ctx, "history")
	require.True(t, resp.OK, resp.Message)
	assert.Contains(t, resp.Message, haveALittleFaith.Title)

	resp = env.d.Execute(ctx, "moods")
	require.True(t, resp.OK, resp.Message)
	assert.Contains(t, resp.Message, "last 1 analyzed tracks")
}

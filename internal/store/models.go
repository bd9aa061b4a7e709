package store

import (
	"encoding/json"
	"time"

	"github.com/justestif/go-music-agent/internal/music"
)

// Tag is a stored tag row.
type Tag struct {
	ID          int64
	SubjectID   string
	SubjectKind music.SubjectKind
	SubjectName string
	Text        string
	Category    music.TagCategory
	Confidence  float64
	Source      music.TagSource
	TaggedAt    time.Time
}

// TagInput is the argument to UpsertTag.
type TagInput struct {
	SubjectID   string
	SubjectKind music.SubjectKind
	SubjectName string
	Text        string
	Category    music.TagCategory
	Confidence  float64
	Source      music.TagSource
}

// Favorite is a liked artist.
type Favorite struct {
	ArtistID  string
	Name      string
	PlayCount int64
	LikedAt   time.Time
}

// PlayHistoryEntry is one recorded play.
type PlayHistoryEntry struct {
	ID       int64
	Track    music.TrackReference
	Trigger  music.Trigger
	PlayedAt time.Time
}

// LyricPattern is a remembered lyric fragment.
type LyricPattern struct {
	ID         int64
	Track      music.TrackReference
	Fragment   string
	Normalized string
	CreatedAt  time.Time
}

// Preference is a key/value setting.
type Preference struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// SearchResultKind tells a track hit from a lyric hit.
type SearchResultKind string

const (
	ResultTrack SearchResultKind = "track"
	ResultLyric SearchResultKind = "lyric"
)

// SearchResult is one hit from SearchText.
type SearchResult struct {
	Kind     SearchResultKind
	Track    music.TrackReference
	Fragment string // set for lyric hits
	Score    float64
}

// encodeArtists stores artist names as a JSON array so names containing
// commas survive.
func encodeArtists(artists []string) string {
	if len(artists) == 0 {
		return "[]"
	}
	data, err := json.Marshal(artists)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeArtists(s string) []string {
	var artists []string
	if err := json.Unmarshal([]byte(s), &artists); err != nil && s != "" {
		return []string{s}
	}
	return artists
}

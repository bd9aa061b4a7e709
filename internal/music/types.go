// Package music holds the value types shared by the catalog adapters, the
// knowledge store and the daemon.
package music

import (
	"strings"
	"time"
)

// SubjectKind identifies what a tag is attached to.
type SubjectKind string

const (
	SubjectArtist SubjectKind = "artist"
	SubjectTrack  SubjectKind = "track"
)

// Valid reports whether k is a known subject kind.
func (k SubjectKind) Valid() bool {
	return k == SubjectArtist || k == SubjectTrack
}

// TrackReference identifies a track in the remote catalog.
// Values are never mutated after they are fetched.
type TrackReference struct {
	ID       string
	URI      string
	Title    string
	Artists  []string
	ArtistID string // primary artist, empty when unknown
	Album    string
	Duration time.Duration
	Year     int
}

// Artist returns the artist names joined by ", ".
func (t TrackReference) Artist() string {
	return strings.Join(t.Artists, ", ")
}

// PrimaryArtist returns the first listed artist name.
func (t TrackReference) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// IsZero reports whether t refers to no track at all.
func (t TrackReference) IsZero() bool {
	return t.ID == "" && t.Title == ""
}

// String formats the track as "Title by Artist".
func (t TrackReference) String() string {
	if len(t.Artists) == 0 {
		return t.Title
	}
	return t.Title + " by " + t.Artist()
}

// Artist is a catalog artist with its genre list.
type Artist struct {
	ID     string
	URI    string
	Name   string
	Genres []string
}

// Playlist is a playable collection in the playback surface.
type Playlist struct {
	ID         string
	URI        string
	Name       string
	TrackCount int
}

// AudioFeatures holds the subset of catalog audio analysis the tagger uses.
type AudioFeatures struct {
	TrackID      string
	Energy       float32
	Valence      float32
	Danceability float32
	Acousticness float32
	Tempo        float32
}

// PlaybackState is the current state of the playback surface.
type PlaybackState struct {
	Playing bool
	Track   *TrackReference // nil when nothing is loaded
}

// TagCategory groups tags by what they describe.
type TagCategory string

const (
	CategoryGenre  TagCategory = "genre"
	CategoryMood   TagCategory = "mood"
	CategoryTempo  TagCategory = "tempo"
	CategoryCustom TagCategory = "custom"
)

// Valid reports whether c is a known category.
func (c TagCategory) Valid() bool {
	switch c {
	case CategoryGenre, CategoryMood, CategoryTempo, CategoryCustom:
		return true
	}
	return false
}

// TagSource records who wrote a tag. Manual tags outrank automatic ones.
type TagSource string

const (
	SourceAuto   TagSource = "auto"
	SourceManual TagSource = "manual"
)

// Trigger records what caused a play-history entry.
type Trigger string

const (
	TriggerPoll     Trigger = "poll-detected"
	TriggerSync     Trigger = "manual-sync"
	TriggerUserPlay Trigger = "user-play"
)

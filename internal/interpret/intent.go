// Package interpret turns free-text commands into structured intents.
//
// Interpretation is a pure fold over a fixed, ordered rule table; it has no
// state and no side effects.
package interpret

import (
	"fmt"
	"strings"
)

// Category is the kind of request an Intent makes.
type Category string

const (
	CategoryPlayback     Category = "playback"
	CategorySearch       Category = "search"
	CategoryLyricSearch  Category = "lyric-search"
	CategoryLyricAdd     Category = "lyric-add"
	CategoryTagSet       Category = "tag-set"
	CategoryTagQuery     Category = "tag-query"
	CategoryFavoriteAdd  Category = "favorite-add"
	CategoryFavoriteList Category = "favorite-list"
	CategoryPlaylist     Category = "playlist"
	CategoryStatus       Category = "status"
	CategorySync         Category = "sync"
	CategoryHistory      Category = "history"
	CategoryMoodReport   Category = "mood-report"
	CategoryLyrics       Category = "lyrics"
	CategoryPreference   Category = "preference"
	CategoryBackfill     Category = "backfill"
	CategoryHelp         Category = "help"
)

// Modes refine a category.
const (
	// playback
	ModePlay     = "play"
	ModePause    = "pause"
	ModeResume   = "resume"
	ModeSkip     = "skip"
	ModePrevious = "previous"
	ModeTrack    = "track"
	ModeArtist   = "artist"

	// search
	ModePlain = "plain"
	ModeMood  = "mood"
	ModeGenre = "genre"
	ModeTempo = "tempo"

	// tag-query
	ModeTag     = "tag"
	ModeSubject = "subject"

	// favorite-add, lyric-add, tag-set
	ModeCurrent = "current"

	// playlist
	ModeList    = "list"
	ModeShuffle = "shuffle"

	// sync
	ModeSync     = "sync"
	ModeDescribe = "describe"

	// preference
	ModeGet = "get"
	ModeSet = "set"
)

// ThisTarget is the Target of intents that refer to the current track.
const ThisTarget = "this"

// Intent is a parsed command.
type Intent struct {
	Category Category
	Mode     string
	Arg      string // main argument: query, tag, artist, fragment, value
	Target   string // secondary argument: subject of a tag, key of a preference
	Play     bool   // start playback of the best result
}

func (i Intent) String() string {
	var b strings.Builder
	b.WriteString(string(i.Category))
	if i.Mode != "" {
		b.WriteString("/" + i.Mode)
	}
	if i.Arg != "" {
		fmt.Fprintf(&b, " arg=%q", i.Arg)
	}
	if i.Target != "" {
		fmt.Fprintf(&b, " target=%q", i.Target)
	}
	if i.Play {
		b.WriteString(" play")
	}
	return b.String()
}

// RefersToCurrent reports whether the intent's subject is the current track.
func (i Intent) RefersToCurrent() bool {
	return i.Mode == ModeCurrent || IsThis(i.Target)
}

// IsThis reports whether s names the currently playing track or artist.
func IsThis(s string) bool {
	switch strings.TrimSpace(s) {
	case "this", "this song", "this track", "this one", "this artist", "it", "that":
		return true
	}
	return false
}

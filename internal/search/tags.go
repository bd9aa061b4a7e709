package search

import (
	"strings"

	"github.com/justestif/go-music-agent/internal/music"
)

// maxGenreTags is how many catalog genres become auto tags.
const maxGenreTags = 3

const (
	moodConfidence  = 0.8
	tempoConfidence = 0.9
)

// Suggestion is a tag the analyzer wants to write.
type Suggestion struct {
	SubjectID   string
	SubjectKind music.SubjectKind
	SubjectName string
	Text        string
	Category    music.TagCategory
	Confidence  float64
}

// GenreTags turns the artist's catalog genres into artist tags. The first
// genre gets confidence 1.0 and each following one 0.1 less.
func GenreTags(artist music.Artist, genres []string) []Suggestion {
	if artist.ID == "" {
		return nil
	}
	var out []Suggestion
	seen := make(map[string]bool)
	for _, g := range genres {
		text := strings.ToLower(strings.TrimSpace(g))
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, Suggestion{
			SubjectID:   artist.ID,
			SubjectKind: music.SubjectArtist,
			SubjectName: artist.Name,
			Text:        text,
			Category:    music.CategoryGenre,
			Confidence:  1.0 - 0.1*float64(len(out)),
		})
		if len(out) == maxGenreTags {
			break
		}
	}
	return out
}

// FeatureTags derives mood and tempo tags for a track from its audio
// features. It returns nil when features is nil; moods are never guessed.
func FeatureTags(track music.TrackReference, f *music.AudioFeatures) []Suggestion {
	if f == nil || track.ID == "" {
		return nil
	}

	var moods []string
	switch {
	case f.Energy > 0.7:
		moods = append(moods, "energetic")
	case f.Energy < 0.4:
		moods = append(moods, "mellow")
	}
	switch {
	case f.Valence > 0.7:
		moods = append(moods, "upbeat")
	case f.Valence < 0.4:
		moods = append(moods, "melancholic")
	}
	if f.Danceability > 0.7 {
		moods = append(moods, "danceable")
	}

	out := make([]Suggestion, 0, len(moods)+1)
	for _, m := range moods {
		out = append(out, trackSuggestion(track, m, music.CategoryMood, moodConfidence))
	}
	if f.Tempo > 0 {
		out = append(out, trackSuggestion(track, TempoBucket(f.Tempo), music.CategoryTempo, tempoConfidence))
	}
	return out
}

// TempoBucket names a BPM value: fast above 140, medium above 100, else slow.
func TempoBucket(bpm float32) string {
	switch {
	case bpm > 140:
		return "fast"
	case bpm > 100:
		return "medium"
	}
	return "slow"
}

func trackSuggestion(t music.TrackReference, text string, cat music.TagCategory, conf float64) Suggestion {
	return Suggestion{
		SubjectID:   t.ID,
		SubjectKind: music.SubjectTrack,
		SubjectName: t.String(),
		Text:        text,
		Category:    cat,
		Confidence:  conf,
	}
}

package search

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// MoodMap maps mood buckets to genre keywords. A genre belongs to a mood
// when its words contain one of the mood's keywords as a word sequence, so
// "classic rock" maps wherever "rock" does.
type MoodMap map[string][]string

// DefaultMoodMap is used when no mapping file is configured.
func DefaultMoodMap() MoodMap {
	return MoodMap{
		"energetic": {
			"rock", "metal", "punk", "hardcore", "edm", "drum and bass",
			"dubstep", "techno", "hip hop", "rap", "grunge",
		},
		"mellow": {
			"ambient", "folk", "acoustic", "singer songwriter", "classical",
			"jazz", "lo fi", "new age", "bossa nova",
		},
		"upbeat": {
			"pop", "disco", "funk", "dance", "reggae", "ska", "motown",
		},
		"melancholic": {
			"blues", "emo", "slowcore", "sadcore", "darkwave", "shoegaze",
		},
		"chill": {
			"chillout", "chillwave", "downtempo", "trip hop", "lo fi", "dub",
		},
		"relaxing": {
			"ambient", "new age", "meditation", "easy listening",
		},
	}
}

// moodFile is the on-disk layout of a mapping file:
//
//	moods:
//	  mellow: [folk, ambient]
type moodFile struct {
	Moods MoodMap `yaml:"moods"`
}

// LoadMoodMap reads a YAML mapping file. An empty path returns the default
// mapping.
func LoadMoodMap(path string) (MoodMap, error) {
	if path == "" {
		return DefaultMoodMap(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mood map: %w", err)
	}

	var f moodFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing mood map %s: %w", path, err)
	}
	if len(f.Moods) == 0 {
		return nil, fmt.Errorf("mood map %s defines no moods", path)
	}

	m := make(MoodMap, len(f.Moods))
	for mood, genres := range f.Moods {
		key := Normalize(mood)
		for _, g := range genres {
			if n := Normalize(g); n != "" {
				m[key] = append(m[key], n)
			}
		}
	}
	return m, nil
}

// Moods returns the mood bucket names, sorted.
func (m MoodMap) Moods() []string {
	moods := make([]string, 0, len(m))
	for mood := range m {
		moods = append(moods, mood)
	}
	slices.Sort(moods)
	return moods
}

// MoodsForGenre returns the moods genre maps to, sorted. Unmapped genres
// return nil.
func (m MoodMap) MoodsForGenre(genre string) []string {
	g := Normalize(genre)
	if g == "" {
		return nil
	}
	var moods []string
	for mood, keywords := range m {
		for _, kw := range keywords {
			if containsWords(g, Normalize(kw)) {
				moods = append(moods, mood)
				break
			}
		}
	}
	slices.Sort(moods)
	return moods
}

// GenresForMood returns the genre keywords of mood, or nil when the mood is
// not in the table.
func (m MoodMap) GenresForMood(mood string) []string {
	return m[strings.TrimSpace(strings.ToLower(mood))]
}

// GenreMatchesMood reports whether genre maps to mood.
func (m MoodMap) GenreMatchesMood(genre, mood string) bool {
	return slices.Contains(m.MoodsForGenre(genre), strings.ToLower(mood))
}

// containsWords reports whether sub appears in s on word boundaries.
func containsWords(s, sub string) bool {
	return strings.Contains(" "+s+" ", " "+sub+" ")
}

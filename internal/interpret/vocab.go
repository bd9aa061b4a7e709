package interpret

import (
	"strings"

	"github.com/justestif/go-music-agent/internal/music"
)

var moodWords = map[string]bool{
	"mellow": true, "chill": true, "chilled": true, "relaxing": true, "relaxed": true,
	"calm": true, "peaceful": true, "energetic": true, "upbeat": true, "happy": true,
	"sad": true, "aggressive": true, "melancholic": true, "melancholy": true,
	"danceable": true, "dreamy": true, "moody": true, "romantic": true, "angry": true,
	"uplifting": true, "dark": true, "groovy": true,
}

var tempoWords = map[string]bool{
	"fast": true, "slow": true, "medium": true, "quick": true, "downtempo": true,
}

// Classify places a word or phrase in the tag taxonomy. ok is false when it
// is neither a mood nor a tempo word; callers decide what unknown words
// mean. For phrases the first mood or tempo word wins and is returned as
// the canonical text.
func Classify(phrase string) (music.TagCategory, string, bool) {
	p := strings.TrimSpace(strings.ToLower(phrase))
	switch {
	case moodWords[p]:
		return music.CategoryMood, p, true
	case tempoWords[p]:
		return music.CategoryTempo, p, true
	}
	for _, w := range strings.Fields(p) {
		switch {
		case moodWords[w]:
			return music.CategoryMood, w, true
		case tempoWords[w]:
			return music.CategoryTempo, w, true
		}
	}
	return "", p, false
}

// searchMode maps the word in "play some X music" to a search mode and the
// argument to search for. Unknown words are genres.
func searchMode(phrase string) (string, string) {
	cat, text, ok := Classify(phrase)
	if !ok {
		return ModeGenre, text
	}
	if cat == music.CategoryTempo {
		return ModeTempo, text
	}
	return ModeMood, text
}
